package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/apperrors"
	"github.com/ekaya-inc/contact-reconciler/pkg/config"
	"github.com/ekaya-inc/contact-reconciler/pkg/logging"
	"github.com/ekaya-inc/contact-reconciler/pkg/matching"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/normalize"
	"github.com/ekaya-inc/contact-reconciler/pkg/repositories"
)

// Feature weights for the composite score. They sum to 1.0; a feature
// missing on either side contributes 0, so sparse records score
// conservatively low rather than optimistically high.
const (
	weightName       = 0.25
	weightDOB        = 0.20
	weightAddress    = 0.15
	weightEmployer   = 0.10
	weightSchool     = 0.10
	weightAltContact = 0.20
)

// Feature names persisted on candidates.
const (
	featureName       = "name"
	featureDOB        = "dob"
	featureAddress    = "address"
	featureEmployer   = "employer"
	featureSchool     = "school"
	featureAltContact = "alternate_contact"
)

// dobProximityDays is where date-of-birth proximity decays to zero.
const dobProximityDays = 730

// FuzzyScorer generates persisted duplicate suggestions for records that
// deterministic matching could not resolve to a single entity. Suggestions
// never mutate core entities; they only feed the review queue.
type FuzzyScorer interface {
	GenerateCandidates(ctx context.Context, run *models.ImportRun, records []*models.ImportRecord, dryRun bool) (*models.CandidateSummary, error)
	// ScorePair computes the weighted feature vector for one
	// (record, entity) pair. Exposed for review tooling.
	ScorePair(record *models.ImportRecord, entity *models.ContactEntity) (map[string]float64, float64)
}

type fuzzyScorer struct {
	matcher       DeterministicMatcher
	entityRepo    repositories.EntityRepository
	candidateRepo repositories.CandidateRepository
	mappingRepo   repositories.IdentifierMappingRepository
	metrics       *Metrics
	cfg           *config.ReconcilerConfig
	logger        *zap.Logger
}

// NewFuzzyScorer creates a new FuzzyScorer.
func NewFuzzyScorer(
	matcher DeterministicMatcher,
	entityRepo repositories.EntityRepository,
	candidateRepo repositories.CandidateRepository,
	mappingRepo repositories.IdentifierMappingRepository,
	metrics *Metrics,
	cfg *config.ReconcilerConfig,
	logger *zap.Logger,
) FuzzyScorer {
	return &fuzzyScorer{
		matcher:       matcher,
		entityRepo:    entityRepo,
		candidateRepo: candidateRepo,
		mappingRepo:   mappingRepo,
		metrics:       metrics,
		cfg:           cfg,
		logger:        logger.Named("fuzzy-scorer"),
	}
}

var _ FuzzyScorer = (*fuzzyScorer)(nil)

func (s *fuzzyScorer) GenerateCandidates(ctx context.Context, run *models.ImportRun, records []*models.ImportRecord, dryRun bool) (*models.CandidateSummary, error) {
	summary := &models.CandidateSummary{DryRun: dryRun}

	for _, record := range records {
		if err := s.scoreRecord(ctx, run, record, dryRun, summary); err != nil {
			summary.RowsErrored++
			s.logger.Error("Row failed to score, continuing batch",
				zap.String("run_id", run.ID.String()),
				zap.String("source_row_id", record.SourceRowID),
				zap.String("error", logging.SanitizeError(err)))
		}
	}

	s.logger.Info("Candidate generation finished",
		zap.String("run_id", run.ID.String()),
		zap.Int("rows_considered", summary.RowsConsidered),
		zap.Int("suggestions_created", summary.SuggestionsCreated),
		zap.Int("high_confidence", summary.HighConfidence),
		zap.Int("review_band", summary.ReviewBand),
		zap.Int("rows_errored", summary.RowsErrored),
		zap.Bool("dry_run", dryRun))

	return summary, nil
}

func (s *fuzzyScorer) scoreRecord(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, dryRun bool, summary *models.CandidateSummary) error {
	match, err := s.matcher.MatchByContact(ctx, record.Field(models.FieldEmail), record.Field(models.FieldPhone))
	if err != nil {
		return err
	}

	switch {
	case match.Outcome == models.MatchTypeInsufficient:
		summary.SkippedInsufficient++
		return nil
	case match.Outcome.IsDirect():
		summary.SkippedDirectMatch++
		return nil
	}

	summary.RowsConsidered++

	ownEntityID, err := s.ownEntity(ctx, run, record)
	if err != nil {
		return err
	}

	pool, err := s.assemblePool(ctx, record, match, ownEntityID)
	if err != nil {
		return err
	}

	for _, entity := range pool {
		features, score := s.ScorePair(record, entity)

		var matchType models.MatchType
		switch {
		case score >= s.cfg.AutoMergeThreshold:
			matchType = models.MatchTypeFuzzyHigh
			summary.HighConfidence++
			s.metrics.RecordCandidateBucket(ctx, "high")
		case score >= s.cfg.ReviewThreshold:
			matchType = models.MatchTypeFuzzyReview
			summary.ReviewBand++
			s.metrics.RecordCandidateBucket(ctx, "review")
		default:
			summary.LowScore++
			s.metrics.RecordCandidateBucket(ctx, "low")
			continue
		}

		exists, err := s.candidateRepo.PendingExists(ctx, run.ID, record.SourceRowID, entity.ID)
		if err != nil {
			return err
		}
		if exists {
			summary.SkippedExisting++
			continue
		}

		if !dryRun {
			candidate := &models.MatchCandidate{
				RunID:           run.ID,
				SourceRowID:     record.SourceRowID,
				EntityID:        entity.ID,
				MergedEntityID:  ownEntityID,
				MatchType:       matchType,
				Confidence:      score,
				Features:        features,
				IncomingPayload: record.Payload,
			}
			if err := s.candidateRepo.Create(ctx, candidate); err != nil {
				return err
			}
		}
		summary.SuggestionsCreated++
	}

	return nil
}

// ownEntity resolves the entity the staging row itself maps to, when the
// row has already been loaded. Suggestions carry it so a later merge knows
// which entity to collapse.
func (s *fuzzyScorer) ownEntity(ctx context.Context, run *models.ImportRun, record *models.ImportRecord) (*uuid.UUID, error) {
	if strings.TrimSpace(record.ExternalID) == "" {
		return nil, nil
	}
	mapping, err := s.mappingRepo.GetActive(ctx, models.MappingEntityTypeContact, run.ExternalSystem, record.ExternalID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	entityID := mapping.EntityID
	return &entityID, nil
}

// assemblePool collects the scoring candidates: partial deterministic hits
// plus a name block (same last name, first initial, postal code). The
// row's own entity is excluded; a record never duplicates itself.
func (s *fuzzyScorer) assemblePool(ctx context.Context, record *models.ImportRecord, match *ContactMatch, ownEntityID *uuid.UUID) ([]*models.ContactEntity, error) {
	pool := make(map[uuid.UUID]*models.ContactEntity)

	for _, id := range match.CandidatePool() {
		entity, err := s.entityRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		pool[id] = entity
	}

	lastName := normalize.Name(record.Field(models.FieldLastName))
	firstName := normalize.Name(record.Field(models.FieldFirstName))
	if lastName != "" && firstName != "" {
		blocked, err := s.entityRepo.FindByNameBlock(ctx, lastName, firstName[:1], record.Field(models.FieldPostalCode))
		if err != nil {
			return nil, err
		}
		for _, entity := range blocked {
			pool[entity.ID] = entity
		}
	}

	if ownEntityID != nil {
		delete(pool, *ownEntityID)
	}

	out := make([]*models.ContactEntity, 0, len(pool))
	for _, entity := range pool {
		out = append(out, entity)
	}
	return out, nil
}

func (s *fuzzyScorer) ScorePair(record *models.ImportRecord, entity *models.ContactEntity) (map[string]float64, float64) {
	features := map[string]float64{
		featureName:       scoreName(record, entity),
		featureDOB:        scoreDOB(record, entity),
		featureAddress:    scoreAddress(record, entity),
		featureEmployer:   matching.TokenSortSimilarity(record.Field(models.FieldEmployer), entity.Employer),
		featureSchool:     matching.TokenSortSimilarity(record.Field(models.FieldSchool), entity.School),
		featureAltContact: scoreAlternateContact(record, entity),
	}

	score := features[featureName]*weightName +
		features[featureDOB]*weightDOB +
		features[featureAddress]*weightAddress +
		features[featureEmployer]*weightEmployer +
		features[featureSchool]*weightSchool +
		features[featureAltContact]*weightAltContact

	return features, score
}

func scoreName(record *models.ImportRecord, entity *models.ContactEntity) float64 {
	incoming := normalize.Name(strings.TrimSpace(record.Field(models.FieldFirstName) + " " + record.Field(models.FieldLastName)))
	existing := normalize.Name(strings.TrimSpace(entity.FirstName + " " + entity.LastName))
	if incoming == "" || existing == "" {
		return 0.0
	}
	return matching.JaroWinkler(incoming, existing)
}

func scoreDOB(record *models.ImportRecord, entity *models.ContactEntity) float64 {
	raw := record.Field(models.FieldDateOfBirth)
	if raw == "" {
		return 0.0
	}
	incoming, err := time.Parse(models.DateOfBirthLayout, raw)
	if err != nil {
		return 0.0
	}
	return matching.DateProximity(incoming, entity.BirthDate(), dobProximityDays)
}

// scoreAddress compares street and city as token sets, with small bonuses
// for exact postal code and city agreement, clamped to 1.0.
func scoreAddress(record *models.ImportRecord, entity *models.ContactEntity) float64 {
	incoming := strings.TrimSpace(record.Field(models.FieldStreet) + " " + record.Field(models.FieldCity))
	existing := strings.TrimSpace(entity.Street + " " + entity.City)
	score := matching.TokenSetSimilarity(incoming, existing)

	incomingPostal := strings.TrimSpace(record.Field(models.FieldPostalCode))
	if incomingPostal != "" && strings.EqualFold(incomingPostal, strings.TrimSpace(entity.PostalCode)) {
		score += 0.10
	}
	incomingCity := normalize.Name(record.Field(models.FieldCity))
	if incomingCity != "" && incomingCity == normalize.Name(entity.City) {
		score += 0.05
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// scoreAlternateContact returns 1.0 when any contact point on one side,
// primary or alternate, appears anywhere on the other side. A shared
// secondary email or phone is strong evidence even when the primaries
// disagree.
func scoreAlternateContact(record *models.ImportRecord, entity *models.ContactEntity) float64 {
	recordEmails := normalizedSet(normalize.Email, append([]string{record.Field(models.FieldEmail)}, record.AlternateEmails...))
	recordPhones := normalizedSet(normalize.Phone, append([]string{record.Field(models.FieldPhone)}, record.AlternatePhones...))

	for _, email := range entity.AllEmails() {
		if recordEmails[email] {
			return 1.0
		}
	}
	for _, phone := range entity.AllPhones() {
		if recordPhones[phone] {
			return 1.0
		}
	}
	return 0.0
}

func normalizedSet(norm func(string) string, values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if n := norm(v); n != "" {
			set[n] = true
		}
	}
	return set
}
