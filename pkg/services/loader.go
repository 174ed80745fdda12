package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/apperrors"
	"github.com/ekaya-inc/contact-reconciler/pkg/config"
	"github.com/ekaya-inc/contact-reconciler/pkg/database"
	"github.com/ekaya-inc/contact-reconciler/pkg/logging"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/normalize"
	"github.com/ekaya-inc/contact-reconciler/pkg/repositories"
)

// CoreLoader applies a batch of staging rows to the core contact store.
// Each row is processed in its own transaction; a failed row rolls back,
// lands in the error bucket, and never stops the batch. The returned
// summary accounts for every row exactly once.
type CoreLoader interface {
	LoadCore(ctx context.Context, run *models.ImportRun, records []*models.ImportRecord, dryRun bool) (*models.LoadSummary, error)
}

type coreLoader struct {
	resolver      IdentityResolver
	matcher       DeterministicMatcher
	entityRepo    repositories.EntityRepository
	mappingRepo   repositories.IdentifierMappingRepository
	candidateRepo repositories.CandidateRepository
	auditRepo     repositories.AuditRepository
	profile       *models.SurvivorshipProfile
	metrics       *Metrics
	cfg           *config.ReconcilerConfig
	logger        *zap.Logger
}

// NewCoreLoader creates a new CoreLoader.
func NewCoreLoader(
	resolver IdentityResolver,
	matcher DeterministicMatcher,
	entityRepo repositories.EntityRepository,
	mappingRepo repositories.IdentifierMappingRepository,
	candidateRepo repositories.CandidateRepository,
	auditRepo repositories.AuditRepository,
	profile *models.SurvivorshipProfile,
	metrics *Metrics,
	cfg *config.ReconcilerConfig,
	logger *zap.Logger,
) CoreLoader {
	return &coreLoader{
		resolver:      resolver,
		matcher:       matcher,
		entityRepo:    entityRepo,
		mappingRepo:   mappingRepo,
		candidateRepo: candidateRepo,
		auditRepo:     auditRepo,
		profile:       profile,
		metrics:       metrics,
		cfg:           cfg,
		logger:        logger.Named("core-loader"),
	}
}

var _ CoreLoader = (*coreLoader)(nil)

func (s *coreLoader) LoadCore(ctx context.Context, run *models.ImportRun, records []*models.ImportRecord, dryRun bool) (*models.LoadSummary, error) {
	ctx = models.WithRunProvenance(ctx, run)
	summary := &models.LoadSummary{DryRun: dryRun}
	seen := make(map[string]bool, len(records))

	s.logger.Info("Starting core load",
		zap.String("run_id", run.ID.String()),
		zap.String("external_system", run.ExternalSystem),
		zap.Int("rows", len(records)),
		zap.Bool("dry_run", dryRun))

	for i, record := range records {
		summary.RowsProcessed++

		// First occurrence of an external key within the batch wins;
		// replays of the same key in one extract are source noise.
		key := strings.TrimSpace(record.ExternalID)
		if key != "" {
			if seen[key] {
				s.countOutcome(ctx, summary, models.OutcomeSkippedDuplicate)
				continue
			}
			seen[key] = true
		}

		outcome, err := s.processRecordIsolated(ctx, run, record, dryRun)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrMissingExternalID):
				outcome = models.OutcomeMissingExternalID
				s.logger.Warn("Row has no external id, quarantined",
					zap.String("run_id", run.ID.String()),
					zap.String("source_row_id", record.SourceRowID))
			default:
				outcome = models.OutcomeError
				s.logger.Error("Row failed, continuing batch",
					zap.String("run_id", run.ID.String()),
					zap.String("source_row_id", record.SourceRowID),
					zap.String("error", logging.SanitizeError(err)))
			}
		}
		s.countOutcome(ctx, summary, outcome)

		if s.cfg.CheckpointEvery > 0 && (i+1)%s.cfg.CheckpointEvery == 0 {
			s.logger.Info("Load checkpoint",
				zap.String("run_id", run.ID.String()),
				zap.Int("rows_processed", summary.RowsProcessed),
				zap.Int("rows_created", summary.RowsCreated),
				zap.Int("rows_updated", summary.RowsUpdated),
				zap.Int("rows_errored", summary.RowsErrored))
		}
	}

	s.logger.Info("Core load finished",
		zap.String("run_id", run.ID.String()),
		zap.Int("rows_processed", summary.RowsProcessed),
		zap.Int("rows_created", summary.RowsCreated),
		zap.Int("rows_updated", summary.RowsUpdated),
		zap.Int("rows_reactivated", summary.RowsReactivated),
		zap.Int("rows_deduped_auto", summary.RowsDedupedAuto),
		zap.Int("rows_errored", summary.RowsErrored),
		zap.Bool("dry_run", dryRun))

	return summary, nil
}

func (s *coreLoader) countOutcome(ctx context.Context, summary *models.LoadSummary, outcome models.LoadOutcome) {
	summary.Count(outcome)
	s.metrics.RecordLoadOutcome(ctx, string(outcome))
}

// processRecordIsolated wraps one row in its own transaction. Dry runs
// write nothing, so they skip the transaction entirely.
func (s *coreLoader) processRecordIsolated(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, dryRun bool) (models.LoadOutcome, error) {
	if dryRun {
		return s.processRecord(ctx, run, record, true)
	}

	var outcome models.LoadOutcome
	err := database.WithTransaction(ctx, func(txCtx context.Context) error {
		var innerErr error
		outcome, innerErr = s.processRecord(txCtx, run, record, false)
		return innerErr
	})
	if err != nil {
		return models.OutcomeError, err
	}
	return outcome, nil
}

func (s *coreLoader) processRecord(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, dryRun bool) (models.LoadOutcome, error) {
	target, err := s.resolver.ResolveImportTarget(ctx, run, record.ExternalID, dryRun)
	if err != nil {
		return models.OutcomeError, err
	}

	if target.Action == ActionCreate {
		if record.SourceDeleted {
			// Never materialized here and already gone at the source.
			return models.OutcomeSoftDeleted, nil
		}
		return s.processCreate(ctx, run, record, dryRun)
	}

	if record.SourceDeleted {
		return s.processSourceDeleted(ctx, run, record, target, dryRun)
	}

	action := models.AuditActionUpdate
	if target.Action == ActionReactivate {
		action = models.AuditActionReactivate
	}
	changed, err := s.applySurvivorship(ctx, run, record, target.Entity, action, nil, dryRun)
	if err != nil {
		return models.OutcomeError, err
	}

	switch {
	case target.Action == ActionReactivate:
		return models.OutcomeReactivated, nil
	case changed == 0:
		return models.OutcomeSkippedNoChange, nil
	default:
		return models.OutcomeUpdated, nil
	}
}

// processCreate runs deterministic matching before creating. A direct hit
// redirects the row onto the matched entity instead of creating a
// near-duplicate; an ambiguous result creates anyway but leaves pending
// suggestions behind for review.
func (s *coreLoader) processCreate(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, dryRun bool) (models.LoadOutcome, error) {
	match, err := s.matcher.MatchByContact(ctx, record.Field(models.FieldEmail), record.Field(models.FieldPhone))
	if err != nil {
		return models.OutcomeError, err
	}

	if match.Outcome.IsDirect() {
		entity, err := s.entityRepo.GetByID(ctx, *match.EntityID)
		if err != nil {
			return models.OutcomeError, fmt.Errorf("failed to load matched entity: %w", err)
		}
		if err := s.createMapping(ctx, run, record, entity, dryRun); err != nil {
			return models.OutcomeError, err
		}
		if _, err := s.applySurvivorship(ctx, run, record, entity, models.AuditActionUpdate, nil, dryRun); err != nil {
			return models.OutcomeError, err
		}
		s.logger.Info("Redirected new row onto existing entity",
			zap.String("source_row_id", record.SourceRowID),
			zap.String("entity_id", entity.ID.String()),
			zap.String("match_type", string(match.Outcome)))
		return models.OutcomeDedupedAuto, nil
	}

	entity, err := s.createEntity(ctx, run, record, dryRun)
	if err != nil {
		return models.OutcomeError, err
	}

	if match.Outcome == models.MatchTypeAmbiguous && !dryRun {
		if err := s.recordAmbiguity(ctx, run, record, match, entity); err != nil {
			return models.OutcomeError, err
		}
	}

	return models.OutcomeCreated, nil
}

func (s *coreLoader) processSourceDeleted(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, target *ImportTarget, dryRun bool) (models.LoadOutcome, error) {
	if !dryRun {
		if err := s.mappingRepo.Deactivate(ctx, target.Mapping.ID, models.DeactivationReasonSourceDeleted); err != nil {
			return models.OutcomeError, err
		}
		entry := s.auditEntry(ctx, models.AuditEntityTypeMapping, target.Mapping.ID, models.AuditActionSoftDelete)
		if err := s.auditRepo.Create(ctx, entry); err != nil {
			return models.OutcomeError, err
		}
	}
	s.logger.Info("Deactivated mapping for source-deleted row",
		zap.String("source_row_id", record.SourceRowID),
		zap.String("entity_id", target.Entity.ID.String()))
	return models.OutcomeSoftDeleted, nil
}

// applySurvivorship resolves incoming values against the entity and
// persists the changed fields. Returns the number of changed fields.
func (s *coreLoader) applySurvivorship(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, entity *models.ContactEntity, action string, overrides map[string]models.ManualOverride, dryRun bool) (int, error) {
	resolution := ResolveSurvivorship(s.profile, SurvivorshipInput{
		Incoming:        incomingPayload(record),
		Core:            entity.FieldMap(),
		ManualOverrides: overrides,
		Verified:        entity.VerifiedSnapshot(),
	})

	changed := resolution.ChangedFields()
	if len(changed) == 0 {
		return 0, nil
	}

	core := entity.FieldMap()
	updates := make(map[string]string, len(changed))
	for _, field := range changed {
		updates[field] = resolution.ResolvedValues[field]
	}

	if !dryRun {
		if err := s.entityRepo.UpdateFields(ctx, entity.ID, updates); err != nil {
			return 0, err
		}
		for _, field := range changed {
			decision := resolution.Decisions[field]
			entry := s.auditEntry(ctx, models.AuditEntityTypeContact, entity.ID, action)
			entry.ChangedFields = map[string]models.FieldChange{
				field: {
					Old:    core[field],
					New:    decision.Winner.Value,
					Tier:   decision.Winner.Tier,
					Losers: decision.Losers,
					Reason: decision.Reason,
				},
			}
			if err := s.auditRepo.Create(ctx, entry); err != nil {
				return 0, err
			}
		}
	}

	for _, field := range changed {
		entity.ApplyField(field, resolution.ResolvedValues[field])
	}

	return len(changed), nil
}

func (s *coreLoader) createEntity(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, dryRun bool) (*models.ContactEntity, error) {
	entity := &models.ContactEntity{}
	for field, value := range incomingPayload(record) {
		entity.ApplyField(field, value)
	}
	for _, alt := range record.AlternateEmails {
		if n := normalize.Email(alt); n != "" {
			entity.AlternateEmails = append(entity.AlternateEmails, n)
		}
	}
	for _, alt := range record.AlternatePhones {
		if n := normalize.Phone(alt); n != "" {
			entity.AlternatePhones = append(entity.AlternatePhones, n)
		}
	}

	if dryRun {
		return entity, nil
	}

	if err := s.entityRepo.Create(ctx, entity); err != nil {
		return nil, err
	}
	if err := s.createMapping(ctx, run, record, entity, false); err != nil {
		return nil, err
	}
	entry := s.auditEntry(ctx, models.AuditEntityTypeContact, entity.ID, models.AuditActionCreate)
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	// Backfill suggestions generated before this row materialized.
	if err := s.candidateRepo.SetMergedEntityForRow(ctx, run.ID, record.SourceRowID, entity.ID); err != nil {
		return nil, err
	}

	return entity, nil
}

func (s *coreLoader) createMapping(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, entity *models.ContactEntity, dryRun bool) error {
	if dryRun {
		return nil
	}
	runID := run.ID
	mapping := &models.ExternalIdentifierMapping{
		EntityType:     models.MappingEntityTypeContact,
		ExternalSystem: run.ExternalSystem,
		ExternalID:     strings.TrimSpace(record.ExternalID),
		EntityID:       entity.ID,
		LastRunID:      &runID,
		IsActive:       true,
	}
	if err := s.mappingRepo.Create(ctx, mapping); err != nil {
		return fmt.Errorf("failed to create identifier mapping: %w", err)
	}
	return nil
}

// recordAmbiguity persists one pending suggestion per entity the record
// partially matched, pointing back at the entity the record created.
func (s *coreLoader) recordAmbiguity(ctx context.Context, run *models.ImportRun, record *models.ImportRecord, match *ContactMatch, created *models.ContactEntity) error {
	createdID := created.ID
	for _, entityID := range match.CandidatePool() {
		exists, err := s.candidateRepo.PendingExists(ctx, run.ID, record.SourceRowID, entityID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		candidate := &models.MatchCandidate{
			RunID:           run.ID,
			SourceRowID:     record.SourceRowID,
			EntityID:        entityID,
			MergedEntityID:  &createdID,
			MatchType:       models.MatchTypeAmbiguous,
			IncomingPayload: record.Payload,
		}
		if err := s.candidateRepo.Create(ctx, candidate); err != nil {
			return err
		}
	}
	s.logger.Info("Ambiguous deterministic match, created with suggestions",
		zap.String("source_row_id", record.SourceRowID),
		zap.Int("entities", len(match.CandidatePool())))
	return nil
}

func (s *coreLoader) auditEntry(ctx context.Context, entityType string, entityID uuid.UUID, action string) *models.AuditLogEntry {
	entry := &models.AuditLogEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Source:     string(models.SourcePipeline),
	}
	if prov, ok := models.GetProvenance(ctx); ok {
		entry.Source = string(prov.Source)
		entry.RunID = prov.RunID
		entry.UserID = prov.UserID
	}
	return entry
}

// incomingPayload projects the record's payload onto the tracked fields,
// normalizing contact points. A value that fails normalization is dropped
// rather than passed through, so source garbage cannot blank a good core
// value via survivorship.
func incomingPayload(record *models.ImportRecord) map[string]string {
	out := make(map[string]string, len(record.Payload))
	for _, field := range models.TrackedFields {
		raw, ok := record.Payload[field]
		if !ok {
			continue
		}
		switch field {
		case models.FieldEmail:
			if n := normalize.Email(raw); n != "" || strings.TrimSpace(raw) == "" {
				out[field] = n
			}
		case models.FieldPhone:
			if n := normalize.Phone(raw); n != "" || strings.TrimSpace(raw) == "" {
				out[field] = n
			}
		default:
			out[field] = strings.TrimSpace(raw)
		}
	}
	return out
}
