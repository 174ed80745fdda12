package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/apperrors"
	"github.com/ekaya-inc/contact-reconciler/pkg/database"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/repositories"
)

// MergeService executes and reverses merges of duplicate entities. Every
// merge runs in a single transaction, locks its candidate row, and writes
// an immutable MergeRecord whose undo payload is sufficient to reverse it
// without consulting any other table.
type MergeService interface {
	// ExecuteMerge collapses a candidate's merged entity into its primary
	// entity. fieldOverrides are operator-chosen values applied at the
	// manual survivorship tier. A nil userID marks the merge as automatic.
	ExecuteMerge(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID, fieldOverrides map[string]string, dryRun bool) (*models.MergeRecord, error)

	// UndoMerge reverses a previously executed merge. Fails when the
	// record carries no undo payload or has already been undone.
	UndoMerge(ctx context.Context, mergeRecordID uuid.UUID, userID *uuid.UUID, dryRun bool) (*models.MergeRecord, error)

	RejectCandidate(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID) error
	DeferCandidate(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID) error
}

type mergeService struct {
	candidateRepo repositories.CandidateRepository
	entityRepo    repositories.EntityRepository
	mappingRepo   repositories.IdentifierMappingRepository
	mergeRepo     repositories.MergeRecordRepository
	auditRepo     repositories.AuditRepository
	profile       *models.SurvivorshipProfile
	metrics       *Metrics
	logger        *zap.Logger
}

// NewMergeService creates a new MergeService.
func NewMergeService(
	candidateRepo repositories.CandidateRepository,
	entityRepo repositories.EntityRepository,
	mappingRepo repositories.IdentifierMappingRepository,
	mergeRepo repositories.MergeRecordRepository,
	auditRepo repositories.AuditRepository,
	profile *models.SurvivorshipProfile,
	metrics *Metrics,
	logger *zap.Logger,
) MergeService {
	return &mergeService{
		candidateRepo: candidateRepo,
		entityRepo:    entityRepo,
		mappingRepo:   mappingRepo,
		mergeRepo:     mergeRepo,
		auditRepo:     auditRepo,
		profile:       profile,
		metrics:       metrics,
		logger:        logger.Named("merge-service"),
	}
}

var _ MergeService = (*mergeService)(nil)

func (s *mergeService) ExecuteMerge(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID, fieldOverrides map[string]string, dryRun bool) (*models.MergeRecord, error) {
	var record *models.MergeRecord
	run := func(txCtx context.Context) error {
		var err error
		record, err = s.executeMerge(txCtx, candidateID, userID, fieldOverrides, dryRun)
		return err
	}

	if dryRun {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return record, nil
	}
	if err := database.WithTransaction(ctx, run); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *mergeService) executeMerge(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID, fieldOverrides map[string]string, dryRun bool) (*models.MergeRecord, error) {
	candidate, err := s.candidateRepo.GetByIDForUpdate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate: %w", err)
	}
	if !candidate.IsReviewable() {
		return nil, fmt.Errorf("candidate %s is %s: %w", candidateID, candidate.Status, apperrors.ErrInvalidCandidateState)
	}
	if candidate.MergedEntityID == nil {
		return nil, fmt.Errorf("candidate %s has no loaded entity to merge: %w", candidateID, apperrors.ErrInvalidCandidateState)
	}
	if *candidate.MergedEntityID == candidate.EntityID {
		return nil, fmt.Errorf("candidate %s suggests merging an entity with itself", candidateID)
	}

	primary, err := s.entityRepo.GetByID(ctx, candidate.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load primary entity: %w", err)
	}
	merged, err := s.entityRepo.GetByID(ctx, *candidate.MergedEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merged entity: %w", err)
	}

	overrides := make(map[string]models.ManualOverride, len(fieldOverrides))
	for field, value := range fieldOverrides {
		overrides[field] = models.ManualOverride{Value: value, EditorID: userID, EditedAt: time.Now()}
	}

	resolution := ResolveSurvivorship(s.profile, SurvivorshipInput{
		Incoming:        merged.FieldMap(),
		Core:            primary.FieldMap(),
		ManualOverrides: overrides,
		Verified:        primary.VerifiedSnapshot(),
	})

	before := primary.FieldMap()
	after := make(map[string]string, len(before))
	for field, value := range before {
		after[field] = value
	}
	updates := make(map[string]string)
	for _, field := range resolution.ChangedFields() {
		updates[field] = resolution.ResolvedValues[field]
		after[field] = resolution.ResolvedValues[field]
	}

	mappings, err := s.mappingRepo.ListActiveByEntity(ctx, merged.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list merged entity mappings: %w", err)
	}
	mappingStates := make([]models.MappingState, 0, len(mappings))
	for _, m := range mappings {
		mappingStates = append(mappingStates, models.MappingState{
			MappingID:         m.ID,
			EntityID:          m.EntityID,
			IsActive:          m.IsActive,
			DeactivatedReason: m.DeactivatedReason,
		})
	}

	decisionType := models.MergeDecisionManual
	newStatus := models.CandidateStatusAccepted
	if userID == nil {
		decisionType = models.MergeDecisionAuto
		newStatus = models.CandidateStatusAutoMerged
	}

	record := &models.MergeRecord{
		ID:              uuid.New(),
		CandidateID:     &candidate.ID,
		PrimaryEntityID: primary.ID,
		MergedEntityID:  merged.ID,
		DecisionType:    decisionType,
		BeforeSnapshot:  before,
		AfterSnapshot:   after,
		UndoPayload: &models.UndoPayload{
			PrimaryFields:      before,
			Mappings:           mappingStates,
			MergedEntityFields: merged.FieldMap(),
			MergedWasDeleted:   merged.IsDeleted,
		},
		ExecutedBy: userID,
	}

	if dryRun {
		return record, nil
	}

	if len(updates) > 0 {
		if err := s.entityRepo.UpdateFields(ctx, primary.ID, updates); err != nil {
			return nil, fmt.Errorf("failed to apply merged fields: %w", err)
		}
	}

	// Repointing keeps the merged entity's external keys live against the
	// primary, so replays of those source rows stay idempotent.
	for _, m := range mappings {
		if err := s.mappingRepo.Repoint(ctx, m.ID, primary.ID); err != nil {
			return nil, fmt.Errorf("failed to repoint mapping: %w", err)
		}
	}

	if err := s.entityRepo.SetDeleted(ctx, merged.ID, true); err != nil {
		return nil, fmt.Errorf("failed to soft-delete merged entity: %w", err)
	}

	if err := s.mergeRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create merge record: %w", err)
	}

	if err := s.writeMergeAudit(ctx, record, resolution, userID); err != nil {
		return nil, err
	}

	if err := s.candidateRepo.UpdateStatus(ctx, candidate.ID, newStatus, userID); err != nil {
		return nil, fmt.Errorf("failed to update candidate status: %w", err)
	}

	s.metrics.RecordMergeDecision(ctx, string(decisionType))
	s.logger.Info("Merge executed",
		zap.String("merge_record_id", record.ID.String()),
		zap.String("primary_entity_id", primary.ID.String()),
		zap.String("merged_entity_id", merged.ID.String()),
		zap.String("decision_type", string(decisionType)),
		zap.Int("fields_changed", len(updates)))

	return record, nil
}

// writeMergeAudit records one entry per changed field plus one for the
// merged entity's soft-delete, all attributed to the merge record so an
// undo can remove exactly these entries.
func (s *mergeService) writeMergeAudit(ctx context.Context, record *models.MergeRecord, resolution *models.Resolution, userID *uuid.UUID) error {
	source := models.SourceReview
	if userID == nil {
		source = models.SourceAuto
	}

	for _, field := range resolution.ChangedFields() {
		decision := resolution.Decisions[field]
		entry := &models.AuditLogEntry{
			EntityType:    models.AuditEntityTypeContact,
			EntityID:      record.PrimaryEntityID,
			Action:        models.AuditActionMerge,
			Source:        string(source),
			UserID:        userID,
			MergeRecordID: &record.ID,
			ChangedFields: map[string]models.FieldChange{
				field: {
					Old:    record.BeforeSnapshot[field],
					New:    decision.Winner.Value,
					Tier:   decision.Winner.Tier,
					Losers: decision.Losers,
					Reason: decision.Reason,
				},
			},
		}
		if err := s.auditRepo.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to write merge audit entry: %w", err)
		}
	}

	entry := &models.AuditLogEntry{
		EntityType:    models.AuditEntityTypeContact,
		EntityID:      record.MergedEntityID,
		Action:        models.AuditActionSoftDelete,
		Source:        string(source),
		UserID:        userID,
		MergeRecordID: &record.ID,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write merge audit entry: %w", err)
	}
	return nil
}

func (s *mergeService) UndoMerge(ctx context.Context, mergeRecordID uuid.UUID, userID *uuid.UUID, dryRun bool) (*models.MergeRecord, error) {
	var record *models.MergeRecord
	run := func(txCtx context.Context) error {
		var err error
		record, err = s.undoMerge(txCtx, mergeRecordID, userID, dryRun)
		return err
	}

	if dryRun {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return record, nil
	}
	if err := database.WithTransaction(ctx, run); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *mergeService) undoMerge(ctx context.Context, mergeRecordID uuid.UUID, userID *uuid.UUID, dryRun bool) (*models.MergeRecord, error) {
	original, err := s.mergeRepo.GetByID(ctx, mergeRecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merge record: %w", err)
	}
	if original.UndoPayload == nil {
		return nil, fmt.Errorf("merge record %s: %w", mergeRecordID, apperrors.ErrNoUndoPayload)
	}
	undone, err := s.mergeRepo.UndoExists(ctx, original.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing undo: %w", err)
	}
	if undone {
		return nil, fmt.Errorf("merge record %s: %w", mergeRecordID, apperrors.ErrMergeAlreadyUndone)
	}

	payload := original.UndoPayload
	undo := &models.MergeRecord{
		ID:              uuid.New(),
		CandidateID:     original.CandidateID,
		PrimaryEntityID: original.PrimaryEntityID,
		MergedEntityID:  original.MergedEntityID,
		DecisionType:    models.MergeDecisionUndo,
		BeforeSnapshot:  original.AfterSnapshot,
		AfterSnapshot:   original.BeforeSnapshot,
		UndoOfID:        &original.ID,
		ExecutedBy:      userID,
	}

	if dryRun {
		return undo, nil
	}

	if err := s.entityRepo.UpdateFields(ctx, original.PrimaryEntityID, payload.PrimaryFields); err != nil {
		return nil, fmt.Errorf("failed to restore primary entity fields: %w", err)
	}
	for _, state := range payload.Mappings {
		if err := s.mappingRepo.RestoreState(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to restore mapping state: %w", err)
		}
	}
	if err := s.entityRepo.SetDeleted(ctx, original.MergedEntityID, payload.MergedWasDeleted); err != nil {
		return nil, fmt.Errorf("failed to restore merged entity: %w", err)
	}

	deleted, err := s.auditRepo.DeleteByMergeRecord(ctx, original.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete merge audit entries: %w", err)
	}

	if original.CandidateID != nil {
		if err := s.candidateRepo.UpdateStatus(ctx, *original.CandidateID, models.CandidateStatusPending, nil); err != nil {
			return nil, fmt.Errorf("failed to reopen candidate: %w", err)
		}
	}

	if err := s.mergeRepo.Create(ctx, undo); err != nil {
		return nil, fmt.Errorf("failed to create undo record: %w", err)
	}

	entry := &models.AuditLogEntry{
		EntityType:    models.AuditEntityTypeMerge,
		EntityID:      original.ID,
		Action:        models.AuditActionUndo,
		Source:        string(models.SourceReview),
		UserID:        userID,
		MergeRecordID: &undo.ID,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write undo audit entry: %w", err)
	}

	s.metrics.RecordMergeDecision(ctx, string(models.MergeDecisionUndo))
	s.logger.Info("Merge undone",
		zap.String("merge_record_id", original.ID.String()),
		zap.String("undo_record_id", undo.ID.String()),
		zap.Int64("audit_entries_removed", deleted))

	return undo, nil
}

func (s *mergeService) RejectCandidate(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID) error {
	return s.decide(ctx, candidateID, userID, models.CandidateStatusRejected)
}

func (s *mergeService) DeferCandidate(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID) error {
	return s.decide(ctx, candidateID, userID, models.CandidateStatusDeferred)
}

func (s *mergeService) decide(ctx context.Context, candidateID uuid.UUID, userID *uuid.UUID, status models.CandidateStatus) error {
	return database.WithTransaction(ctx, func(txCtx context.Context) error {
		candidate, err := s.candidateRepo.GetByIDForUpdate(txCtx, candidateID)
		if err != nil {
			return fmt.Errorf("failed to load candidate: %w", err)
		}
		if !candidate.IsReviewable() {
			return fmt.Errorf("candidate %s is %s: %w", candidateID, candidate.Status, apperrors.ErrInvalidCandidateState)
		}
		if status == models.CandidateStatusDeferred && candidate.Status == models.CandidateStatusDeferred {
			return fmt.Errorf("candidate %s is already deferred: %w", candidateID, apperrors.ErrInvalidCandidateState)
		}
		if err := s.candidateRepo.UpdateStatus(txCtx, candidateID, status, userID); err != nil {
			return fmt.Errorf("failed to update candidate status: %w", err)
		}
		return nil
	})
}
