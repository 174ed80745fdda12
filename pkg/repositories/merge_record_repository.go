package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/contact-reconciler/pkg/apperrors"
	"github.com/ekaya-inc/contact-reconciler/pkg/database"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

// MergeRecordRepository provides data access for the merge transaction log.
// Records are append-only; an undo is a new record, never a mutation.
type MergeRecordRepository interface {
	Create(ctx context.Context, record *models.MergeRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MergeRecord, error)
	// UndoExists reports whether an undo record already references the
	// given merge.
	UndoExists(ctx context.Context, mergeRecordID uuid.UUID) (bool, error)
}

type mergeRecordRepository struct{}

// NewMergeRecordRepository creates a new MergeRecordRepository.
func NewMergeRecordRepository() MergeRecordRepository {
	return &mergeRecordRepository{}
}

var _ MergeRecordRepository = (*mergeRecordRepository)(nil)

const mergeRecordColumns = `
	id, candidate_id, primary_entity_id, merged_entity_id,
	decision_type, before_snapshot, after_snapshot, undo_payload,
	undo_of_id, executed_by, created_at`

func (r *mergeRecordRepository) Create(ctx context.Context, record *models.MergeRecord) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	record.CreatedAt = time.Now()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
		INSERT INTO merge_records (` + mergeRecordColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := scope.Q().Exec(ctx, query,
		record.ID, record.CandidateID, record.PrimaryEntityID, record.MergedEntityID,
		record.DecisionType, record.BeforeSnapshot, record.AfterSnapshot, record.UndoPayload,
		record.UndoOfID, record.ExecutedBy, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create merge record: %w", err)
	}

	return nil
}

func (r *mergeRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MergeRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + mergeRecordColumns + ` FROM merge_records WHERE id = $1`

	var m models.MergeRecord
	err := scope.Q().QueryRow(ctx, query, id).Scan(
		&m.ID, &m.CandidateID, &m.PrimaryEntityID, &m.MergedEntityID,
		&m.DecisionType, &m.BeforeSnapshot, &m.AfterSnapshot, &m.UndoPayload,
		&m.UndoOfID, &m.ExecutedBy, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan merge record: %w", err)
	}

	return &m, nil
}

func (r *mergeRecordRepository) UndoExists(ctx context.Context, mergeRecordID uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM merge_records
			WHERE undo_of_id = $1 AND decision_type = 'undo'
		)`

	var exists bool
	if err := scope.Q().QueryRow(ctx, query, mergeRecordID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check undo existence: %w", err)
	}

	return exists, nil
}
