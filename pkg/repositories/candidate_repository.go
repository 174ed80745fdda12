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

// CandidateRepository provides data access for match candidates
// (duplicate suggestions).
type CandidateRepository interface {
	Create(ctx context.Context, candidate *models.MatchCandidate) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MatchCandidate, error)
	// GetByIDForUpdate locks the candidate row for the duration of a merge
	// decision so concurrent reviewers cannot double-decide it.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.MatchCandidate, error)
	// PendingExists reports whether a pending suggestion already exists for
	// the (run, source row, entity) triple. This is the de-duplication that
	// absorbs unlocked concurrent candidate generation.
	PendingExists(ctx context.Context, runID uuid.UUID, sourceRowID string, entityID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CandidateStatus, decidedBy *uuid.UUID) error
	// SetMergedEntityForRow backfills merged_entity_id on pending suggestions
	// for a staging row once the loader has materialized its entity.
	SetMergedEntityForRow(ctx context.Context, runID uuid.UUID, sourceRowID string, mergedEntityID uuid.UUID) error
	ListByRunAndStatus(ctx context.Context, runID uuid.UUID, status models.CandidateStatus) ([]*models.MatchCandidate, error)
}

type candidateRepository struct{}

// NewCandidateRepository creates a new CandidateRepository.
func NewCandidateRepository() CandidateRepository {
	return &candidateRepository{}
}

var _ CandidateRepository = (*candidateRepository)(nil)

const candidateColumns = `
	id, run_id, source_row_id, entity_id, merged_entity_id,
	match_type, confidence, features, incoming_payload,
	status, decided_by, decided_at, created_at, updated_at`

func (r *candidateRepository) Create(ctx context.Context, candidate *models.MatchCandidate) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	now := time.Now()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	if candidate.Status == "" {
		candidate.Status = models.CandidateStatusPending
	}

	query := `
		INSERT INTO match_candidates (` + candidateColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := scope.Q().Exec(ctx, query,
		candidate.ID, candidate.RunID, candidate.SourceRowID, candidate.EntityID, candidate.MergedEntityID,
		candidate.MatchType, candidate.Confidence, candidate.Features, candidate.IncomingPayload,
		candidate.Status, candidate.DecidedBy, candidate.DecidedAt,
		candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create match candidate: %w", err)
	}

	return nil
}

func (r *candidateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchCandidate, error) {
	return r.get(ctx, id, false)
}

func (r *candidateRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.MatchCandidate, error) {
	return r.get(ctx, id, true)
}

func (r *candidateRepository) get(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.MatchCandidate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + candidateColumns + ` FROM match_candidates WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	row := scope.Q().QueryRow(ctx, query, id)
	return scanCandidateRow(row)
}

func (r *candidateRepository) PendingExists(ctx context.Context, runID uuid.UUID, sourceRowID string, entityID uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM match_candidates
			WHERE run_id = $1 AND source_row_id = $2 AND entity_id = $3
			  AND status = 'pending'
		)`

	var exists bool
	if err := scope.Q().QueryRow(ctx, query, runID, sourceRowID, entityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending suggestion: %w", err)
	}

	return exists, nil
}

func (r *candidateRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CandidateStatus, decidedBy *uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE match_candidates
		SET status = $2,
		    decided_by = $3,
		    decided_at = CASE WHEN $2 = 'pending' THEN NULL ELSE NOW() END,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Q().Exec(ctx, query, id, status, decidedBy)
	if err != nil {
		return fmt.Errorf("failed to update candidate status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("match candidate %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *candidateRepository) SetMergedEntityForRow(ctx context.Context, runID uuid.UUID, sourceRowID string, mergedEntityID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE match_candidates
		SET merged_entity_id = $3,
		    updated_at = NOW()
		WHERE run_id = $1 AND source_row_id = $2 AND status = 'pending'`

	if _, err := scope.Q().Exec(ctx, query, runID, sourceRowID, mergedEntityID); err != nil {
		return fmt.Errorf("failed to set merged entity on candidates: %w", err)
	}

	return nil
}

func (r *candidateRepository) ListByRunAndStatus(ctx context.Context, runID uuid.UUID, status models.CandidateStatus) ([]*models.MatchCandidate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + candidateColumns + `
		FROM match_candidates
		WHERE run_id = $1 AND status = $2
		ORDER BY confidence DESC, created_at ASC`

	rows, err := scope.Q().Query(ctx, query, runID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates by run and status: %w", err)
	}
	defer rows.Close()

	return scanCandidateRows(rows)
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanCandidateRow(row pgx.Row) (*models.MatchCandidate, error) {
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan match candidate: %w", err)
	}
	return c, nil
}

func scanCandidateRows(rows pgx.Rows) ([]*models.MatchCandidate, error) {
	var candidates []*models.MatchCandidate

	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match candidate row: %w", err)
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match candidate rows: %w", err)
	}

	return candidates, nil
}

func scanCandidate(row pgx.Row) (*models.MatchCandidate, error) {
	var c models.MatchCandidate
	err := row.Scan(
		&c.ID, &c.RunID, &c.SourceRowID, &c.EntityID, &c.MergedEntityID,
		&c.MatchType, &c.Confidence, &c.Features, &c.IncomingPayload,
		&c.Status, &c.DecidedBy, &c.DecidedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
