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

// IdentifierMappingRepository provides data access for external identifier
// mappings. Mappings are never destroyed; deactivation and reactivation
// preserve first_seen_at and the audit trail.
type IdentifierMappingRepository interface {
	Create(ctx context.Context, mapping *models.ExternalIdentifierMapping) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExternalIdentifierMapping, error)
	// GetActiveForUpdate locks the active mapping row for the external key
	// so two concurrent runs cannot both decide "create". Returns
	// apperrors.ErrNotFound when no active mapping exists.
	GetActiveForUpdate(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error)
	// GetActive is the non-locking read used outside of load transactions.
	GetActive(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error)
	// GetMostRecentInactive returns the newest soft-deleted mapping for the
	// key, for the reactivation path.
	GetMostRecentInactive(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error)
	// MarkSeen touches last_seen_at/run and reactivates the mapping.
	// Idempotent and safe on every observation, including replays.
	MarkSeen(ctx context.Context, id uuid.UUID, runID uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID, reason string) error
	ListActiveByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.ExternalIdentifierMapping, error)
	// Repoint moves a mapping onto another entity (merge path).
	Repoint(ctx context.Context, id uuid.UUID, entityID uuid.UUID) error
	// RestoreState resets a mapping row's entity, activation, and reason to
	// a prior state (undo path).
	RestoreState(ctx context.Context, state models.MappingState) error
}

type identifierMappingRepository struct{}

// NewIdentifierMappingRepository creates a new IdentifierMappingRepository.
func NewIdentifierMappingRepository() IdentifierMappingRepository {
	return &identifierMappingRepository{}
}

var _ IdentifierMappingRepository = (*identifierMappingRepository)(nil)

const mappingColumns = `
	id, entity_type, external_system, external_id, entity_id,
	first_seen_at, last_seen_at, last_run_id,
	is_active, deactivated_reason, created_at, updated_at`

func (r *identifierMappingRepository) Create(ctx context.Context, mapping *models.ExternalIdentifierMapping) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	now := time.Now()
	mapping.CreatedAt = now
	mapping.UpdatedAt = now
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	if mapping.FirstSeenAt.IsZero() {
		mapping.FirstSeenAt = now
	}
	if mapping.LastSeenAt.IsZero() {
		mapping.LastSeenAt = now
	}

	query := `
		INSERT INTO external_identifier_mappings (` + mappingColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := scope.Q().Exec(ctx, query,
		mapping.ID, mapping.EntityType, mapping.ExternalSystem, mapping.ExternalID, mapping.EntityID,
		mapping.FirstSeenAt, mapping.LastSeenAt, mapping.LastRunID,
		mapping.IsActive, mapping.DeactivatedReason, mapping.CreatedAt, mapping.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create identifier mapping: %w", err)
	}

	return nil
}

func (r *identifierMappingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExternalIdentifierMapping, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + mappingColumns + ` FROM external_identifier_mappings WHERE id = $1`

	row := scope.Q().QueryRow(ctx, query, id)
	return scanMappingRow(row)
}

func (r *identifierMappingRepository) GetActiveForUpdate(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + mappingColumns + `
		FROM external_identifier_mappings
		WHERE entity_type = $1 AND external_system = $2 AND external_id = $3
		  AND is_active = true
		ORDER BY last_seen_at DESC
		LIMIT 1
		FOR UPDATE`

	row := scope.Q().QueryRow(ctx, query, entityType, externalSystem, externalID)
	return scanMappingRow(row)
}

func (r *identifierMappingRepository) GetActive(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + mappingColumns + `
		FROM external_identifier_mappings
		WHERE entity_type = $1 AND external_system = $2 AND external_id = $3
		  AND is_active = true
		ORDER BY last_seen_at DESC
		LIMIT 1`

	row := scope.Q().QueryRow(ctx, query, entityType, externalSystem, externalID)
	return scanMappingRow(row)
}

func (r *identifierMappingRepository) GetMostRecentInactive(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + mappingColumns + `
		FROM external_identifier_mappings
		WHERE entity_type = $1 AND external_system = $2 AND external_id = $3
		  AND is_active = false
		ORDER BY last_seen_at DESC
		LIMIT 1
		FOR UPDATE`

	row := scope.Q().QueryRow(ctx, query, entityType, externalSystem, externalID)
	return scanMappingRow(row)
}

func (r *identifierMappingRepository) MarkSeen(ctx context.Context, id uuid.UUID, runID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE external_identifier_mappings
		SET last_seen_at = NOW(),
		    last_run_id = $2,
		    is_active = true,
		    deactivated_reason = NULL,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Q().Exec(ctx, query, id, runID)
	if err != nil {
		return fmt.Errorf("failed to mark mapping seen: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identifier mapping %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *identifierMappingRepository) Deactivate(ctx context.Context, id uuid.UUID, reason string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE external_identifier_mappings
		SET is_active = false,
		    deactivated_reason = $2,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Q().Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to deactivate mapping: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identifier mapping %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *identifierMappingRepository) ListActiveByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.ExternalIdentifierMapping, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + mappingColumns + `
		FROM external_identifier_mappings
		WHERE entity_id = $1 AND is_active = true
		ORDER BY first_seen_at ASC`

	rows, err := scope.Q().Query(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings by entity: %w", err)
	}
	defer rows.Close()

	return scanMappingRows(rows)
}

func (r *identifierMappingRepository) Repoint(ctx context.Context, id uuid.UUID, entityID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE external_identifier_mappings
		SET entity_id = $2,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Q().Exec(ctx, query, id, entityID)
	if err != nil {
		return fmt.Errorf("failed to repoint mapping: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identifier mapping %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *identifierMappingRepository) RestoreState(ctx context.Context, state models.MappingState) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE external_identifier_mappings
		SET entity_id = $2,
		    is_active = $3,
		    deactivated_reason = $4,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Q().Exec(ctx, query,
		state.MappingID, state.EntityID, state.IsActive, state.DeactivatedReason)
	if err != nil {
		return fmt.Errorf("failed to restore mapping state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identifier mapping %s: %w", state.MappingID, apperrors.ErrNotFound)
	}

	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanMappingRow(row pgx.Row) (*models.ExternalIdentifierMapping, error) {
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan identifier mapping: %w", err)
	}
	return m, nil
}

func scanMappingRows(rows pgx.Rows) ([]*models.ExternalIdentifierMapping, error) {
	var mappings []*models.ExternalIdentifierMapping

	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identifier mapping row: %w", err)
		}
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifier mapping rows: %w", err)
	}

	return mappings, nil
}

func scanMapping(row pgx.Row) (*models.ExternalIdentifierMapping, error) {
	var m models.ExternalIdentifierMapping
	err := row.Scan(
		&m.ID, &m.EntityType, &m.ExternalSystem, &m.ExternalID, &m.EntityID,
		&m.FirstSeenAt, &m.LastSeenAt, &m.LastRunID,
		&m.IsActive, &m.DeactivatedReason, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
