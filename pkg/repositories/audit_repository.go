package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/contact-reconciler/pkg/database"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

// AuditRepository provides data access for the reconciliation audit log.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]*models.AuditLogEntry, error)
	// DeleteByMergeRecord removes the change-log entries attributable to
	// one merge. Only the undo path may call this.
	DeleteByMergeRecord(ctx context.Context, mergeRecordID uuid.UUID) (int64, error)
}

type auditRepository struct{}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepository{}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	entry.CreatedAt = time.Now()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO reconcile_audit_log (
			id, entity_type, entity_id, action,
			source, run_id, user_id, merge_record_id,
			changed_fields, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := scope.Q().Exec(ctx, query,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.Source, entry.RunID, entry.UserID, entry.MergeRecordID,
		entry.ChangedFields, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}

	return nil
}

func (r *auditRepository) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, entity_type, entity_id, action,
		       source, run_id, user_id, merge_record_id,
		       changed_fields, created_at
		FROM reconcile_audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := scope.Q().Query(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action,
			&e.Source, &e.RunID, &e.UserID, &e.MergeRecordID,
			&e.ChangedFields, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log row: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return entries, nil
}

func (r *auditRepository) DeleteByMergeRecord(ctx context.Context, mergeRecordID uuid.UUID) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	query := `DELETE FROM reconcile_audit_log WHERE merge_record_id = $1`

	result, err := scope.Q().Exec(ctx, query, mergeRecordID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete merge audit entries: %w", err)
	}

	return result.RowsAffected(), nil
}
