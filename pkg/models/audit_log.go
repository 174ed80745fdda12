package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntityType represents the type of record being audited.
const (
	AuditEntityTypeContact = "contact"
	AuditEntityTypeMapping = "identifier_mapping"
	AuditEntityTypeMerge   = "merge"
)

// AuditAction represents the type of action being audited.
const (
	AuditActionCreate     = "create"
	AuditActionUpdate     = "update"
	AuditActionReactivate = "reactivate"
	AuditActionSoftDelete = "soft_delete"
	AuditActionMerge      = "merge"
	AuditActionUndo       = "undo"
)

// AuditLogEntry is one entry in the unified reconciliation audit log.
// Stored in reconcile_audit_log.
type AuditLogEntry struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Action     string    `json:"action"`

	// Who/how
	Source string     `json:"source"`
	RunID  *uuid.UUID `json:"run_id,omitempty"`
	UserID *uuid.UUID `json:"user_id,omitempty"`

	// MergeRecordID attributes entries to a merge so an undo can delete
	// exactly the entries the original merge produced.
	MergeRecordID *uuid.UUID `json:"merge_record_id,omitempty"`

	// What changed (for updates), keyed by field name.
	ChangedFields map[string]FieldChange `json:"changed_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// FieldChange records one field's old and new values plus the winning
// survivorship tier, the candidates that lost to it, and the human-readable
// reason the winner was chosen. Losers are persisted only here; the
// FieldDecision itself is not stored anywhere else.
type FieldChange struct {
	Old    any              `json:"old"`
	New    any              `json:"new"`
	Tier   Tier             `json:"tier,omitempty"`
	Losers []FieldCandidate `json:"losers,omitempty"`
	Reason string           `json:"reason,omitempty"`
}
