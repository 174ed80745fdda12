package models

import (
	"time"

	"github.com/google/uuid"
)

// Mapped entity types. Only contacts are reconciled today; the column
// exists so other record types can share the mapping table.
const (
	MappingEntityTypeContact = "contact"
)

// Deactivation reasons recorded when a mapping is soft-deleted.
const (
	DeactivationReasonMerged        = "merged"
	DeactivationReasonSourceDeleted = "source_deleted"
)

// ExternalIdentifierMapping links a (entity_type, external_system,
// external_id) key to an internal entity. At most one active mapping may
// exist per key; deactivated mappings are kept and may be reactivated by a
// later observation without losing first_seen_at.
type ExternalIdentifierMapping struct {
	ID             uuid.UUID `json:"id"`
	EntityType     string    `json:"entity_type"`
	ExternalSystem string    `json:"external_system"`
	ExternalID     string    `json:"external_id"`
	EntityID       uuid.UUID `json:"entity_id"`

	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	LastRunID   *uuid.UUID `json:"last_run_id,omitempty"`

	IsActive          bool    `json:"is_active"`
	DeactivatedReason *string `json:"deactivated_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MappingState captures a mapping row's mutable fields for undo payloads.
type MappingState struct {
	MappingID         uuid.UUID `json:"mapping_id"`
	EntityID          uuid.UUID `json:"entity_id"`
	IsActive          bool      `json:"is_active"`
	DeactivatedReason *string   `json:"deactivated_reason,omitempty"`
}
