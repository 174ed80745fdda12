package models

import (
	"time"

	"github.com/google/uuid"
)

// MergeDecisionType records how a merge came to be executed.
type MergeDecisionType string

const (
	MergeDecisionManual MergeDecisionType = "manual"
	MergeDecisionAuto   MergeDecisionType = "auto"
	MergeDecisionUndo   MergeDecisionType = "undo"
)

// IsValidMergeDecisionType checks if the given decision type is valid.
func IsValidMergeDecisionType(d MergeDecisionType) bool {
	switch d {
	case MergeDecisionManual, MergeDecisionAuto, MergeDecisionUndo:
		return true
	default:
		return false
	}
}

// UndoPayload is a self-contained snapshot sufficient to reverse a merge:
// the primary entity's pre-merge field values, the pre-merge state of every
// mapping row the merge touched, and the merged entity's pre-merge deletion
// state.
type UndoPayload struct {
	PrimaryFields      map[string]string `json:"primary_fields"`
	Mappings           []MappingState    `json:"mappings"`
	MergedEntityFields map[string]string `json:"merged_entity_fields"`
	MergedWasDeleted   bool              `json:"merged_was_deleted"`
}

// MergeRecord is the audit-grade transaction log entry for a merge or an
// undo. Records are immutable once created; an undo creates a new record
// of type undo referencing the original rather than mutating it.
type MergeRecord struct {
	ID uuid.UUID `json:"id"`

	CandidateID     *uuid.UUID `json:"candidate_id,omitempty"`
	PrimaryEntityID uuid.UUID  `json:"primary_entity_id"`
	MergedEntityID  uuid.UUID  `json:"merged_entity_id"`

	DecisionType MergeDecisionType `json:"decision_type"`

	BeforeSnapshot map[string]string `json:"before_snapshot"`
	AfterSnapshot  map[string]string `json:"after_snapshot"`
	UndoPayload    *UndoPayload      `json:"undo_payload,omitempty"`

	// UndoOfID links an undo record back to the merge it reversed.
	UndoOfID *uuid.UUID `json:"undo_of_id,omitempty"`

	ExecutedBy *uuid.UUID `json:"executed_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
