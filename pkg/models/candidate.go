package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Match Types
// ============================================================================

// MatchType tags how a candidate was matched against an incoming record.
type MatchType string

const (
	MatchTypeCombined     MatchType = "combined"
	MatchTypeEmail        MatchType = "email"
	MatchTypePhone        MatchType = "phone"
	MatchTypeFuzzyHigh    MatchType = "fuzzy_high"
	MatchTypeFuzzyReview  MatchType = "fuzzy_review"
	MatchTypeFuzzyLow     MatchType = "fuzzy_low"
	MatchTypeAmbiguous    MatchType = "ambiguous"
	MatchTypeNone         MatchType = "none"
	MatchTypeInsufficient MatchType = "insufficient"
)

// ValidMatchTypes contains all valid match type values.
var ValidMatchTypes = []MatchType{
	MatchTypeCombined, MatchTypeEmail, MatchTypePhone,
	MatchTypeFuzzyHigh, MatchTypeFuzzyReview, MatchTypeFuzzyLow,
	MatchTypeAmbiguous, MatchTypeNone, MatchTypeInsufficient,
}

// IsValidMatchType checks if the given match type is valid.
func IsValidMatchType(m MatchType) bool {
	for _, v := range ValidMatchTypes {
		if v == m {
			return true
		}
	}
	return false
}

// IsDirect reports whether the match type identifies a single entity the
// loader may update without review.
func (m MatchType) IsDirect() bool {
	return m == MatchTypeCombined || m == MatchTypeEmail || m == MatchTypePhone
}

// ============================================================================
// Candidate Status
// ============================================================================

// CandidateStatus represents the review state of a match candidate.
type CandidateStatus string

const (
	CandidateStatusPending    CandidateStatus = "pending"
	CandidateStatusAccepted   CandidateStatus = "accepted"
	CandidateStatusRejected   CandidateStatus = "rejected"
	CandidateStatusDeferred   CandidateStatus = "deferred"
	CandidateStatusAutoMerged CandidateStatus = "auto_merged"
)

// ValidCandidateStatuses contains all valid status values.
var ValidCandidateStatuses = []CandidateStatus{
	CandidateStatusPending, CandidateStatusAccepted, CandidateStatusRejected,
	CandidateStatusDeferred, CandidateStatusAutoMerged,
}

// IsValidCandidateStatus checks if the given status is valid.
func IsValidCandidateStatus(s CandidateStatus) bool {
	for _, v := range ValidCandidateStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Match Candidate Model
// ============================================================================

// MatchCandidate is a persisted duplicate suggestion for one
// (staging row, entity) pair within a run. Immutable once created except
// for its decision state.
type MatchCandidate struct {
	ID          uuid.UUID `json:"id"`
	RunID       uuid.UUID `json:"run_id"`
	SourceRowID string    `json:"source_row_id"`

	// EntityID is the suggested surviving entity. MergedEntityID is the
	// entity the staging row itself produced (set once the row has been
	// loaded); a merge collapses MergedEntityID into EntityID.
	EntityID       uuid.UUID  `json:"entity_id"`
	MergedEntityID *uuid.UUID `json:"merged_entity_id,omitempty"`

	MatchType  MatchType          `json:"match_type"`
	Confidence float64            `json:"confidence"` // 0.0-1.0
	Features   map[string]float64 `json:"features,omitempty"`

	// Incoming payload snapshot, so review and merge do not depend on the
	// staging tables still holding the row.
	IncomingPayload map[string]string `json:"incoming_payload,omitempty"`

	Status    CandidateStatus `json:"status"`
	DecidedBy *uuid.UUID      `json:"decided_by,omitempty"`
	DecidedAt *time.Time      `json:"decided_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsReviewable reports whether the candidate may still be merged,
// rejected, or deferred.
func (c *MatchCandidate) IsReviewable() bool {
	return c.Status == CandidateStatusPending || c.Status == CandidateStatusDeferred
}

// IsAutoMergeable reports whether the candidate's confidence and type
// allow merging without an operator decision. The pipeline never sweeps
// candidates itself; this is the gate for an external caller that does.
func (c *MatchCandidate) IsAutoMergeable(autoThreshold float64) bool {
	return c.MatchType == MatchTypeFuzzyHigh && c.Confidence >= autoThreshold
}
