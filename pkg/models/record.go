package models

import (
	"github.com/google/uuid"
)

// ImportRun identifies one pipeline invocation over a source extract.
type ImportRun struct {
	ID             uuid.UUID `json:"id"`
	ExternalSystem string    `json:"external_system"`
	IngestVersion  string    `json:"ingest_version"`
}

// ImportRecord is one normalized staging row handed to the pipeline by the
// (out of scope) extraction layer. Payload keys are the flat field names in
// entity.go; values are already cleaned but not yet contact-normalized.
type ImportRecord struct {
	SourceRowID string            `json:"source_row_id"`
	ExternalID  string            `json:"external_id"`
	Payload     map[string]string `json:"payload"`

	// AlternateEmails and AlternatePhones are secondary contact points the
	// source carries outside the main payload fields.
	AlternateEmails []string `json:"alternate_emails,omitempty"`
	AlternatePhones []string `json:"alternate_phones,omitempty"`

	// SourceDeleted marks rows flagged deleted at the source; the loader
	// deactivates their mapping instead of applying field changes.
	SourceDeleted bool `json:"source_deleted,omitempty"`
}

// Field returns a payload value, blank when absent.
func (r *ImportRecord) Field(name string) string {
	return r.Payload[name]
}
