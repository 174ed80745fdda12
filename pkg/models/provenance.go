package models

import (
	"context"

	"github.com/google/uuid"
)

// ProvenanceSource represents how a reconciliation mutation was triggered.
type ProvenanceSource string

const (
	SourcePipeline ProvenanceSource = "pipeline" // batch load / candidate generation
	SourceReview   ProvenanceSource = "review"   // operator decision on a candidate
	SourceAuto     ProvenanceSource = "auto"     // auto-merge of a high-confidence candidate
)

// IsValid returns true if the source is a valid provenance source.
func (s ProvenanceSource) IsValid() bool {
	switch s {
	case SourcePipeline, SourceReview, SourceAuto:
		return true
	default:
		return false
	}
}

// ProvenanceContext carries run and actor information through pipeline
// operations so audit entries can record who and which run touched a row.
type ProvenanceContext struct {
	Source         ProvenanceSource
	RunID          *uuid.UUID
	ExternalSystem string
	IngestVersion  string
	UserID         *uuid.UUID
}

type provenanceKey struct{}

// WithProvenance returns a new context with provenance attached.
func WithProvenance(ctx context.Context, p ProvenanceContext) context.Context {
	return context.WithValue(ctx, provenanceKey{}, p)
}

// GetProvenance retrieves provenance from the context.
func GetProvenance(ctx context.Context) (ProvenanceContext, bool) {
	p, ok := ctx.Value(provenanceKey{}).(ProvenanceContext)
	return p, ok
}

// WithRunProvenance returns a context carrying pipeline provenance for a run.
func WithRunProvenance(ctx context.Context, run *ImportRun) context.Context {
	runID := run.ID
	return WithProvenance(ctx, ProvenanceContext{
		Source:         SourcePipeline,
		RunID:          &runID,
		ExternalSystem: run.ExternalSystem,
		IngestVersion:  run.IngestVersion,
	})
}
