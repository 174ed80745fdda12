package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics emits reconciliation counters through the global OpenTelemetry
// meter. Without a configured meter provider the counters are no-ops, so
// services can record unconditionally.
type Metrics struct {
	loadOutcomes     metric.Int64Counter
	candidateBuckets metric.Int64Counter
	mergeDecisions   metric.Int64Counter
}

// NewMetrics registers the reconciliation instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("contact-reconciler")

	loadOutcomes, err := meter.Int64Counter("reconciler.load.outcomes",
		metric.WithDescription("Record-level load outcomes by bucket"))
	if err != nil {
		return nil, err
	}

	candidateBuckets, err := meter.Int64Counter("reconciler.candidates.scored",
		metric.WithDescription("Fuzzy-scored rows by confidence bucket"))
	if err != nil {
		return nil, err
	}

	mergeDecisions, err := meter.Int64Counter("reconciler.merges.decided",
		metric.WithDescription("Merge and undo decisions by type"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		loadOutcomes:     loadOutcomes,
		candidateBuckets: candidateBuckets,
		mergeDecisions:   mergeDecisions,
	}, nil
}

// RecordLoadOutcome counts one record-level load outcome.
func (m *Metrics) RecordLoadOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.loadOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCandidateBucket counts one scored pair by confidence bucket
// (high, review, low).
func (m *Metrics) RecordCandidateBucket(ctx context.Context, bucket string) {
	if m == nil {
		return
	}
	m.candidateBuckets.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
}

// RecordMergeDecision counts one merge decision by type
// (manual, auto, undo).
func (m *Metrics) RecordMergeDecision(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	m.mergeDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}
