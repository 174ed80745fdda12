package models

// LoadOutcome labels the record-level result buckets of a core load.
type LoadOutcome string

const (
	OutcomeCreated           LoadOutcome = "created"
	OutcomeUpdated           LoadOutcome = "updated"
	OutcomeReactivated       LoadOutcome = "reactivated"
	OutcomeDedupedAuto       LoadOutcome = "deduped_auto"
	OutcomeSkippedDuplicate  LoadOutcome = "skipped_duplicate"
	OutcomeSkippedNoChange   LoadOutcome = "skipped_no_change"
	OutcomeMissingExternalID LoadOutcome = "missing_external_id"
	OutcomeSoftDeleted       LoadOutcome = "soft_deleted"
	OutcomeError             LoadOutcome = "error"
)

// LoadSummary is the exact record-level accounting for one load batch.
// It is the pipeline's primary operational signal: replay verification
// compares these counters across runs.
type LoadSummary struct {
	RowsProcessed         int  `json:"rows_processed"`
	RowsCreated           int  `json:"rows_created"`
	RowsUpdated           int  `json:"rows_updated"`
	RowsReactivated       int  `json:"rows_reactivated"`
	RowsDedupedAuto       int  `json:"rows_deduped_auto"`
	RowsSkippedDuplicate  int  `json:"rows_skipped_duplicate"`
	RowsSkippedNoChange   int  `json:"rows_skipped_no_change"`
	RowsMissingExternalID int  `json:"rows_missing_external_id"`
	RowsSoftDeleted       int  `json:"rows_soft_deleted"`
	RowsErrored           int  `json:"rows_errored"`
	DryRun                bool `json:"dry_run"`
}

// Count increments the bucket for one record outcome.
func (s *LoadSummary) Count(outcome LoadOutcome) {
	switch outcome {
	case OutcomeCreated:
		s.RowsCreated++
	case OutcomeUpdated:
		s.RowsUpdated++
	case OutcomeReactivated:
		s.RowsReactivated++
	case OutcomeDedupedAuto:
		s.RowsDedupedAuto++
	case OutcomeSkippedDuplicate:
		s.RowsSkippedDuplicate++
	case OutcomeSkippedNoChange:
		s.RowsSkippedNoChange++
	case OutcomeMissingExternalID:
		s.RowsMissingExternalID++
	case OutcomeSoftDeleted:
		s.RowsSoftDeleted++
	case OutcomeError:
		s.RowsErrored++
	}
}

// CandidateSummary is the accounting for one candidate-generation pass.
type CandidateSummary struct {
	RowsConsidered      int  `json:"rows_considered"`
	SuggestionsCreated  int  `json:"suggestions_created"`
	HighConfidence      int  `json:"high_confidence"`
	ReviewBand          int  `json:"review_band"`
	LowScore            int  `json:"low_score"`
	SkippedInsufficient int  `json:"skipped_insufficient"`
	SkippedDirectMatch  int  `json:"skipped_direct_match"`
	SkippedExisting     int  `json:"skipped_existing"`
	RowsErrored         int  `json:"rows_errored"`
	DryRun              bool `json:"dry_run"`
}
