package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

// CandidatesOptions holds flags for the candidates command.
type CandidatesOptions struct {
	*RootOptions
	Input         string
	System        string
	IngestVersion string
	RunID         string
}

// NewCandidatesCommand creates the candidates command.
func NewCandidatesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CandidatesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Score fuzzy duplicate candidates for a staging extract",
		Long: `Score fuzzy duplicate candidates for a staging extract.

Runs the weighted fuzzy scorer over rows that had no direct deterministic
match, persisting suggestions at or above the review threshold for later
merge decisions. Rows with a direct match or without enough data to score
are skipped. Prints the scoring summary as JSON.

Example:
  reconciler candidates --input extract.jsonl --system legacy_crm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCandidates(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "path to JSON-lines staging extract, or - for stdin (required)")
	cmd.Flags().StringVar(&opts.System, "system", "", "source system identifier (required)")
	cmd.Flags().StringVar(&opts.IngestVersion, "ingest-version", "", "version label of the extract")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id to tag suggestions with (defaults to a new UUID)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("system")

	return cmd
}

func runCandidates(cmd *cobra.Command, opts *CandidatesOptions) error {
	ctx := cmd.Context()

	run, err := buildRun(opts.RunID, opts.System, opts.IngestVersion)
	if err != nil {
		return err
	}

	records, err := readRecords(opts.Input)
	if err != nil {
		return err
	}

	env, err := openPipeline(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	var summary *models.CandidateSummary
	err = env.withScope(ctx, func(ctx context.Context) error {
		var scoreErr error
		summary, scoreErr = env.scorer.GenerateCandidates(ctx, run, records, opts.DryRun)
		return scoreErr
	})
	if err != nil {
		return fmt.Errorf("candidate generation failed: %w", err)
	}

	env.logger.Info("candidate generation complete",
		zap.String("run_id", run.ID.String()),
		zap.Int("rows_considered", summary.RowsConsidered),
		zap.Int("suggestions_created", summary.SuggestionsCreated),
		zap.Bool("dry_run", summary.DryRun))

	return printJSON(summary)
}
