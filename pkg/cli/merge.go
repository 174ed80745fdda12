package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

// MergeOptions holds flags shared by the merge subcommands.
type MergeOptions struct {
	*RootOptions
	UserID    string
	Overrides []string
}

// NewMergeCommand creates the merge command group.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Execute, undo, or resolve merge candidates",
	}

	cmd.PersistentFlags().StringVar(&opts.UserID, "user", "", "id of the operator making the decision")

	execute := &cobra.Command{
		Use:   "execute <candidate-id>",
		Short: "Merge a candidate's duplicate entity into its primary",
		Long: `Merge a candidate's duplicate entity into its primary.

Survivorship decides each field from the configured tier order; --override
pins a field to an explicit value as a manual decision. The duplicate is
soft-deleted, its identifier mappings are repointed at the survivor, and an
undoable merge record is written.

Example:
  reconciler merge execute 6f1c... --user 41ab... --override "first_name=Jane M"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMergeExecute(cmd, opts, args[0])
		},
	}
	execute.Flags().StringArrayVar(&opts.Overrides, "override", nil, "field=value override applied as a manual decision (repeatable)")

	undo := &cobra.Command{
		Use:   "undo <merge-record-id>",
		Short: "Reverse a previously executed merge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMergeUndo(cmd, opts, args[0])
		},
	}

	reject := &cobra.Command{
		Use:   "reject <candidate-id>",
		Short: "Reject a pending or deferred candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMergeDecision(cmd, opts, args[0], "reject")
		},
	}

	deferCmd := &cobra.Command{
		Use:   "defer <candidate-id>",
		Short: "Defer a pending candidate for later review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMergeDecision(cmd, opts, args[0], "defer")
		},
	}

	cmd.AddCommand(execute, undo, reject, deferCmd)
	return cmd
}

func runMergeExecute(cmd *cobra.Command, opts *MergeOptions, rawCandidateID string) error {
	ctx := cmd.Context()

	candidateID, err := uuid.Parse(rawCandidateID)
	if err != nil {
		return fmt.Errorf("invalid candidate id %q: %w", rawCandidateID, err)
	}

	userID, err := parseOptionalUUID(opts.UserID)
	if err != nil {
		return err
	}

	overrides, err := parseOverrides(opts.Overrides)
	if err != nil {
		return err
	}

	env, err := openPipeline(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	var record *models.MergeRecord
	err = env.withScope(ctx, func(ctx context.Context) error {
		var mergeErr error
		record, mergeErr = env.merger.ExecuteMerge(ctx, candidateID, userID, overrides, opts.DryRun)
		return mergeErr
	})
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	return printJSON(record)
}

func runMergeUndo(cmd *cobra.Command, opts *MergeOptions, rawRecordID string) error {
	ctx := cmd.Context()

	recordID, err := uuid.Parse(rawRecordID)
	if err != nil {
		return fmt.Errorf("invalid merge record id %q: %w", rawRecordID, err)
	}

	userID, err := parseOptionalUUID(opts.UserID)
	if err != nil {
		return err
	}

	env, err := openPipeline(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	var record *models.MergeRecord
	err = env.withScope(ctx, func(ctx context.Context) error {
		var undoErr error
		record, undoErr = env.merger.UndoMerge(ctx, recordID, userID, opts.DryRun)
		return undoErr
	})
	if err != nil {
		return fmt.Errorf("undo failed: %w", err)
	}

	return printJSON(record)
}

func runMergeDecision(cmd *cobra.Command, opts *MergeOptions, rawCandidateID, decision string) error {
	ctx := cmd.Context()

	candidateID, err := uuid.Parse(rawCandidateID)
	if err != nil {
		return fmt.Errorf("invalid candidate id %q: %w", rawCandidateID, err)
	}

	userID, err := parseOptionalUUID(opts.UserID)
	if err != nil {
		return err
	}

	env, err := openPipeline(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	err = env.withScope(ctx, func(ctx context.Context) error {
		switch decision {
		case "reject":
			return env.merger.RejectCandidate(ctx, candidateID, userID)
		case "defer":
			return env.merger.DeferCandidate(ctx, candidateID, userID)
		default:
			return fmt.Errorf("unknown decision %q", decision)
		}
	})
	if err != nil {
		return fmt.Errorf("%s failed: %w", decision, err)
	}

	past := "rejected"
	if decision == "defer" {
		past = "deferred"
	}
	fmt.Printf("candidate %s %s\n", candidateID, past)
	return nil
}

func parseOptionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return &id, nil
}

// parseOverrides converts repeated field=value flags into the override map
// handed to survivorship as manual decisions.
func parseOverrides(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(raw))
	for _, pair := range raw {
		field, value, found := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !found || field == "" {
			return nil, fmt.Errorf("invalid override %q: expected field=value", pair)
		}
		overrides[field] = value
	}
	return overrides, nil
}
