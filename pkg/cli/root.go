package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Version string
	DryRun  bool
}

// NewRootCommand creates the root command for the reconciler CLI.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "reconciler",
		Short:         "Contact record reconciliation pipeline",
		Long:          "Loads staging extracts into the core contact store, scores fuzzy duplicate candidates, and executes reviewed merges.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "evaluate without writing to the database")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewCandidatesCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))

	return cmd
}
