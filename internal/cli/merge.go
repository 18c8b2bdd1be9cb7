package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/overlay"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Ignore []string
	DryRun bool
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <destination> <source>...",
		Short: "Overlay source directories onto a destination",
		Long: `Merge the sources into the destination in order. Where several sources
hold the same relative path, the last one wins. Paths containing an ignore
motif are skipped, and so is everything below an ignored directory. ".git"
is always ignored.

With --dry-run the merge plan is printed and nothing is written.

Example:
  strata merge ./work ./base ./site -I .cache
  strata merge --dry-run --format table ./work ./base ./site`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Ignore, "ignore", "I", nil, "exclusion motif (repeatable)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the merge plan without writing")

	return cmd
}

// MergeOutput is the JSON payload of the merge command.
type MergeOutput struct {
	Destination string          `json:"destination"`
	DryRun      bool            `json:"dry_run"`
	Entries     []overlay.Entry `json:"entries"`
}

func runMerge(opts *MergeOptions, destination string, sources []string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd)

	suite := &config.Suite{Destination: destination, Overlays: sources, Ignore: opts.Ignore}
	if err := suite.Validate(); err != nil {
		return out.Fail(ExitCommandError, "invalid merge", err)
	}

	merger := overlay.New(nil, logger)
	ex := suite.IgnoreSet()

	plan, err := merger.Plan(sources, ex)
	if err != nil {
		return out.Fail(ExitCommandError, "merge failed", err)
	}
	if !opts.DryRun {
		if err := merger.Merge(sources, destination, ex); err != nil {
			return out.Fail(ExitCommandError, "merge failed", err)
		}
	}

	entries := plan.Entries()
	switch opts.Format {
	case "json":
		return out.Success(MergeOutput{Destination: destination, DryRun: opts.DryRun, Entries: entries})
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Path", "Kind", "Source"})
		for _, e := range entries {
			kind := "file"
			if e.Dir {
				kind = "dir"
			}
			t.AppendRow(table.Row{e.Rel, kind, e.Source})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	default:
		w := cmd.OutOrStdout()
		if opts.DryRun {
			for _, e := range entries {
				fmt.Fprintf(w, "%s <- %s\n", e.Rel, e.Origin)
			}
		}
		verb := "merged"
		if opts.DryRun {
			verb = "would merge"
		}
		fmt.Fprintf(w, "%s %d entries from %d sources into %s\n", verb, len(entries), len(sources), destination)
		return nil
	}
}
