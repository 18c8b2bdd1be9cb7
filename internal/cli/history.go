package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/errs"
	"github.com/roach88/strata/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Root     string
	Suite    string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded protocol runs",
		Long: `List runs from the ledger written by "strata run --db".

Without filters the latest run of every protocol is shown. --root lists
every run of one protocol, oldest first; --suite lists the runs of one
suite invocation.

Example:
  strata history --db runs.db
  strata history --db runs.db --root ./work/protocols/solvation`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run ledger (required)")
	cmd.Flags().StringVar(&opts.Root, "root", "", "protocol root directory")
	cmd.Flags().StringVar(&opts.Suite, "suite", "", "suite ID")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	// Opening would create an empty ledger; a typo should not.
	if _, err := os.Stat(opts.Database); err != nil {
		return out.Fail(ExitCommandError, "database not found", errs.NotFound(opts.Database, "run ledger not found"))
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	var runs []store.RunRecord
	switch {
	case opts.Root != "":
		root, absErr := filepath.Abs(opts.Root)
		if absErr != nil {
			return out.Fail(ExitCommandError, "invalid root", absErr)
		}
		runs, err = st.ReadRuns(ctx, root)
	case opts.Suite != "":
		runs, err = st.ReadSuite(ctx, opts.Suite)
	default:
		runs, err = st.LatestRuns(ctx)
	}
	if err != nil {
		return out.Fail(ExitCommandError, "failed to read runs", err)
	}

	switch opts.Format {
	case "json":
		return out.Success(runs)
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Started", "Protocol", "State", "Exit", "Verdict", "Duration", "Forced"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.StartedAt.Format(time.RFC3339),
				r.Name,
				r.State,
				optionalCode(r.ExitCode),
				optionalCode(r.SuccessCode),
				r.Duration().Round(time.Millisecond),
				r.Forced,
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	default:
		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s %s %s exit=%s verdict=%s",
				r.StartedAt.Format(time.RFC3339), r.Name, r.State,
				optionalCode(r.ExitCode), optionalCode(r.SuccessCode))
			if r.Forced {
				line += " forced"
			}
			if r.Error != "" {
				line += " error=" + strconv.Quote(r.Error)
			}
			fmt.Fprintln(w, line)
		}
		return nil
	}
}

func optionalCode(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
