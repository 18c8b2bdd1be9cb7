package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/errs"
	"github.com/roach88/strata/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Defaults string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <protocols-dir>",
		Short: "Report the recorded outcome of every protocol",
		Long: `Discover every protocol under the directory and classify its recorded
outcome. Nothing is run.

Exit code is 1 when any protocol failed or errored.

Example:
  strata report ./work/protocols
  strata report --format table ./work/protocols`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Defaults, "defaults", "", "INI file overlaid on the built-in protocol defaults")

	return cmd
}

func runReport(opts *ReportOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(dir)
	if err != nil {
		return out.Fail(ExitCommandError, "cannot read protocols", errs.NotFound(dir, "protocols directory not found"))
	}
	if !info.IsDir() {
		return out.Fail(ExitCommandError, "cannot read protocols", errs.NotADirectory(dir, "protocols path is not a directory"))
	}

	defaults, err := loadDefaults(opts.Defaults)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to load protocol defaults", err)
	}

	rep := report.Collect(dir, defaults)
	switch opts.Format {
	case "json":
		if err := out.Success(rep); err != nil {
			return err
		}
	case "table":
		if err := report.WriteTable(out.Writer, rep); err != nil {
			return err
		}
	default:
		if err := report.WriteText(out.Writer, rep); err != nil {
			return err
		}
	}

	if rep.HasFailures() || len(rep.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d failed, %d errored", rep.Failed, rep.Errored))
	}
	return nil
}
