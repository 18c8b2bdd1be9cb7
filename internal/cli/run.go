package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/harness"
	"github.com/roach88/strata/internal/protocol"
	"github.com/roach88/strata/internal/report"
	"github.com/roach88/strata/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	Config    string
	Base      string
	Overlays  []string
	Ignore    []string
	Inputs    []string
	Protocols []string
	Defaults  string
	Database  string
	Timeout   time.Duration
	Force     bool

	// IDs overrides the run ID generator (for testing).
	// If nil, defaults to harness.UUIDv7Generator.
	IDs harness.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [destination]",
		Short: "Assemble a workspace and run its protocols",
		Long: `Merge the base layer and overlays into the destination, merge inputs
into destination/inputs and protocols into destination/protocols, then run
every protocol found there and print a report.

Protocols that already have an exit code are not run again unless --force
is given. The destination may come from --config instead of the argument.

Example:
  strata run --base ./suite -O ./site -p ./checks ./work
  strata run --config strata.yaml --db runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			destination := ""
			if len(args) == 1 {
				destination = args[0]
			}
			return runSuite(opts, destination, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "suite configuration file (YAML)")
	cmd.Flags().StringVar(&opts.Base, "base", "", "base layer merged first")
	cmd.Flags().StringArrayVarP(&opts.Overlays, "overlay", "O", nil, "overlay layer (repeatable, later wins)")
	cmd.Flags().StringArrayVarP(&opts.Ignore, "ignore", "I", nil, "exclusion motif (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Inputs, "inputs", "i", nil, "inputs layer merged into destination/inputs (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Protocols, "protocol", "p", nil, "protocols layer merged into destination/protocols (repeatable)")
	cmd.Flags().StringVar(&opts.Defaults, "defaults", "", "INI file overlaid on the built-in protocol defaults")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run ledger (optional)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-protocol timeout when meta.ini sets none (0 = none)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "rerun protocols that already ran")

	return cmd
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Suite  *harness.Result `json:"suite"`
	Report *report.Report  `json:"report"`
}

func runSuite(opts *RunOptions, destination string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd)

	suite, err := loadSuite(opts, destination)
	if err != nil {
		return out.Fail(ExitCommandError, "invalid suite", err)
	}

	defaults, err := loadDefaults(suite.DefaultsPath())
	if err != nil {
		return out.Fail(ExitCommandError, "failed to load protocol defaults", err)
	}

	hopts := []harness.Option{
		harness.WithDefaults(defaults),
		harness.WithLogger(logger),
	}
	if opts.IDs != nil {
		hopts = append(hopts, harness.WithIDs(opts.IDs))
	}
	if opts.Format == "text" {
		hopts = append(hopts, harness.WithProgress(progressPrinter(cmd.OutOrStdout())))
	}

	if suite.Database != "" {
		logger.Info("opening run ledger", "path", suite.Database)
		st, err := store.Open(suite.Database)
		if err != nil {
			return out.Fail(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		hopts = append(hopts, harness.WithStore(st))
	}

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	result, err := harness.New(hopts...).Run(ctx, suite)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to assemble suite", err)
	}

	rep := report.Collect(suite.ProtocolsDir(), defaults)
	if err := writeReport(out, rep, result); err != nil {
		return err
	}

	if !result.Pass || rep.HasFailures() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d protocols failed, %d errored, %d run errors", rep.Failed, rep.Errored, len(result.Errors)))
	}
	return nil
}

// loadSuite combines the configuration file with command-line flags.
// Flags win for scalars and append to lists. Paths come back absolute.
func loadSuite(opts *RunOptions, destination string) (*config.Suite, error) {
	suite := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, err
		}
		suite = loaded
	}

	suite = suite.Merge(&config.Suite{
		Destination: destination,
		Base:        opts.Base,
		Overlays:    opts.Overlays,
		Inputs:      opts.Inputs,
		Protocols:   opts.Protocols,
		Ignore:      opts.Ignore,
		Defaults:    opts.Defaults,
		Timeout:     opts.Timeout,
		Database:    opts.Database,
		Force:       opts.Force,
	})
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return suite.Absolute()
}

func loadDefaults(path string) (protocol.Defaults, error) {
	if path == "" {
		return protocol.BuiltinDefaults(), nil
	}
	return protocol.LoadDefaults(path)
}

// progressPrinter prints "name [LABEL]" as each protocol finishes.
func progressPrinter(w io.Writer) func(harness.Outcome) {
	return func(o harness.Outcome) {
		fmt.Fprintln(w, o.Name, o.Label())
	}
}

func writeReport(out *OutputFormatter, rep *report.Report, result *harness.Result) error {
	switch out.Format {
	case "json":
		resp := CLIResponse{
			Status:  "ok",
			Data:    RunOutput{Suite: result, Report: rep},
			SuiteID: result.SuiteID,
		}
		if !result.Pass || rep.HasFailures() {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_PROTOCOLS_FAILED",
				Message: fmt.Sprintf("%d failed, %d errored", rep.Failed, rep.Errored),
				Details: result.Errors,
			}
		}
		return out.Respond(resp)
	case "table":
		return report.WriteTable(out.Writer, rep)
	default:
		fmt.Fprintln(out.Writer)
		if err := report.WriteText(out.Writer, rep); err != nil {
			return err
		}
		for _, msg := range result.Errors {
			fmt.Fprintf(out.GetErrWriter(), "run error: %s\n", msg)
		}
		return nil
	}
}

// signalContext cancels on SIGINT or SIGTERM so the running script is
// stopped and the suite ends early.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	// Use command's context if available (for testing), otherwise create one
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
