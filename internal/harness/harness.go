package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/overlay"
	"github.com/roach88/strata/internal/protocol"
	"github.com/roach88/strata/internal/runner"
	"github.com/roach88/strata/internal/store"
)

// IDGenerator produces run and suite identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDs.
type UUIDv7Generator struct{}

// Generate implements IDGenerator.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Harness runs suites.
type Harness struct {
	merger   *overlay.Merger
	defaults protocol.Defaults
	store    *store.Store
	launcher runner.Launcher
	logger   *slog.Logger
	now      func() time.Time
	ids      IDGenerator
	progress func(Outcome)
}

// Option configures a Harness.
type Option func(*Harness)

// WithStore records every script execution in s.
func WithStore(s *store.Store) Option {
	return func(h *Harness) { h.store = s }
}

// WithDefaults sets the protocol defaults. Defaults to
// protocol.BuiltinDefaults.
func WithDefaults(d protocol.Defaults) Option {
	return func(h *Harness) { h.defaults = d }
}

// WithMerger sets the overlay merger. Defaults to one on the OS filesystem.
func WithMerger(m *overlay.Merger) Option {
	return func(h *Harness) { h.merger = m }
}

// WithLauncher sets the process launcher.
func WithLauncher(l runner.Launcher) Option {
	return func(h *Harness) { h.launcher = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithClock sets the time source for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// WithIDs sets the identifier generator.
func WithIDs(ids IDGenerator) Option {
	return func(h *Harness) { h.ids = ids }
}

// WithProgress registers a callback invoked after each protocol.
func WithProgress(fn func(Outcome)) Option {
	return func(h *Harness) { h.progress = fn }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		defaults: protocol.BuiltinDefaults(),
		launcher: runner.ExecLauncher{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.merger == nil {
		h.merger = overlay.New(nil, h.logger)
	}
	return h
}

// Assemble merges the suite's layers into its destination.
func (h *Harness) Assemble(cfg *config.Suite) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid suite: %w", err)
	}

	ex := cfg.IgnoreSet()
	groups := []struct {
		name        string
		sources     []string
		destination string
	}{
		{"layers", cfg.Layers(), cfg.Destination},
		{"inputs", cfg.Inputs, cfg.InputsDir()},
		{"protocols", cfg.Protocols, cfg.ProtocolsDir()},
	}

	for _, g := range groups {
		if len(g.sources) == 0 {
			h.logger.Debug("nothing to merge", "group", g.name)
			continue
		}
		if err := h.merger.Merge(g.sources, g.destination, ex); err != nil {
			return fmt.Errorf("merge %s: %w", g.name, err)
		}
		h.logger.Info("merged", "group", g.name, "sources", len(g.sources), "destination", g.destination)
	}
	return nil
}

// Run assembles the suite and runs every protocol under its protocols
// directory.
//
// Assembly errors are returned. Per-protocol errors are collected in the
// result and do not stop the run.
func (h *Harness) Run(ctx context.Context, cfg *config.Suite) (*Result, error) {
	if err := h.Assemble(cfg); err != nil {
		return nil, err
	}
	return h.RunProtocols(ctx, cfg.ProtocolsDir(), cfg.Force, cfg.Timeout)
}

// RunProtocols runs every protocol under dir without assembling anything.
// A missing dir is an empty suite.
func (h *Harness) RunProtocols(ctx context.Context, dir string, force bool, timeout time.Duration) (*Result, error) {
	result := NewResult(h.ids.Generate(), dir)

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		h.logger.Warn("no protocols directory", "root", dir)
		return result, nil
	}

	launcher := &recordingLauncher{inner: h.launcher, timeout: timeout, now: h.now}
	opts := []protocol.Option{
		protocol.WithLauncher(launcher),
		protocol.WithLogger(h.logger),
	}

	for p, err := range protocol.Discover(dir, h.defaults, opts...) {
		if err != nil {
			h.logger.Error("cannot open protocol", "error", err)
			result.AddError(err.Error())
			continue
		}

		outcome := h.runOne(ctx, result.SuiteID, p, force, launcher)
		if outcome.Error != "" {
			result.AddError(outcome.Error)
		}
		result.AddOutcome(outcome)
		if h.progress != nil {
			h.progress(outcome)
		}

		if ctx.Err() != nil {
			result.AddError(fmt.Sprintf("suite interrupted: %v", ctx.Err()))
			break
		}
	}

	h.logger.Info("suite finished",
		"suite", result.SuiteID,
		"protocols", len(result.Outcomes),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (h *Harness) runOne(ctx context.Context, suiteID string, p *protocol.Protocol, force bool, launcher *recordingLauncher) Outcome {
	outcome := Outcome{Name: p.Name(), Root: p.Root()}

	runErr := p.Run(ctx, force)
	if runErr != nil {
		outcome.Error = runErr.Error()
	}

	state, err := p.State()
	if err != nil && runErr == nil {
		outcome.Error = err.Error()
	}
	outcome.State = state
	if code, ok, err := p.ExitCode(); err == nil && ok {
		outcome.ExitCode = &code
	}

	rec := launcher.take()
	if rec == nil {
		return outcome
	}
	outcome.Ran = true
	outcome.RunID = h.ids.Generate()

	if h.store != nil {
		if err := h.record(ctx, suiteID, p, outcome, rec, force); err != nil {
			h.logger.Error("cannot record run", "protocol", outcome.Name, "error", err)
			if outcome.Error == "" {
				outcome.Error = err.Error()
			}
		}
	}
	return outcome
}

func (h *Harness) record(ctx context.Context, suiteID string, p *protocol.Protocol, o Outcome, rec *launch, force bool) error {
	row := store.RunRecord{
		ID:         o.RunID,
		SuiteID:    suiteID,
		Root:       o.Root,
		Name:       o.Name,
		Script:     p.Script(),
		StartedAt:  rec.started,
		FinishedAt: rec.finished,
		State:      o.State.String(),
		Forced:     force,
		Error:      o.Error,
	}
	if rec.err == nil {
		code := rec.code
		row.ExitCode = &code
		if success, ok, err := p.SuccessCode(); err == nil && ok {
			row.SuccessCode = &success
		}
	}

	// The ledger write must survive a cancelled suite.
	if _, err := h.store.WriteRun(context.WithoutCancel(ctx), row); err != nil {
		return fmt.Errorf("record run of %s: %w", o.Name, err)
	}
	return nil
}
