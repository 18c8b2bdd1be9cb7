package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/strata/internal/errs"
	"github.com/roach88/strata/internal/runner"
)

// File names inside a protocol.
const (
	MetaFile        = "meta.ini"
	ExitCodeFile    = "EXIT_CODE"
	SuccessCodeFile = "SUCCESS_CODE"
	StdoutFile      = "stdout.log"
	StderrFile      = "stderr.log"
)

// Protocol is one test case identified by its root directory.
//
// Metadata is parsed once by Open and never changes afterwards. The exit code
// is cached in memory after a run or after the first successful read of the
// record on disk.
//
// A Protocol is not safe for concurrent use. Distinct protocols with distinct
// roots share no state and may run concurrently.
type Protocol struct {
	root     string
	metaPath string
	meta     Metadata

	launcher runner.Launcher
	logger   *slog.Logger

	exitCode *int
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithLauncher sets the process launcher. Defaults to runner.ExecLauncher.
func WithLauncher(l runner.Launcher) Option {
	return func(p *Protocol) { p.launcher = l }
}

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) { p.logger = l }
}

// Open creates a Protocol from the path of a metadata file, or of a directory
// containing meta.ini. In the former case the root is the file's parent
// directory.
func Open(path string, defaults Defaults, opts ...Option) (*Protocol, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NotFound(path, "protocol not found")
	}
	if err != nil {
		return nil, fmt.Errorf("open protocol: %w", err)
	}

	p := &Protocol{
		launcher: runner.ExecLauncher{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if info.IsDir() {
		p.root = path
		p.metaPath = filepath.Join(path, MetaFile)
		if _, err := os.Stat(p.metaPath); errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound(p.metaPath, "metadata file not found")
		} else if err != nil {
			return nil, fmt.Errorf("open protocol: %w", err)
		}
	} else {
		p.root = filepath.Dir(path)
		p.metaPath = path
	}

	for _, opt := range opts {
		opt(p)
	}

	meta, err := ParseMetadata(p.metaPath, defaults)
	if err != nil {
		return nil, err
	}
	p.meta = meta
	return p, nil
}

// Root returns the root directory.
func (p *Protocol) Root() string { return p.root }

// MetaPath returns the path of the metadata file.
func (p *Protocol) MetaPath() string { return p.metaPath }

// Metadata returns the resolved metadata.
func (p *Protocol) Metadata() Metadata { return p.meta }

// Script returns the command launched by Run.
func (p *Protocol) Script() string { return p.meta.Script }

// Name returns the metadata name, or the root path when none is set.
func (p *Protocol) Name() string {
	if p.meta.Name != "" {
		return p.meta.Name
	}
	return p.root
}

// LogDir returns the directory holding run artifacts.
func (p *Protocol) LogDir() string {
	if filepath.IsAbs(p.meta.LogDir) {
		return p.meta.LogDir
	}
	return filepath.Join(p.root, p.meta.LogDir)
}

// StdoutPath returns the path of the captured standard output.
func (p *Protocol) StdoutPath() string { return filepath.Join(p.LogDir(), StdoutFile) }

// StderrPath returns the path of the captured standard error.
func (p *Protocol) StderrPath() string { return filepath.Join(p.LogDir(), StderrFile) }

// ExitCodePath returns the path of the exit code record.
func (p *Protocol) ExitCodePath() string { return filepath.Join(p.LogDir(), ExitCodeFile) }

// SuccessCodePath returns the path of the script-owned success record.
func (p *Protocol) SuccessCodePath() string { return filepath.Join(p.LogDir(), SuccessCodeFile) }

// Run executes the script unless its exit code is already known. With force
// the script runs regardless.
//
// Failures to start the script or to finish before the timeout are returned
// as errors and leave no exit code behind. A forced run discards the
// previous exit code and logs before launching.
func (p *Protocol) Run(ctx context.Context, force bool) error {
	if !force {
		code, ok, err := p.ExitCode()
		if err != nil {
			return err
		}
		if ok {
			p.logger.Debug("protocol already ran", "protocol", p.Name(), "exit_code", code)
			return nil
		}
	}

	if err := p.ensureLogDir(); err != nil {
		return err
	}
	if force {
		if err := p.reset(); err != nil {
			return fmt.Errorf("run protocol %s: %w", p.Name(), err)
		}
	}

	p.logger.Info("running protocol", "protocol", p.Name(), "root", p.root, "script", p.meta.Script)
	code, err := p.launcher.Launch(ctx, runner.Command{
		Script:     p.meta.Script,
		Dir:        p.root,
		StdoutPath: p.StdoutPath(),
		StderrPath: p.StderrPath(),
		Timeout:    p.meta.Timeout,
	})
	if err != nil {
		return fmt.Errorf("run protocol %s: %w", p.Name(), err)
	}

	if err := writeCode(p.ExitCodePath(), code); err != nil {
		return fmt.Errorf("run protocol %s: %w", p.Name(), err)
	}
	p.exitCode = &code
	p.logger.Info("protocol finished", "protocol", p.Name(), "exit_code", code)
	return nil
}

// reset removes the records of the previous run. SUCCESS_CODE belongs to
// the script and is left alone.
func (p *Protocol) reset() error {
	p.exitCode = nil
	for _, path := range []string{p.ExitCodePath(), p.StdoutPath(), p.StderrPath()} {
		if err := removeRecord(path); err != nil {
			return err
		}
	}
	return nil
}

// ensureLogDir creates the log directory. Concurrent creation is tolerated.
func (p *Protocol) ensureLogDir() error {
	dir := p.LogDir()
	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		return errs.NotADirectory(dir, "log directory is not a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	return nil
}

// ExitCode returns the exit code of the last run. ok is false when the
// script never completed for this root. A record that exists but cannot be
// parsed is an error.
func (p *Protocol) ExitCode() (code int, ok bool, err error) {
	if p.exitCode != nil {
		return *p.exitCode, true, nil
	}
	code, ok, err = readCode(p.ExitCodePath())
	if err != nil || !ok {
		return 0, ok, err
	}
	p.exitCode = &code
	return code, true, nil
}

// SuccessCode returns the verdict the script wrote, if any. It is read from
// disk on every call and is independent of the exit code.
func (p *Protocol) SuccessCode() (code int, ok bool, err error) {
	return readCode(p.SuccessCodePath())
}

// Stdout returns the lines of the captured standard output. Each range over
// the sequence reopens the file. If the protocol never ran, the sequence
// yields a single errs.ErrProtocolNotRun error.
func (p *Protocol) Stdout() iter.Seq2[string, error] {
	return lines(p.StdoutPath())
}

// Stderr is the standard error counterpart of Stdout.
func (p *Protocol) Stderr() iter.Seq2[string, error] {
	return lines(p.StderrPath())
}

// State classifies the outcome recorded for this protocol.
func (p *Protocol) State() (State, error) {
	exit, ok, err := p.ExitCode()
	if err != nil {
		return StateNotRun, err
	}
	if !ok {
		return StateNotRun, nil
	}
	if exit != 0 {
		return StateErroredScript, nil
	}
	success, ok, err := p.SuccessCode()
	if err != nil {
		return StateUnscored, err
	}
	switch {
	case !ok:
		return StateUnscored, nil
	case success != 0:
		return StateFailed, nil
	default:
		return StateSucceeded, nil
	}
}
