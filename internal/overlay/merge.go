package overlay

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/strata/internal/errs"
)

// Merger overlays ordered source trees onto a destination tree.
//
// A Merger is not safe for concurrent use against the same destination.
type Merger struct {
	fs     afero.Fs
	logger *slog.Logger
}

// New creates a Merger on fs. A nil fs selects the OS filesystem and a nil
// logger discards log output.
func New(fs afero.Fs, logger *slog.Logger) *Merger {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Merger{fs: fs, logger: logger}
}

// Merge copies an overlaid version of sources into destination.
//
// Sources are applied in order, so the last source defining a relative path
// determines its content. Entries whose path contains an excluded motif are
// skipped along with their subtree. The destination is created if needed and
// existing files in it are overwritten. Nothing is rolled back if copying
// fails halfway.
func (m *Merger) Merge(sources []string, destination string, ex Exclusions) error {
	table, err := m.Plan(sources, ex)
	if err != nil {
		return err
	}
	if err := m.checkDestination(destination); err != nil {
		return err
	}

	if err := m.fs.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", destination, err)
	}

	var files, dirs int
	for _, e := range table.Entries() {
		target := filepath.Join(destination, e.Rel)
		if e.Dir {
			if err := m.ensureDir(target); err != nil {
				return err
			}
			dirs++
			continue
		}
		if err := m.ensureDir(filepath.Dir(target)); err != nil {
			return err
		}
		if err := m.copyFile(e.Origin, target); err != nil {
			return err
		}
		files++
	}

	m.logger.Info("merged sources",
		"destination", destination,
		"sources", len(sources),
		"files", files,
		"dirs", dirs,
	)
	return nil
}

// Plan validates sources and returns the merge table without touching the
// destination.
func (m *Merger) Plan(sources []string, ex Exclusions) (*Table, error) {
	if err := m.checkSources(sources); err != nil {
		return nil, err
	}
	table, err := BuildTable(m.fs, sources, ex)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("built merge table",
		"sources", strings.Join(sources, ","),
		"entries", table.Len(),
		"exclusions", strings.Join(ex.Motifs(), ","),
	)
	return table, nil
}

// checkSources verifies every source before anything is written, so the
// returned error names all offending paths at once.
func (m *Merger) checkSources(sources []string) error {
	var bad SourceError
	for _, source := range sources {
		info, err := m.fs.Stat(source)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			bad.Missing = append(bad.Missing, source)
			bad.All = append(bad.All, source)
		case err != nil:
			return fmt.Errorf("stat source %s: %w", source, err)
		case !info.IsDir():
			bad.NotDirs = append(bad.NotDirs, source)
			bad.All = append(bad.All, source)
		}
	}
	if len(bad.All) > 0 {
		return &bad
	}
	return nil
}

func (m *Merger) checkDestination(destination string) error {
	info, err := m.fs.Stat(destination)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat destination %s: %w", destination, err)
	}
	if !info.IsDir() {
		return errs.NotADirectory(destination, "destination must be a directory")
	}
	return nil
}

func (m *Merger) ensureDir(path string) error {
	info, err := m.fs.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return errs.NotADirectory(path, "cannot create directory over a file")
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := m.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

func (m *Merger) copyFile(origin, target string) error {
	if info, err := m.fs.Stat(target); err == nil && info.IsDir() {
		return errs.NotADirectory(target, "cannot overwrite a directory with a file")
	}

	src, err := m.fs.Open(origin)
	if err != nil {
		return fmt.Errorf("open %s: %w", origin, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", origin, err)
	}
	perm := info.Mode().Perm()

	dst, err := m.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s to %s: %w", origin, target, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	// An overwritten file keeps its old mode unless reset.
	if err := m.fs.Chmod(target, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	return nil
}

// Merge overlays sources onto destination on the OS filesystem.
func Merge(sources []string, destination string, motifs ...string) error {
	return New(nil, nil).Merge(sources, destination, NewExclusions(motifs...))
}

// SourceError reports source paths that are missing or not directories.
//
// It matches errs.ErrNotADirectory for any offending source, and
// errs.ErrNotFound as well when at least one source does not exist.
type SourceError struct {
	// All lists every offending source in input order.
	All []string

	// Missing lists sources that do not exist.
	Missing []string

	// NotDirs lists sources that exist but are not directories.
	NotDirs []string
}

func (e *SourceError) Error() string {
	if len(e.All) == 1 {
		return fmt.Sprintf("one source path is not a directory: %s", e.All[0])
	}
	return fmt.Sprintf("some source paths are not directories: %s", strings.Join(e.All, ","))
}

// Is matches the errs sentinels by code.
func (e *SourceError) Is(target error) bool {
	t, ok := target.(*errs.Error)
	if !ok {
		return false
	}
	switch t.Code {
	case errs.CodeNotADirectory:
		return true
	case errs.CodeNotFound:
		return len(e.Missing) > 0
	}
	return false
}

// Unwrap returns one categorized error per offending source.
func (e *SourceError) Unwrap() []error {
	out := make([]error, 0, len(e.All))
	for _, p := range e.Missing {
		out = append(out, errs.NotFound(p, "source not found"))
	}
	for _, p := range e.NotDirs {
		out = append(out, errs.NotADirectory(p, "source is not a directory"))
	}
	return out
}
