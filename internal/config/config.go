// Package config loads suite configuration: which layers to merge into a
// destination tree and how to run the protocols found there.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/overlay"
)

// DefaultsFileName is the protocol defaults file looked up in the base
// layer when no defaults file is configured.
const DefaultsFileName = "meta_default.ini"

// AlwaysIgnored motifs are excluded from every merge.
var AlwaysIgnored = []string{".git"}

// Suite describes one assembled workspace and its protocol run.
type Suite struct {
	// Destination is the directory the layers are merged into.
	Destination string `yaml:"destination"`

	// Base is the lowest layer. Optional.
	Base string `yaml:"base,omitempty"`

	// Overlays are merged over Base into Destination, later entries winning.
	Overlays []string `yaml:"overlays,omitempty"`

	// Inputs are merged into Destination/inputs.
	Inputs []string `yaml:"inputs,omitempty"`

	// Protocols are merged into Destination/protocols.
	Protocols []string `yaml:"protocols,omitempty"`

	// Ignore holds exclusion motifs matched as substrings of source paths.
	Ignore []string `yaml:"ignore,omitempty"`

	// Defaults is an INI file overlaid on the built-in protocol defaults.
	Defaults string `yaml:"defaults,omitempty"`

	// Timeout bounds each protocol script unless its metadata says otherwise.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Database is the run ledger path. Empty disables the ledger.
	Database string `yaml:"database,omitempty"`

	// Force reruns protocols that already have an exit code.
	Force bool `yaml:"force,omitempty"`
}

// Default returns an empty suite.
func Default() *Suite {
	return &Suite{}
}

// Load reads a suite file. Relative paths in the file are resolved against
// the file's directory. Unknown fields are rejected.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	suite.resolve(filepath.Dir(path))
	return &suite, nil
}

func (s *Suite) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	absAll := func(ps []string) {
		for i, p := range ps {
			ps[i] = abs(p)
		}
	}

	s.Destination = abs(s.Destination)
	s.Base = abs(s.Base)
	s.Defaults = abs(s.Defaults)
	s.Database = abs(s.Database)
	absAll(s.Overlays)
	absAll(s.Inputs)
	absAll(s.Protocols)
}

// Absolute returns a copy of s with every path made absolute against the
// working directory, so ledger rows name protocols the same way wherever
// strata is started.
func (s *Suite) Absolute() (*Suite, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve suite paths: %w", err)
	}
	out := s.clone()
	out.resolve(wd)
	return out, nil
}

// Merge returns a copy of s with overrides applied. Non-empty scalars in
// overrides replace those of s; lists are appended; Force is sticky.
func (s *Suite) Merge(overrides *Suite) *Suite {
	out := s.clone()
	if overrides == nil {
		return out
	}

	if overrides.Destination != "" {
		out.Destination = overrides.Destination
	}
	if overrides.Base != "" {
		out.Base = overrides.Base
	}
	if overrides.Defaults != "" {
		out.Defaults = overrides.Defaults
	}
	if overrides.Database != "" {
		out.Database = overrides.Database
	}
	if overrides.Timeout != 0 {
		out.Timeout = overrides.Timeout
	}
	out.Force = out.Force || overrides.Force

	out.Overlays = append(out.Overlays, overrides.Overlays...)
	out.Inputs = append(out.Inputs, overrides.Inputs...)
	out.Protocols = append(out.Protocols, overrides.Protocols...)
	out.Ignore = append(out.Ignore, overrides.Ignore...)
	return out
}

func (s *Suite) clone() *Suite {
	out := *s
	out.Overlays = append([]string(nil), s.Overlays...)
	out.Inputs = append([]string(nil), s.Inputs...)
	out.Protocols = append([]string(nil), s.Protocols...)
	out.Ignore = append([]string(nil), s.Ignore...)
	return &out
}

// Validate checks that the suite can be assembled.
func (s *Suite) Validate() error {
	if s.Destination == "" {
		return fmt.Errorf("destination is required")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", s.Timeout)
	}

	dest := filepath.Clean(s.Destination)
	for _, src := range s.Layers() {
		if filepath.Clean(src) == dest {
			return fmt.Errorf("destination %s is also a source layer", s.Destination)
		}
	}
	return nil
}

// Layers returns Base followed by Overlays.
func (s *Suite) Layers() []string {
	var layers []string
	if s.Base != "" {
		layers = append(layers, s.Base)
	}
	return append(layers, s.Overlays...)
}

// InputsDir is where Inputs are merged.
func (s *Suite) InputsDir() string {
	return filepath.Join(s.Destination, "inputs")
}

// ProtocolsDir is where Protocols are merged and discovered.
func (s *Suite) ProtocolsDir() string {
	return filepath.Join(s.Destination, "protocols")
}

// IgnoreSet returns the exclusion motifs, always including AlwaysIgnored.
func (s *Suite) IgnoreSet() overlay.Exclusions {
	motifs := append(append([]string(nil), AlwaysIgnored...), s.Ignore...)
	return overlay.NewExclusions(motifs...)
}

// DefaultsPath returns the configured defaults file, or DefaultsFileName in
// the base layer if that exists. Empty means built-in defaults only.
func (s *Suite) DefaultsPath() string {
	if s.Defaults != "" {
		return s.Defaults
	}
	if s.Base == "" {
		return ""
	}
	candidate := filepath.Join(s.Base, DefaultsFileName)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return ""
}
