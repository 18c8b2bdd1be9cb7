package protocol

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// Section is the INI section holding protocol metadata.
const Section = "protocol"

// Metadata keys.
const (
	KeyName    = "name"
	KeyScript  = "script"
	KeyLogDir  = "log_dir"
	KeyTimeout = "timeout"
)

// Built-in default values.
const (
	DefaultScript = "./run"
	DefaultLogDir = "LOGS"
)

var loadOptions = ini.LoadOptions{Insensitive: true}

// Defaults is the process-wide default metadata. It is immutable: every
// method returning a Defaults returns a copy.
type Defaults struct {
	values map[string]string
}

// BuiltinDefaults returns the compiled-in defaults.
func BuiltinDefaults() Defaults {
	return Defaults{values: map[string]string{
		KeyScript: DefaultScript,
		KeyLogDir: DefaultLogDir,
	}}
}

// LoadDefaults overlays the [Protocol] section of the INI files at paths, in
// order, on the built-in defaults.
func LoadDefaults(paths ...string) (Defaults, error) {
	d := BuiltinDefaults()
	if len(paths) == 0 {
		return d, nil
	}
	sources := make([]interface{}, len(paths))
	for i, p := range paths {
		sources[i] = p
	}
	cfg, err := ini.LoadSources(loadOptions, sources[0], sources[1:]...)
	if err != nil {
		return Defaults{}, fmt.Errorf("load defaults: %w", err)
	}
	return d.With(sectionValues(cfg)), nil
}

// With returns a copy of d with values overriding existing keys.
func (d Defaults) With(values map[string]string) Defaults {
	out := make(map[string]string, len(d.values)+len(values))
	for k, v := range d.values {
		out[k] = v
	}
	for k, v := range values {
		out[strings.ToLower(k)] = v
	}
	return Defaults{values: out}
}

// Get returns the default value for key.
func (d Defaults) Get(key string) (string, bool) {
	v, ok := d.values[strings.ToLower(key)]
	return v, ok
}

// Keys returns the defined keys in sorted order.
func (d Defaults) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metadata is the resolved configuration of one protocol.
type Metadata struct {
	// Name is the human-readable identifier. Empty when neither the defaults
	// nor meta.ini define one; Protocol.Name then falls back to the root.
	Name string

	// Script is the command launched for a run.
	Script string

	// LogDir is where run artifacts go, relative to the root unless absolute.
	LogDir string

	// Timeout bounds a run. Zero means unbounded.
	Timeout time.Duration

	// Values holds every resolved key, including ones strata does not use.
	Values map[string]string
}

// ParseMetadata resolves metadata by overlaying the [Protocol] section of the
// file at path on defaults. Keys present in the file win.
func ParseMetadata(path string, defaults Defaults) (Metadata, error) {
	cfg, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	values := defaults.With(sectionValues(cfg)).values

	meta := Metadata{
		Name:   values[KeyName],
		Script: values[KeyScript],
		LogDir: values[KeyLogDir],
		Values: values,
	}
	if meta.Script == "" {
		return Metadata{}, fmt.Errorf("parse metadata %s: %q is not set", path, KeyScript)
	}
	if meta.LogDir == "" {
		return Metadata{}, fmt.Errorf("parse metadata %s: %q is not set", path, KeyLogDir)
	}
	if raw := values[KeyTimeout]; raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return Metadata{}, fmt.Errorf("parse metadata %s: invalid %q: %w", path, KeyTimeout, err)
		}
		meta.Timeout = timeout
	}
	return meta, nil
}

func sectionValues(cfg *ini.File) map[string]string {
	sec, err := cfg.GetSection(Section)
	if err != nil {
		return nil
	}
	return sec.KeysHash()
}
