package overlay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Entry is the winning origin for one relative path.
type Entry struct {
	// Rel is the path relative to the source root it was found in.
	Rel string `json:"rel"`

	// Origin is the path of the entry inside its source tree.
	Origin string `json:"origin"`

	// Source is the source root Origin belongs to.
	Source string `json:"source"`

	// Dir is true when the origin is a directory. Directories are created,
	// never copied.
	Dir bool `json:"dir"`
}

// Table maps relative paths to their winning origin.
//
// Insertion order is preserved and overwriting an existing relative path
// keeps its original position. Since a directory is always enumerated before
// its children, every directory precedes the entries below it.
type Table struct {
	order   []string
	entries map[string]Entry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Set records e, replacing any previous entry at e.Rel.
func (t *Table) Set(e Entry) {
	if _, ok := t.entries[e.Rel]; !ok {
		t.order = append(t.order, e.Rel)
	}
	t.entries[e.Rel] = e
}

// Lookup returns the entry for a relative path.
func (t *Table) Lookup(rel string) (Entry, bool) {
	e, ok := t.entries[filepath.Clean(rel)]
	return e, ok
}

// Len returns the number of relative paths in the table.
func (t *Table) Len() int {
	return len(t.order)
}

// Entries returns the entries in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, rel := range t.order {
		out = append(out, t.entries[rel])
	}
	return out
}

// BuildTable enumerates every source in order and records the surviving
// entries, later sources overwriting earlier ones at the same relative path.
//
// Excluded directories are pruned: nothing below them is enumerated. The
// source roots themselves are not entries.
func BuildTable(fs afero.Fs, sources []string, ex Exclusions) (*Table, error) {
	table := NewTable()
	for _, source := range sources {
		if err := scanSource(fs, source, ex, table); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func scanSource(fs afero.Fs, source string, ex Exclusions, table *Table) error {
	source = filepath.Clean(source)
	return afero.Walk(fs, source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}
		if ex.Match(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == source {
			return nil
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}

		dir := info.IsDir()
		if info.Mode()&os.ModeSymlink != 0 {
			// Links are not descended; a link to a directory becomes an empty directory.
			target, err := fs.Stat(path)
			if err != nil {
				return fmt.Errorf("resolve link %s: %w", path, err)
			}
			dir = target.IsDir()
		}

		table.Set(Entry{Rel: rel, Origin: path, Source: source, Dir: dir})
		return nil
	})
}
