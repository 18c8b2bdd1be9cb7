package overlay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/errs"
)

// writeTree creates files under root. Keys ending in "/" create directories.
func writeTree(t *testing.T, fs afero.Fs, root string, files map[string]string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if rel[len(rel)-1] == '/' {
			require.NoError(t, fs.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func exists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

func TestMerge_LastSourceWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/base", map[string]string{"a.txt": "1"})
	writeTree(t, fs, "/overlay", map[string]string{"a.txt": "2", "b.txt": "3"})

	m := New(fs, nil)
	require.NoError(t, m.Merge([]string{"/base", "/overlay"}, "/dest", nil))

	assert.Equal(t, "2", readFile(t, fs, "/dest/a.txt"))
	assert.Equal(t, "3", readFile(t, fs, "/dest/b.txt"))
}

func TestMerge_OrderMatters(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/a", map[string]string{"sub/p.txt": "from a"})
	writeTree(t, fs, "/b", map[string]string{"sub/p.txt": "from b"})

	m := New(fs, nil)
	require.NoError(t, m.Merge([]string{"/b", "/a"}, "/dest", nil))

	assert.Equal(t, "from a", readFile(t, fs, "/dest/sub/p.txt"))
}

func TestMerge_NestedTreesAndEmptyDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/base", map[string]string{
		"protocols/one/meta.ini": "[Protocol]\n",
		"inputs/":                "",
	})
	writeTree(t, fs, "/extra", map[string]string{
		"protocols/two/run": "#!/bin/sh\n",
	})

	m := New(fs, nil)
	require.NoError(t, m.Merge([]string{"/base", "/extra"}, "/dest", nil))

	assert.True(t, exists(fs, "/dest/protocols/one/meta.ini"))
	assert.True(t, exists(fs, "/dest/protocols/two/run"))

	info, err := fs.Stat("/dest/inputs")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMerge_ExclusionsPruneSubtree(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", map[string]string{
		".git/config":       "secret",
		".git/objects/ab/c": "blob",
		"keep.txt":          "ok",
		"build/out/bin":     "binary",
		"notes.tmp":         "scratch",
	})

	m := New(fs, nil)
	require.NoError(t, m.Merge([]string{"/src"}, "/dest", NewExclusions(".git", "build", ".tmp")))

	assert.True(t, exists(fs, "/dest/keep.txt"))
	assert.False(t, exists(fs, "/dest/.git"))
	assert.False(t, exists(fs, "/dest/build"))
	assert.False(t, exists(fs, "/dest/notes.tmp"))
}

func TestMerge_ExclusionAppliedPerLayer(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/base", map[string]string{"cfg.txt": "base"})
	writeTree(t, fs, "/drafts", map[string]string{"cfg.txt": "draft"})

	m := New(fs, nil)
	// The motif matches the second source root, so it contributes nothing.
	require.NoError(t, m.Merge([]string{"/base", "/drafts"}, "/dest", NewExclusions("drafts")))

	assert.Equal(t, "base", readFile(t, fs, "/dest/cfg.txt"))
}

func TestMerge_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/a", map[string]string{"x/y.txt": "y", "z.txt": "z"})
	writeTree(t, fs, "/b", map[string]string{"z.txt": "zz"})

	m := New(fs, nil)
	sources := []string{"/a", "/b"}
	require.NoError(t, m.Merge(sources, "/dest", nil))
	first := snapshot(t, fs, "/dest")

	require.NoError(t, m.Merge(sources, "/dest", nil))
	assert.Equal(t, first, snapshot(t, fs, "/dest"))
}

func TestMerge_OverwritesExistingDestinationFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", map[string]string{"a.txt": "short"})
	writeTree(t, fs, "/dest", map[string]string{"a.txt": "a much longer previous content", "other": "kept"})

	m := New(fs, nil)
	require.NoError(t, m.Merge([]string{"/src"}, "/dest", nil))

	assert.Equal(t, "short", readFile(t, fs, "/dest/a.txt"))
	assert.Equal(t, "kept", readFile(t, fs, "/dest/other"))
}

func TestMerge_DoesNotModifySources(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/a", map[string]string{"f": "a"})
	writeTree(t, fs, "/b", map[string]string{"f": "b"})

	m := New(fs, nil)
	require.NoError(t, m.Merge([]string{"/a", "/b"}, "/dest", nil))

	assert.Equal(t, "a", readFile(t, fs, "/a/f"))
	assert.Equal(t, "b", readFile(t, fs, "/b/f"))
}

func TestMerge_MissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/a", map[string]string{"f": "a"})

	m := New(fs, nil)
	err := m.Merge([]string{"/a", "/missing"}, "/dest", nil)
	require.Error(t, err)

	assert.True(t, errs.IsNotFound(err))
	assert.True(t, errs.IsNotADirectory(err))
	assert.Contains(t, err.Error(), "/missing")
	assert.False(t, exists(fs, "/dest"), "nothing is written when preconditions fail")
}

func TestMerge_FileSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/", map[string]string{"file.txt": "x"})

	m := New(fs, nil)
	err := m.Merge([]string{"/file.txt"}, "/dest", nil)
	require.Error(t, err)

	assert.True(t, errs.IsNotADirectory(err))
	assert.False(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "one source path is not a directory")
}

func TestMerge_NamesEveryOffendingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/", map[string]string{"file.txt": "x"})
	writeTree(t, fs, "/ok", map[string]string{"f": "y"})

	m := New(fs, nil)
	err := m.Merge([]string{"/file.txt", "/ok", "/gone"}, "/dest", nil)
	require.Error(t, err)

	var se *SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"/file.txt", "/gone"}, se.All)
	assert.Equal(t, []string{"/gone"}, se.Missing)
	assert.Equal(t, []string{"/file.txt"}, se.NotDirs)
	assert.Contains(t, err.Error(), "some source paths are not directories")
}

func TestMerge_DestinationIsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", map[string]string{"a": "1"})
	writeTree(t, fs, "/", map[string]string{"dest": "file"})

	m := New(fs, nil)
	err := m.Merge([]string{"/src"}, "/dest", nil)
	require.Error(t, err)
	assert.True(t, errs.IsNotADirectory(err))
}

func TestMerge_TypeConflict(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/a", map[string]string{"x/inner.txt": "dir in a"})
	writeTree(t, fs, "/b", map[string]string{"x": "file in b"})

	m := New(fs, nil)
	err := m.Merge([]string{"/a", "/b"}, "/dest", nil)
	require.Error(t, err)
	assert.True(t, errs.IsNotADirectory(err))
}

func TestMerge_NoSources(t *testing.T) {
	fs := afero.NewMemMapFs()

	m := New(fs, nil)
	require.NoError(t, m.Merge(nil, "/dest", nil))

	info, err := fs.Stat("/dest")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPlan_DoesNotWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/a", map[string]string{"f": "a", "d/g": "g"})
	writeTree(t, fs, "/b", map[string]string{"f": "b"})

	m := New(fs, nil)
	table, err := m.Plan([]string{"/a", "/b"}, nil)
	require.NoError(t, err)

	e, ok := table.Lookup("f")
	require.True(t, ok)
	assert.Equal(t, "/b/f", e.Origin)
	assert.Equal(t, "/b", e.Source)

	rels := make([]string, 0, table.Len())
	for _, e := range table.Entries() {
		rels = append(rels, e.Rel)
	}
	assert.Equal(t, []string{"d", "d/g", "f"}, rels)
	assert.False(t, exists(fs, "/dest"))
}

func TestMergeOnOSFilesystem(t *testing.T) {
	tmp := t.TempDir()
	base := filepath.Join(tmp, "base")
	overlay := filepath.Join(tmp, "overlay")
	dest := filepath.Join(tmp, "dest")

	require.NoError(t, os.MkdirAll(filepath.Join(base, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, ".git", "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("1"), 0o644))
	require.NoError(t, os.MkdirAll(overlay, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(overlay, "a.txt"), []byte("2"), 0o644))

	require.NoError(t, Merge([]string{base, overlay}, dest, ".git"))

	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	_, err = os.Stat(filepath.Join(dest, ".git"))
	assert.True(t, os.IsNotExist(err))
}

// snapshot returns every file under root with its content.
func snapshot(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			out[path] = "<dir>"
			return nil
		}
		out[path] = readFile(t, fs, path)
		return nil
	})
	require.NoError(t, err)
	return out
}
