package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTree creates files under root. Keys ending in "/" create empty
// directories.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0o755))
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if strings.HasSuffix(rel, "/") {
			require.NoError(t, os.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// ProtocolFixture describes a protocol written by WriteProtocol.
type ProtocolFixture struct {
	// Name is written to meta.ini when set.
	Name string

	// Body is the shell script body of ./run. The script starts in the
	// protocol root.
	Body string

	// Meta holds extra [Protocol] keys, e.g. "log_dir" or "timeout".
	Meta map[string]string
}

// WriteProtocol creates a protocol rooted at dir with a meta.ini and an
// executable ./run script.
func WriteProtocol(t *testing.T, dir string, fx ProtocolFixture) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var meta strings.Builder
	meta.WriteString("[Protocol]\n")
	if fx.Name != "" {
		fmt.Fprintf(&meta, "name = %s\n", fx.Name)
	}
	for k, v := range fx.Meta {
		fmt.Fprintf(&meta, "%s = %s\n", k, v)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.ini"), []byte(meta.String()), 0o644))

	script := "#!/bin/sh\n" + fx.Body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run"), []byte(script), 0o755))
	return dir
}

// CountingBody returns a script body that appends a line to counterPath on
// every invocation, followed by body.
func CountingBody(counterPath, body string) string {
	return fmt.Sprintf("echo x >> %q\n%s", counterPath, body)
}

// CountLines returns the number of lines in path, or 0 if it does not exist.
func CountLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

// Succeeding is a script body that exits 0 and records SUCCESS_CODE 0 in
// the default log directory.
const Succeeding = "echo ok\necho 0 > LOGS/SUCCESS_CODE"

// FailingVerdict exits 0 but records SUCCESS_CODE 1.
const FailingVerdict = "echo mismatch 1>&2\necho 1 > LOGS/SUCCESS_CODE"

// Erroring exits 1 without a verdict.
const Erroring = "echo boom 1>&2\nexit 1"

// Unscored exits 0 without a verdict.
const Unscored = "echo done"
