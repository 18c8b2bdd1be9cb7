package report

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/protocol"
	"github.com/roach88/strata/internal/testutil"
)

// writeSuite creates one protocol per status and runs all but the last.
func writeSuite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	fixtures := []struct {
		dir string
		fx  testutil.ProtocolFixture
		run bool
	}{
		{"a-success", testutil.ProtocolFixture{Name: "success", Body: testutil.Succeeding}, true},
		{"b-failed", testutil.ProtocolFixture{Name: "failed", Body: testutil.FailingVerdict}, true},
		{"c-error", testutil.ProtocolFixture{Name: "error", Body: testutil.Erroring}, true},
		{"d-unscored", testutil.ProtocolFixture{Name: "unscored", Body: testutil.Unscored}, true},
		{"e-skipped", testutil.ProtocolFixture{Name: "skipped", Body: testutil.Succeeding}, false},
	}
	for _, f := range fixtures {
		dir := testutil.WriteProtocol(t, filepath.Join(root, f.dir), f.fx)
		if !f.run {
			continue
		}
		p, err := protocol.Open(dir, protocol.BuiltinDefaults())
		require.NoError(t, err)
		require.NoError(t, p.Run(context.Background(), false))
	}
	return root
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		state protocol.State
		want  Status
	}{
		{protocol.StateNotRun, StatusSkipped},
		{protocol.StateErroredScript, StatusError},
		{protocol.StateUnscored, StatusUnknown},
		{protocol.StateFailed, StatusFailed},
		{protocol.StateSucceeded, StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.state))
		})
	}
}

func TestCollect_Counts(t *testing.T) {
	r := Collect(writeSuite(t), protocol.BuiltinDefaults())

	assert.Empty(t, r.Errors)
	assert.Equal(t, 5, r.Total)
	assert.Equal(t, 3, r.Run)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Errored)
	assert.True(t, r.HasFailures())

	failed := r.WithStatus(StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, []string{"mismatch"}, failed[0].Stderr)
	require.NotNil(t, failed[0].SuccessCode)
	assert.Equal(t, 1, *failed[0].SuccessCode)

	errored := r.WithStatus(StatusError)
	require.Len(t, errored, 1)
	require.NotNil(t, errored[0].ExitCode)
	assert.Equal(t, 1, *errored[0].ExitCode)

	success := r.WithStatus(StatusSuccess)
	require.Len(t, success, 1)
	assert.Nil(t, success[0].Stderr)

	skipped := r.WithStatus(StatusSkipped)
	require.Len(t, skipped, 1)
	assert.Nil(t, skipped[0].ExitCode)
}

func TestCollect_UnreadableRecord(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteProtocol(t, filepath.Join(root, "bad"), testutil.ProtocolFixture{Name: "bad"})
	testutil.WriteTree(t, dir, map[string]string{"LOGS/EXIT_CODE": "not a number"})
	testutil.WriteProtocol(t, filepath.Join(root, "good"), testutil.ProtocolFixture{Name: "good"})

	r := Collect(root, protocol.BuiltinDefaults())
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "bad")
	assert.Equal(t, 1, r.Total)
	assert.False(t, r.HasFailures())
}

func TestCollect_MissingStderrReadsEmpty(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteProtocol(t, filepath.Join(root, "p"), testutil.ProtocolFixture{Name: "p"})
	testutil.WriteTree(t, dir, map[string]string{"LOGS/EXIT_CODE": "2\n"})

	r := Collect(root, protocol.BuiltinDefaults())
	require.Empty(t, r.Errors)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, StatusError, r.Entries[0].Status)
	assert.Empty(t, r.Entries[0].Stderr)
}

func TestWriteText_Golden(t *testing.T) {
	r := Collect(writeSuite(t), protocol.BuiltinDefaults())

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	newGoldie(t).Assert(t, "text", buf.Bytes())
}

func TestWriteText_Empty(t *testing.T) {
	r := Collect(t.TempDir(), protocol.BuiltinDefaults())

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	newGoldie(t).Assert(t, "empty", buf.Bytes())
}

func TestWriteText_ListsErrors(t *testing.T) {
	r := &Report{Errors: []string{"cannot open x"}}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	assert.True(t, strings.HasSuffix(buf.String(), "error: cannot open x\n"))
}

func TestWriteText_StderrWithoutFinalNewline(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteProtocol(t, filepath.Join(root, "p"), testutil.ProtocolFixture{
		Name: "p",
		Body: "printf 'first\\nno newline' 1>&2\nexit 1",
	})
	p, err := protocol.Open(dir, protocol.BuiltinDefaults())
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), false))

	r := Collect(root, protocol.BuiltinDefaults())
	require.Len(t, r.Entries, 1)
	assert.Equal(t, []string{"first", "no newline"}, r.Entries[0].Stderr)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	assert.Contains(t, buf.String(), "### p STDERR\nfirst\nno newline0 protocols run over 1 protocols available.\n")
}

func TestWriteTable(t *testing.T) {
	r := &Report{
		Entries: []Entry{
			{Name: "zeta", Status: StatusSuccess},
			{Name: "Alpha", Status: StatusFailed},
			{Name: "beta", Status: StatusSkipped},
		},
		Total: 3, Run: 2, Succeeded: 1, Failed: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, r))
	out := buf.String()

	alpha := strings.Index(out, "Alpha")
	beta := strings.Index(out, "beta")
	zeta := strings.Index(out, "zeta")
	require.True(t, alpha >= 0 && beta >= 0 && zeta >= 0, out)
	assert.Less(t, alpha, beta)
	assert.Less(t, beta, zeta)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "3 available")

	assert.Equal(t, "zeta", r.Entries[0].Name, "input order must not change")
}

func TestWriteJSON(t *testing.T) {
	r := Collect(writeSuite(t), protocol.BuiltinDefaults())

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))

	var decoded struct {
		Entries []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			State  string `json:"state"`
		} `json:"entries"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 5, decoded.Total)
	require.Len(t, decoded.Entries, 5)
	assert.Equal(t, "SUCCESS", decoded.Entries[0].Status)
	assert.Equal(t, "succeeded", decoded.Entries[0].State)
}
