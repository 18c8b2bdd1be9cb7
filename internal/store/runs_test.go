package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/testutil"
)

func code(n int) *int { return &n }

func newRecord(clock *testutil.DeterministicClock, id, root string) RunRecord {
	started := clock.Now()
	return RunRecord{
		ID:         id,
		SuiteID:    "suite-1",
		Root:       root,
		Name:       root,
		Script:     "./run",
		StartedAt:  started,
		FinishedAt: clock.Now(),
		ExitCode:   code(0),
		State:      "unscored",
	}
}

func TestWriteRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	rec := newRecord(clock, "run-0001", "/p/a")
	rec.SuccessCode = code(2)
	rec.Forced = true

	inserted, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, rec.StartedAt, got.StartedAt)
	assert.Equal(t, rec.FinishedAt, got.FinishedAt)
	assert.Equal(t, time.Second, got.Duration())
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 0, *got.ExitCode)
	require.NotNil(t, got.SuccessCode)
	assert.Equal(t, 2, *got.SuccessCode)
	assert.True(t, got.Forced)
	assert.Equal(t, "unscored", got.State)
}

func TestWriteRun_NullCodes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := newRecord(testutil.NewDeterministicClock(), "run-0001", "/p/a")
	rec.ExitCode = nil
	rec.State = "not_run"
	rec.Error = "launch failed: ./run"

	_, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)

	got, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Nil(t, got.ExitCode)
	assert.Nil(t, got.SuccessCode)
	assert.Equal(t, "launch failed: ./run", got.Error)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	first := newRecord(clock, "run-0001", "/p/a")
	second := first
	second.State = "failed"

	inserted, err := s.WriteRun(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.WriteRun(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, "unscored", got.State)
}

func TestWriteRun_RequiresIDAndRoot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteRun(ctx, RunRecord{Root: "/p/a"})
	assert.Error(t, err)

	_, err = s.WriteRun(ctx, RunRecord{ID: "run-0001"})
	assert.Error(t, err)
}

func TestWriteRuns_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	err := s.WriteRuns(ctx, []RunRecord{
		newRecord(clock, "run-0001", "/p/a"),
		{ID: "run-0002"},
	})
	require.Error(t, err)

	_, err = s.ReadRun(ctx, "run-0001")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadRuns_OrderedOldestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	older := newRecord(clock, "run-0002", "/p/a")
	newer := newRecord(clock, "run-0001", "/p/a")
	other := newRecord(clock, "run-0003", "/p/b")

	require.NoError(t, s.WriteRuns(ctx, []RunRecord{newer, other, older}))

	runs, err := s.ReadRuns(ctx, "/p/a")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-0002", runs[0].ID)
	assert.Equal(t, "run-0001", runs[1].ID)
}

func TestReadRuns_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ReadRuns(context.Background(), "/nowhere")
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestReadSuite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	a := newRecord(clock, "run-0001", "/p/a")
	b := newRecord(clock, "run-0002", "/p/b")
	b.SuiteID = "suite-2"
	require.NoError(t, s.WriteRuns(ctx, []RunRecord{a, b}))

	runs, err := s.ReadSuite(ctx, "suite-2")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "/p/b", runs[0].Root)
}

func TestLatestRuns_OnePerRoot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	recs := []RunRecord{
		newRecord(clock, "run-0001", "/p/b"),
		newRecord(clock, "run-0002", "/p/a"),
		newRecord(clock, "run-0003", "/p/b"),
	}
	recs[2].State = "succeeded"
	require.NoError(t, s.WriteRuns(ctx, recs))

	latest, err := s.LatestRuns(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "/p/a", latest[0].Root)
	assert.Equal(t, "run-0002", latest[0].ID)
	assert.Equal(t, "/p/b", latest[1].Root)
	assert.Equal(t, "run-0003", latest[1].ID)
	assert.Equal(t, "succeeded", latest[1].State)
}
