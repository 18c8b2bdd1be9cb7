package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const selectRunColumns = `
	SELECT id, suite_id, root, name, script,
		started_at, finished_at, exit_code, success_code,
		state, forced, error
	FROM runs
`

// ReadRun returns the run with the given ID.
// Returns sql.ErrNoRows if it does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRunColumns+`WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// ReadRuns returns every run of the protocol rooted at root, oldest first.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadRuns(ctx context.Context, root string) ([]RunRecord, error) {
	return s.query(ctx, selectRunColumns+`
		WHERE root = ?
		ORDER BY started_at ASC, id ASC COLLATE BINARY
	`, root)
}

// ReadSuite returns every run recorded under one suite invocation.
func (s *Store) ReadSuite(ctx context.Context, suiteID string) ([]RunRecord, error) {
	return s.query(ctx, selectRunColumns+`
		WHERE suite_id = ?
		ORDER BY started_at ASC, id ASC COLLATE BINARY
	`, suiteID)
}

// LatestRuns returns the most recent run of each protocol root, ordered by
// root.
func (s *Store) LatestRuns(ctx context.Context) ([]RunRecord, error) {
	return s.query(ctx, selectRunColumns+`
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY root
					ORDER BY started_at DESC, id DESC COLLATE BINARY
				) AS rn
				FROM runs
			)
			WHERE rn = 1
		)
		ORDER BY root ASC COLLATE BINARY
	`)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec                 RunRecord
		started, finished   int64
		exitCode, successCd sql.NullInt64
	)
	err := row.Scan(
		&rec.ID, &rec.SuiteID, &rec.Root, &rec.Name, &rec.Script,
		&started, &finished, &exitCode, &successCd,
		&rec.State, &rec.Forced, &rec.Error,
	)
	if err == sql.ErrNoRows {
		return RunRecord{}, err
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	rec.StartedAt = time.Unix(0, started).UTC()
	rec.FinishedAt = time.Unix(0, finished).UTC()
	rec.ExitCode = intPtr(exitCode)
	rec.SuccessCode = intPtr(successCd)
	return rec, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
