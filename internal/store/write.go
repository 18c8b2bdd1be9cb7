package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunRecord is one ledger row.
type RunRecord struct {
	ID          string
	SuiteID     string
	Root        string
	Name        string
	Script      string
	StartedAt   time.Time
	FinishedAt  time.Time
	ExitCode    *int // nil when the script never produced a code
	SuccessCode *int
	State       string
	Forced      bool
	Error       string
}

// Duration reports how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertRunSQL = `
	INSERT INTO runs (
		id, suite_id, root, name, script,
		started_at, finished_at, exit_code, success_code,
		state, forced, error
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
`

// WriteRun appends a run to the ledger.
// Idempotent: writing the same ID twice keeps the first row.
// Returns true when a new row was inserted.
func (s *Store) WriteRun(ctx context.Context, rec RunRecord) (bool, error) {
	return insertRun(ctx, s.db, rec)
}

// WriteRuns appends a batch of runs in one transaction.
// Either every new row is stored or none is.
func (s *Store) WriteRuns(ctx context.Context, recs []RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if _, err := insertRun(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertRun(ctx context.Context, db execer, rec RunRecord) (bool, error) {
	if rec.ID == "" {
		return false, errors.New("run id is required")
	}
	if rec.Root == "" {
		return false, fmt.Errorf("run %s: root is required", rec.ID)
	}

	result, err := db.ExecContext(ctx, insertRunSQL,
		rec.ID, rec.SuiteID, rec.Root, rec.Name, rec.Script,
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(),
		nullInt(rec.ExitCode), nullInt(rec.SuccessCode),
		rec.State, rec.Forced, rec.Error,
	)
	if err != nil {
		return false, fmt.Errorf("insert run %s: %w", rec.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows == 1, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
