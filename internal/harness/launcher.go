package harness

import (
	"context"
	"time"

	"github.com/roach88/strata/internal/runner"
)

// launch captures one call to the wrapped launcher.
type launch struct {
	started  time.Time
	finished time.Time
	code     int
	err      error
}

// recordingLauncher applies the suite timeout to scripts whose metadata sets
// none, and remembers the last launch so the harness can tell an actual run
// from a skipped one.
type recordingLauncher struct {
	inner   runner.Launcher
	timeout time.Duration
	now     func() time.Time

	last *launch
}

func (l *recordingLauncher) Launch(ctx context.Context, cmd runner.Command) (int, error) {
	if cmd.Timeout == 0 {
		cmd.Timeout = l.timeout
	}
	rec := &launch{started: l.now()}
	rec.code, rec.err = l.inner.Launch(ctx, cmd)
	rec.finished = l.now()
	l.last = rec
	return rec.code, rec.err
}

// take returns and clears the last launch.
func (l *recordingLauncher) take() *launch {
	rec := l.last
	l.last = nil
	return rec
}
