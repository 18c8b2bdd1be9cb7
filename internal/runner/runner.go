// Package runner launches protocol scripts as child processes with their
// standard streams redirected to log files.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/strata/internal/errs"
)

// Command describes one script launch.
type Command struct {
	// Script is the program to run, optionally followed by whitespace
	// separated arguments. A program containing a path separator is
	// resolved against Dir; a bare name is looked up in PATH.
	Script string

	// Dir is the working directory of the child.
	Dir string

	// StdoutPath and StderrPath receive the child's output streams.
	// Existing files are truncated.
	StdoutPath string
	StderrPath string

	// Env is added to the inherited environment.
	Env map[string]string

	// Timeout bounds the wait. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Launcher starts a command and waits for it to exit.
//
// A non-zero exit status is not an error: it is returned as the exit code.
// Errors are reserved for failures to start (errs.CodeLaunchFailed) and
// cancelled or timed out waits (errs.CodeTimeout).
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (int, error)
}

// ExecLauncher runs commands with os/exec.
type ExecLauncher struct{}

// Launch implements Launcher.
func (ExecLauncher) Launch(ctx context.Context, cmd Command) (int, error) {
	program, args, err := resolve(cmd.Script, cmd.Dir)
	if err != nil {
		return 0, errs.LaunchFailed(cmd.Script, err)
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	stdout, err := os.Create(cmd.StdoutPath)
	if err != nil {
		return 0, fmt.Errorf("create stdout log: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.Create(cmd.StderrPath)
	if err != nil {
		return 0, fmt.Errorf("create stderr log: %w", err)
	}
	defer stderr.Close()

	execCmd := exec.CommandContext(ctx, program, args...)
	execCmd.Dir = cmd.Dir
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), envSlice(cmd.Env)...)
	}

	if err := execCmd.Start(); err != nil {
		// Nothing ran, so leave no logs that would suggest otherwise.
		stdout.Close()
		stderr.Close()
		os.Remove(cmd.StdoutPath)
		os.Remove(cmd.StderrPath)
		return 0, errs.LaunchFailed(cmd.Script, err)
	}

	err = execCmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, errs.Timeout(cmd.Script, ctxErr)
	}
	return exitCode(err)
}

// resolve splits script into a program and its arguments.
func resolve(script, dir string) (string, []string, error) {
	fields := strings.Fields(script)
	if len(fields) == 0 {
		return "", nil, errors.New("empty script")
	}
	program := fields[0]
	if strings.ContainsRune(program, filepath.Separator) && !filepath.IsAbs(program) {
		abs, err := filepath.Abs(filepath.Join(dir, program))
		if err != nil {
			return "", nil, err
		}
		program = abs
	}
	return program, fields[1:], nil
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("wait for script: %w", err)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
	}
	return out
}
