// Package report summarizes the outcomes recorded in a protocols tree.
package report

import (
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/roach88/strata/internal/errs"
	"github.com/roach88/strata/internal/protocol"
)

// Status is the report label of a protocol.
type Status string

const (
	StatusSkipped Status = "SKIPPED"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
	StatusFailed  Status = "FAILED"
	StatusSuccess Status = "SUCCESS"
)

// StatusOf maps a protocol state to its report label.
func StatusOf(s protocol.State) Status {
	switch s {
	case protocol.StateErroredScript:
		return StatusError
	case protocol.StateUnscored:
		return StatusUnknown
	case protocol.StateFailed:
		return StatusFailed
	case protocol.StateSucceeded:
		return StatusSuccess
	default:
		return StatusSkipped
	}
}

// Entry is one protocol line of the report.
type Entry struct {
	Name        string         `json:"name"`
	Root        string         `json:"root"`
	Status      Status         `json:"status"`
	State       protocol.State `json:"state"`
	ExitCode    *int           `json:"exit_code,omitempty"`
	SuccessCode *int           `json:"success_code,omitempty"`

	// Stderr is captured for failed and errored protocols only.
	Stderr []string `json:"stderr,omitempty"`

	// stderrEOL is set when the captured stderr ends with a newline.
	stderrEOL bool
}

// Report aggregates a protocols tree.
//
// Run counts protocols whose script exited 0. Errored scripts are neither
// run nor skipped: they appear in Errored.
type Report struct {
	Entries   []Entry  `json:"entries"`
	Total     int      `json:"total"`
	Run       int      `json:"run"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errored   int      `json:"errored"`
	Errors    []string `json:"errors,omitempty"`
}

// HasFailures reports whether any protocol failed or errored.
func (r *Report) HasFailures() bool {
	return r.Failed > 0 || r.Errored > 0
}

// WithStatus returns the entries with status s, in report order.
func (r *Report) WithStatus(s Status) []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status == s {
			out = append(out, e)
		}
	}
	return out
}

// Build consumes a protocol sequence and classifies each protocol.
//
// Protocols that cannot be opened or whose records are unreadable are
// listed in Errors and left out of the counts.
func Build(protocols iter.Seq2[*protocol.Protocol, error]) *Report {
	r := &Report{Entries: []Entry{}}
	for p, err := range protocols {
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
			continue
		}
		entry, err := entryOf(p)
		if err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		r.add(entry)
	}
	return r
}

// Collect builds a report of every protocol under root.
func Collect(root string, defaults protocol.Defaults) *Report {
	return Build(protocol.Discover(root, defaults))
}

func (r *Report) add(e Entry) {
	r.Entries = append(r.Entries, e)
	r.Total++
	switch e.Status {
	case StatusError:
		r.Errored++
	case StatusUnknown:
		r.Run++
	case StatusFailed:
		r.Run++
		r.Failed++
	case StatusSuccess:
		r.Run++
		r.Succeeded++
	}
}

func entryOf(p *protocol.Protocol) (Entry, error) {
	state, err := p.State()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Name:   p.Name(),
		Root:   p.Root(),
		Status: StatusOf(state),
		State:  state,
	}
	if code, ok, err := p.ExitCode(); err == nil && ok {
		e.ExitCode = &code
	}
	if code, ok, err := p.SuccessCode(); err == nil && ok {
		e.SuccessCode = &code
	}

	if e.Status == StatusFailed || e.Status == StatusError {
		stderr, err := collectLines(p.Stderr())
		if err != nil {
			return Entry{}, err
		}
		e.Stderr = stderr
		e.stderrEOL = endsWithNewline(p.StderrPath())
	}
	return e, nil
}

// collectLines drains a line sequence. A missing log reads as empty.
func collectLines(seq iter.Seq2[string, error]) ([]string, error) {
	lines := []string{}
	for line, err := range seq {
		if errs.IsProtocolNotRun(err) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// endsWithNewline reports whether the file at path ends with "\n".
func endsWithNewline(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	if _, err := f.Seek(-1, io.SeekEnd); err != nil {
		return false
	}
	last := make([]byte, 1)
	if _, err := f.Read(last); err != nil {
		return false
	}
	return last[0] == '\n'
}
