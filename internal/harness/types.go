package harness

import (
	"github.com/roach88/strata/internal/protocol"
)

// Outcome is the result of one protocol in a suite run.
type Outcome struct {
	Name  string         `json:"name"`
	Root  string         `json:"root"`
	State protocol.State `json:"state"`

	// Ran is true when the script was launched by this suite run.
	Ran bool `json:"ran"`

	// RunID identifies the ledger row. Empty when the script did not run.
	RunID string `json:"run_id,omitempty"`

	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Label is the progress marker printed after a protocol runs.
func (o Outcome) Label() string {
	if o.Error != "" {
		return "[EXCEPTION]"
	}
	switch o.State {
	case protocol.StateErroredScript:
		return "[ERROR]"
	case protocol.StateUnscored:
		return "[NONE]"
	case protocol.StateFailed:
		return "[FAILURE]"
	case protocol.StateSucceeded:
		return "[SUCCESS]"
	default:
		return "[SKIPPED]"
	}
}

// Result is the outcome of a suite run.
type Result struct {
	// SuiteID groups the ledger rows written by this run.
	SuiteID string `json:"suite_id"`

	// ProtocolsDir is where protocols were discovered.
	ProtocolsDir string `json:"protocols_dir"`

	// Pass is true when no protocol raised an error. Script failures and
	// failed verdicts are outcomes, not errors.
	Pass bool `json:"pass"`

	Outcomes []Outcome `json:"outcomes"`

	// Errors contains one message per protocol that could not be opened,
	// run or recorded.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(suiteID, protocolsDir string) *Result {
	return &Result{
		SuiteID:      suiteID,
		ProtocolsDir: protocolsDir,
		Pass:         true,
		Outcomes:     []Outcome{},
		Errors:       []string{},
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOutcome appends a protocol outcome.
func (r *Result) AddOutcome(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Count returns how many outcomes are in state s.
func (r *Result) Count(s protocol.State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}
