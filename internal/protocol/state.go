package protocol

import "fmt"

// State is the outcome classification of a protocol.
//
//	NotRun ──run──▶ ErroredScript   exit code ≠ 0
//	                Unscored        exit code 0, no SUCCESS_CODE
//	                Failed          SUCCESS_CODE ≠ 0
//	                Succeeded       SUCCESS_CODE = 0
//
// There is no way back to NotRun; a forced run replaces the outcome.
type State int

const (
	StateNotRun State = iota
	StateErroredScript
	StateUnscored
	StateFailed
	StateSucceeded
)

var stateNames = map[State]string{
	StateNotRun:        "not_run",
	StateErroredScript: "errored_script",
	StateUnscored:      "unscored",
	StateFailed:        "failed",
	StateSucceeded:     "succeeded",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Ran reports whether the script completed at least once.
func (s State) Ran() bool {
	return s != StateNotRun
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown protocol state %q", text)
}
