// internal/coordinator/state.go
package coordinator

import "fmt"

// State is a state of the request lifecycle. There is no terminal state.
type State int

const (
	Unauthenticated State = iota
	Idle
	AwaitingVoiceInput
	Generating
	Reviewing
	Committing
)

var stateNames = map[State]string{
	Unauthenticated:    "unauthenticated",
	Idle:               "idle",
	AwaitingVoiceInput: "awaiting_voice_input",
	Generating:         "generating",
	Reviewing:          "reviewing",
	Committing:         "committing",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// inFlight reports whether a network call owns the machine.
func (s State) inFlight() bool {
	return s == Generating || s == Committing
}
