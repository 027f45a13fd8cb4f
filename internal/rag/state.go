package rag

import "fmt"

// State is the readiness of the engine. It only moves forward, one step at a time,
// except for a forced rebuild which returns it to StateEmpty first.
type State int

const (
	StateEmpty State = iota
	StateDocumentsLoaded
	StateIndexReady
	StateQAReady
)

var stateNames = [...]string{
	StateEmpty:           "empty",
	StateDocumentsLoaded: "documents_loaded",
	StateIndexReady:      "index_ready",
	StateQAReady:         "qa_ready",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateEmpty, fmt.Errorf("unknown readiness state %q", name)
}
