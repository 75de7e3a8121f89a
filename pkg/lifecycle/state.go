// Package lifecycle runs a ByteBites service process (auth service, gateway,
// order service) through a start/stop state machine with hooks, health
// reporting and signal-driven shutdown.
//
// The happy path is
//
//	unknown → starting → running → stopping → stopped
//
// A failed hook moves the service to failed. Stopped and failed services
// may be started again.
package lifecycle

// State is a lifecycle state. The zero value is not a valid state.
type State string

const (
	StateUnknown  State = "unknown"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s is stopped or failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// transitions lists the allowed targets of each state.
var transitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether from may move to to. Self transitions are
// never valid.
func ValidTransition(from, to State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
