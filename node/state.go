// Package node implements the node-side runtime (spec.md §4.3): the
// lifecycle state machine, the multiplexed node-event/port-event queue,
// run_step's drain/execute/post-execute loop, and the wait-for-condition
// free list used for blocking SMN requests like an irregular future update.
package node

import "fmt"

// State is the node lifecycle state (spec.md §4.3).
type State int

const (
	StateStopped State = iota
	StateStarted
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarted:
		return "STARTED"
	case StateRunning:
		return "RUNNING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// valid reports whether the from->to transition is one of the table's
// rows (spec.md §4.3); ERROR is reachable from any state and is not
// itself checked here (callers force it directly on a fatal condition).
func validTransition(from, to State) bool {
	switch {
	case from == StateStopped && to == StateStarted:
		return true
	case from == StateStarted && to == StateRunning:
		return true
	case from == StateRunning && to == StateStopped:
		return true
	case to == StateError:
		return true
	default:
		return false
	}
}
