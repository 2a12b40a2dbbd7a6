package session

import "sync"

// State is one of the seven states a session can be in (spec.md §3).
type State int

const (
	Disconnected State = iota
	Starting
	Ready
	Running
	Stopped
	Terminated
	StateError
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Terminated:
		return "terminated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the two states from which no
// further transitions occur (spec.md §3 invariant 3).
func (s State) IsTerminal() bool {
	return s == Terminated || s == StateError
}

// AcceptsCommands reports whether a session in state s may accept a new
// execute()/execute_mi() call (spec.md §3: "Ready and Stopped are the only
// states that accept new commands").
func (s State) AcceptsCommands() bool {
	return s == Ready || s == Stopped
}

// transitions enumerates the permitted edges of spec.md §4.3. The map key
// is the source state; the value is the set of states directly reachable
// from it. validTransition consults it on every stateHolder.Set, so an
// edge missing from this table is rejected at run time and leaves the
// state unchanged.
var transitions = map[State]map[State]bool{
	Disconnected: {Starting: true, Terminated: true},
	Starting:     {Ready: true, StateError: true, Terminated: true},
	Ready:        {Running: true, Terminated: true, StateError: true},
	Running:      {Stopped: true, Terminated: true, StateError: true},
	Stopped:      {Running: true, Terminated: true, StateError: true},
	Terminated:   {},
	StateError:   {},
}

// validTransition reports whether moving from `from` to `to` is permitted
// by the state machine of spec.md §4.3. Terminal states never have valid
// outgoing transitions (invariant 3).
func validTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true // re-publishing the same state is harmless, not an edge
	}
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// stateHolder is a mutex-guarded current-state cell with validated
// transitions, mirroring agent-cli-wrapper/acp/state.go's
// clientStateManager/sessionStateManager shape.
type stateHolder struct {
	mu    sync.RWMutex
	state State
}

func newStateHolder() *stateHolder {
	return &stateHolder{state: Disconnected}
}

// Current returns the current state.
func (h *stateHolder) Current() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Set attempts to move to `to`. It returns the previous state and whether
// the transition was applied; an illegal edge leaves the state unchanged
// and reports ok=false so the caller can treat it as a logic error rather
// than silently clobbering state.
func (h *stateHolder) Set(to State) (previous State, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	previous = h.state
	if !validTransition(previous, to) {
		return previous, false
	}
	h.state = to
	return previous, true
}
