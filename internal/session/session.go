package session

import "time"

const (
	// DefaultCommandTimeout is the outer timer for execute()/execute_mi()
	// when a session doesn't override it (spec.md §4.4 step 5).
	DefaultCommandTimeout = 10 * time.Second

	// DefaultPostCommandDelay is the settle window the drain loop waits
	// after writing a command and before reading (spec.md §4.4 step 3),
	// overridable per-process via GDB_MCP_POST_COMMAND_DELAY_MS.
	DefaultPostCommandDelay = 2000 * time.Millisecond

	// terminationGracePeriod is how long the graceful termination path
	// waits for `quit` to take effect before forcing the process down
	// (spec.md §4.6).
	terminationGracePeriod = 500 * time.Millisecond
)

// Info is a read-only snapshot of a session's identity and status, safe to
// hand to callers outside the owning supervisor's driving task (spec.md §3
// "Session"). It is what Manager.List/Get return — never the live
// *Supervisor itself, per spec.md §4.1 invariant 1 ("external observers
// hold at most a weak reference").
type Info struct {
	ID          string
	GDBPath     string
	WorkingDir  string
	Program     string
	State       State
	CreatedAt   time.Time
	Timeout     time.Duration
	CommandPending bool
}
