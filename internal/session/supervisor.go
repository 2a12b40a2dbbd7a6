package session

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gdbmcp/gdbmcp/internal/mi"
)

// lineEvent is what the background reader goroutine forwards: either one
// line of output, or a terminal error (io.EOF or a read failure).
type lineEvent struct {
	line string
	err  error
}

// CommandResult is handed to Supervisor.OnCommand (if set) after every
// execute()/execute_mi() call, successful or not, for optional history
// persistence. It is not part of the core's public contract (spec.md §6
// inbound protocol returns only raw_output/[]Record/error) — it exists so
// internal/store can record history without the session package depending
// on it.
type CommandResult struct {
	SessionID string
	Command   string
	RawOutput string
	Records   []mi.Record
	Err       error
	Duration  time.Duration
	TimedOut  bool
}

// Supervisor owns one GDB subprocess: its pipes, state, and single
// in-flight command slot (spec.md §3 "Session", §4.4). A Supervisor is
// driven from multiple goroutines calling Execute/ExecuteMI/Terminate
// concurrently — those are serialized onto the single command slot — but
// the process/state fields themselves are touched only by the background
// reader goroutine and whichever goroutine currently holds the slot,
// matching spec.md §5's "single logical task" model.
type Supervisor struct {
	ID         string
	GDBPath    string
	WorkingDir string
	Program    string
	Timeout    time.Duration

	// PostCommandDelay is the settle window of spec.md §4.4 step 3.
	PostCommandDelay time.Duration

	runner Runner
	hub    *Hub
	redact *Redactor

	// OnCommand, if set, is invoked after every completed command (success
	// or failure) for optional history persistence.
	OnCommand func(CommandResult)

	state     *stateHolder
	createdAt time.Time

	mu              sync.Mutex
	process         Process
	lines           chan lineEvent
	commandInFlight bool
	terminating     bool
}

// NewSupervisor constructs a Supervisor in the Disconnected state. It does
// not spawn a process — call Start for that.
func NewSupervisor(id, gdbPath, workingDir string, timeout time.Duration, runner Runner, hub *Hub, redact *Redactor) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Supervisor{
		ID:               id,
		GDBPath:          gdbPath,
		WorkingDir:       workingDir,
		Timeout:          timeout,
		PostCommandDelay: postCommandDelayFromEnv(),
		runner:           runner,
		hub:              hub,
		redact:           redact,
		state:            newStateHolder(),
		createdAt:        time.Now(),
		lines:            make(chan lineEvent, 4096),
	}
}

// State returns the current session state.
func (s *Supervisor) State() State { return s.state.Current() }

// Info returns a read-only snapshot (spec.md §3 invariant 1: callers never
// get the live Supervisor).
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	pending := s.commandInFlight
	s.mu.Unlock()
	return Info{
		ID:             s.ID,
		GDBPath:        s.GDBPath,
		WorkingDir:     s.WorkingDir,
		Program:        s.Program,
		State:          s.State(),
		CreatedAt:      s.createdAt,
		Timeout:        s.Timeout,
		CommandPending: pending,
	}
}

func (s *Supervisor) setState(to State) {
	old, ok := s.state.Set(to)
	if !ok || old == to {
		return
	}
	s.publish(Observation{
		SessionID: s.ID,
		Type:      ObsStateChanged,
		OldState:  old,
		NewState:  to,
	})
	if to == Ready {
		s.publish(Observation{SessionID: s.ID, Type: ObsReady})
	}
}

func (s *Supervisor) publish(o Observation) {
	if s.hub == nil {
		return
	}
	full := newObservation(s.ID, o.Type, time.Now())
	full.OldState, full.NewState = o.OldState, o.NewState
	full.StopReason, full.StopDetails = o.StopReason, o.StopDetails
	full.Text = o.Text
	if o.Type == ObsTerminated {
		full.ExitCode = o.ExitCode
	}
	s.hub.Publish(full)
}

// Start implements the startup protocol of spec.md §4.5: spawn
// `gdbPath --interpreter=mi`, transition to Starting, and read lines until
// the first (gdb) prompt completes startup (-> Ready) or a start-timeout /
// EOF aborts it (-> Error).
func (s *Supervisor) Start(ctx context.Context) error {
	if _, ok := s.state.Set(Starting); !ok {
		return wrapErr(KindInternal, nil, "session %s: cannot start from state %s", s.ID, s.State())
	}

	proc, err := s.runner.Start(ctx, s.GDBPath, s.WorkingDir)
	if err != nil {
		s.state.Set(StateError)
		return wrapErr(KindSpawnFailed, err, "session %s: failed to spawn %s", s.ID, s.GDBPath)
	}

	s.mu.Lock()
	s.process = proc
	s.mu.Unlock()
	go s.readLoop(proc)

	timer := time.NewTimer(s.Timeout)
	defer stopTimer(timer)

	for {
		select {
		case ev := <-s.lines:
			if ev.err != nil {
				s.state.Set(StateError)
				return wrapErr(KindSpawnFailed, ev.err, "session %s: gdb exited before ready prompt", s.ID)
			}
			rec, perr := mi.ParseLine(ev.line)
			if perr == nil && rec.Kind == mi.KindConsoleStream {
				s.publish(Observation{SessionID: s.ID, Type: ObsConsoleOutput, Text: s.redact.Scrub(rec.Text)})
			}
			if perr == nil && rec.Kind == mi.KindPrompt {
				s.setState(Ready)
				return nil
			}
			// Any other startup banner line (console/log text, version
			// banner) is discarded; only the first prompt completes
			// startup (spec.md §4.3: "Ready is entered only after the
			// very first (gdb) prompt is observed").
		case <-timer.C:
			s.state.Set(StateError)
			return newErr(KindTimeout, "session %s: gdb did not become ready within %s", s.ID, s.Timeout)
		case <-ctx.Done():
			s.state.Set(StateError)
			return wrapErr(KindInternal, ctx.Err(), "session %s: start cancelled", s.ID)
		}
	}
}

// readLoop continuously reads lines from proc and forwards them to
// s.lines. It terminates (after forwarding the terminal error) when
// ReadLine fails, which happens on EOF or an I/O error.
func (s *Supervisor) readLoop(proc Process) {
	for {
		line, err := proc.ReadLine()
		if err != nil {
			s.lines <- lineEvent{err: err}
			return
		}
		s.lines <- lineEvent{line: line}
	}
}

// acquireSlot enforces spec.md §4.4 invariant 2 (at most one command in
// flight) by rejection rather than queuing.
func (s *Supervisor) acquireSlot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commandInFlight {
		return ErrAlreadyRunning
	}
	s.commandInFlight = true
	return nil
}

func (s *Supervisor) releaseSlot() {
	s.mu.Lock()
	s.commandInFlight = false
	s.mu.Unlock()
}

// Execute implements spec.md §4.4: it returns the raw concatenated output
// of every line read while the command was in flight.
func (s *Supervisor) Execute(ctx context.Context, command string) (string, error) {
	lines, _, err := s.run(ctx, command, false)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// ExecuteMI implements spec.md §4.4's parallel operation: the ordered list
// of parsed records instead of raw text.
func (s *Supervisor) ExecuteMI(ctx context.Context, command string) ([]mi.Record, error) {
	_, records, err := s.run(ctx, command, true)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// run is the shared implementation of the command-orchestration algorithm
// (spec.md §4.4 steps 1-6). parseAll controls whether every drained line
// is also parsed into a Record for ExecuteMI's sake (Execute still parses
// internally to drive the drain loop's own decisions — it just doesn't
// need to keep the parsed form around).
func (s *Supervisor) run(ctx context.Context, command string, parseAll bool) ([]string, []mi.Record, error) {
	start := time.Now()

	// 1. Admission.
	if !s.State().AcceptsCommands() {
		return nil, nil, wrapErr(KindSessionNotReady, nil, "session %s: not ready (state=%s)", s.ID, s.State())
	}
	if err := s.acquireSlot(); err != nil {
		return nil, nil, err
	}
	defer s.releaseSlot()

	s.mu.Lock()
	proc := s.process
	s.mu.Unlock()
	if proc == nil {
		return nil, nil, wrapErr(KindInternal, nil, "session %s: no process attached", s.ID)
	}

	timeoutTimer := time.NewTimer(s.Timeout) // started "the moment the command is submitted" (step 5)
	defer stopTimer(timeoutTimer)

	// 2. Write.
	if err := proc.WriteLine(command); err != nil {
		s.finalizeIOFailure(err)
		result := CommandResult{SessionID: s.ID, Command: command, Err: err, Duration: time.Since(start)}
		s.reportCommand(result)
		return nil, nil, wrapErr(KindCommandFailed, err, "session %s: write failed", s.ID)
	}

	// 3. Post-write settle.
	if !s.sleepOrTimeout(s.PostCommandDelay, timeoutTimer.C, ctx) {
		result := CommandResult{SessionID: s.ID, Command: command, Duration: time.Since(start), TimedOut: true}
		s.reportCommand(result)
		return nil, nil, newErr(KindTimeout, "session %s: command %q timed out during settle", s.ID, command)
	}

	// 4. Drain loop.
	var outLines []string
	var records []mi.Record
	var sawError, sawRunning, sawStopped bool
	var errMsg string
	terminatedByExit := false

	for {
		select {
		case ev := <-s.lines:
			if ev.err != nil {
				s.finalizeIOFailure(ev.err)
				result := CommandResult{SessionID: s.ID, Command: command, RawOutput: strings.Join(outLines, "\n"), Records: records, Err: ev.err, Duration: time.Since(start)}
				s.reportCommand(result)
				return nil, nil, wrapErr(KindCommandFailed, ev.err, "session %s: gdb closed its output stream", s.ID)
			}

			outLines = append(outLines, ev.line)
			rec, perr := mi.ParseLine(ev.line)
			if perr != nil {
				// spec.md §4.2: a malformed line is local to itself; the
				// drain loop logs and continues rather than failing the
				// whole command.
				continue
			}
			if parseAll {
				records = append(records, rec)
			}

			switch {
			case rec.Kind == mi.KindConsoleStream:
				s.publish(Observation{SessionID: s.ID, Type: ObsConsoleOutput, Text: s.redact.Scrub(rec.Text)})

			case rec.Kind == mi.KindResult && rec.ResultClass == mi.Error:
				sawError = true
				if msgVal, ok := rec.Body.Get("msg"); ok {
					if m, ok := msgVal.Str(); ok {
						errMsg = m
					}
				}

			case (rec.Kind == mi.KindResult && rec.ResultClass == mi.Running) ||
				(rec.Kind == mi.KindExecAsync && rec.Class == "running"):
				sawRunning = true
				s.setState(Running)

			case rec.Kind == mi.KindExecAsync && rec.Class == "stopped":
				// spec.md §9 note 4: only the first *stopped completes a
				// command; later ones (not expected from standard MI) are
				// still published but don't re-fire completion logic.
				if !sawStopped {
					sawStopped = true
					s.setState(Stopped)
				}
				reason, _ := rec.Body.Get("reason")
				reasonStr, _ := reason.Str()
				s.publish(Observation{SessionID: s.ID, Type: ObsStopped, StopReason: reasonStr, StopDetails: rec.Body.JSON()})

			case rec.Kind == mi.KindPrompt || (rec.Kind == mi.KindResult && rec.ResultClass == mi.Exit):
				if sawRunning && !sawStopped {
					// The program is still running; this prompt belongs
					// to async output draining through, not our command's
					// completion (spec.md §4.4 step 4).
					continue
				}
				if rec.Kind == mi.KindResult && rec.ResultClass == mi.Exit {
					terminatedByExit = true
				}
				goto complete
			}

		case <-timeoutTimer.C:
			result := CommandResult{SessionID: s.ID, Command: command, RawOutput: strings.Join(outLines, "\n"), Records: records, Duration: time.Since(start), TimedOut: true}
			s.reportCommand(result)
			return nil, nil, newErr(KindTimeout, "session %s: command %q timed out after %s", s.ID, command, s.Timeout)

		case <-ctx.Done():
			result := CommandResult{SessionID: s.ID, Command: command, RawOutput: strings.Join(outLines, "\n"), Records: records, Err: ctx.Err(), Duration: time.Since(start)}
			s.reportCommand(result)
			return nil, nil, wrapErr(KindInternal, ctx.Err(), "session %s: command %q cancelled", s.ID, command)
		}
	}

complete:
	if terminatedByExit {
		s.finalizeTerminated(-1)
	}

	result := CommandResult{SessionID: s.ID, Command: command, RawOutput: strings.Join(outLines, "\n"), Records: records, Duration: time.Since(start)}
	if sawError {
		result.Err = newErr(KindCommandFailed, "%s", errMsg)
		s.reportCommand(result)
		return outLines, records, wrapErr(KindCommandFailed, nil, "%s", errMsg)
	}
	s.reportCommand(result)
	return outLines, records, nil
}

func (s *Supervisor) reportCommand(r CommandResult) {
	if s.OnCommand != nil {
		s.OnCommand(r)
	}
}

// sleepOrTimeout waits for d, returning false if the command's outer
// timeout or the context fires first. A zero or negative d returns
// immediately.
func (s *Supervisor) sleepOrTimeout(d time.Duration, timeoutC <-chan time.Time, ctx context.Context) bool {
	if d <= 0 {
		return true
	}
	delay := time.NewTimer(d)
	defer stopTimer(delay)
	select {
	case <-delay.C:
		return true
	case <-timeoutC:
		return false
	case <-ctx.Done():
		return false
	}
}

// finalizeIOFailure handles fatal I/O (EOF or read error) during a
// command: transition to Error, unless a graceful terminate is already in
// progress, in which case Terminated (spec.md §4.4 step 6, §4.6).
func (s *Supervisor) finalizeIOFailure(err error) {
	s.mu.Lock()
	terminating := s.terminating
	s.mu.Unlock()
	if terminating {
		s.finalizeTerminated(-1)
		return
	}
	s.setState(StateError)
}

func (s *Supervisor) finalizeTerminated(exitCode int) {
	s.setState(Terminated)
	s.publish(Observation{SessionID: s.ID, Type: ObsTerminated, ExitCode: exitCode})
}

// Terminate implements spec.md §4.6. The graceful path writes `quit` and
// allows terminationGracePeriod before forcing the process down; the fast
// path applies when the session is already terminal.
func (s *Supervisor) Terminate(ctx context.Context) error {
	if s.State().IsTerminal() {
		return nil // fast path: already terminated or failed
	}

	s.mu.Lock()
	s.terminating = true
	proc := s.process
	s.mu.Unlock()

	if proc == nil {
		s.finalizeTerminated(-1)
		return nil
	}

	_ = proc.WriteLine("quit")
	exitCode, err := proc.Stop(terminationGracePeriod)
	if err != nil {
		exitCode = -1
	}
	s.finalizeTerminated(exitCode)
	return nil
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// postCommandDelayFromEnv reads GDB_MCP_POST_COMMAND_DELAY_MS (spec.md §6),
// falling back to DefaultPostCommandDelay when unset or invalid.
func postCommandDelayFromEnv() time.Duration {
	v := os.Getenv("GDB_MCP_POST_COMMAND_DELAY_MS")
	if v == "" {
		return DefaultPostCommandDelay
	}
	ms, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return DefaultPostCommandDelay
	}
	return time.Duration(ms) * time.Millisecond
}
