package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess is an in-memory Process double driven over io.Pipe, letting
// tests act as the "gdb" side of the conversation: read what the
// supervisor writes, and write back canned MI lines.
type fakeProcess struct {
	toGDB   *io.PipeReader // what the supervisor wrote
	toGDBW  *io.PipeWriter
	fromGDB *io.PipeReader
	fromGDBW *io.PipeWriter

	mu      sync.Mutex
	stopped bool
}

func newFakeProcess() *fakeProcess {
	tr, tw := io.Pipe()
	fr, fw := io.Pipe()
	return &fakeProcess{toGDB: tr, toGDBW: tw, fromGDB: fr, fromGDBW: fw}
}

func (f *fakeProcess) ReadLine() (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := f.fromGDB.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
	}
}

func (f *fakeProcess) WriteLine(s string) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return io.ErrClosedPipe
	}
	f.mu.Unlock()
	_, err := io.WriteString(f.toGDBW, s+"\n")
	return err
}

func (f *fakeProcess) CloseStdin() error {
	return f.toGDBW.Close()
}

func (f *fakeProcess) Stop(grace time.Duration) (int, error) {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	_ = f.toGDBW.Close()
	_ = f.fromGDBW.Close()
	return 0, nil
}

// readCommand reads one newline-delimited line the supervisor wrote (the
// GDB command string, without trailing newline).
func (f *fakeProcess) readCommand(t *testing.T) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := f.toGDB.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String()
			}
			sb.WriteByte(buf[0])
		}
		require.NoError(t, err)
	}
}

// send writes a canned MI line (without trailing newline) to the
// supervisor's read side.
func (f *fakeProcess) send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(f.fromGDBW, line+"\n")
	require.NoError(t, err)
}

type fakeRunner struct {
	proc *fakeProcess
}

func (r *fakeRunner) Start(ctx context.Context, gdbPath, workingDir string) (Process, error) {
	return r.proc, nil
}

func newTestSupervisor(t *testing.T, proc *fakeProcess) *Supervisor {
	t.Helper()
	sup := NewSupervisor("s-test-1", "gdb", "", 2*time.Second, &fakeRunner{proc: proc}, NewHub(), nil)
	sup.PostCommandDelay = 0
	return sup
}

func startReady(t *testing.T, sup *Supervisor, proc *fakeProcess) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Start(context.Background()) }()
	proc.send(t, "(gdb)")
	require.NoError(t, <-errCh)
	assert.Equal(t, Ready, sup.State())
}

func TestSupervisor_StartReachesReady(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)
}

func TestSupervisor_StartTimesOutWithoutPrompt(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	sup.Timeout = 30 * time.Millisecond

	err := sup.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, StateError, sup.State())
}

func TestSupervisor_ExecuteDoneCompletesOnFirstPrompt(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := sup.Execute(context.Background(), "print x")
		resultCh <- out
		errCh <- err
	}()

	assert.Equal(t, "print x", proc.readCommand(t))
	proc.send(t, `~"$1 = 42\n"`)
	proc.send(t, "^done")
	proc.send(t, "(gdb)")

	require.NoError(t, <-errCh)
	out := <-resultCh
	assert.Contains(t, out, "^done")
	assert.Equal(t, Ready, sup.State())
}

func TestSupervisor_ExecuteErrorResultIsReported(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)

	errCh := make(chan error, 1)
	go func() {
		_, err := sup.Execute(context.Background(), "print bogus")
		errCh <- err
	}()

	proc.readCommand(t)
	proc.send(t, `^error,msg="No symbol \"bogus\" in current context."`)
	proc.send(t, "(gdb)")

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, KindCommandFailed, KindOf(err))
}

// TestSupervisor_DrainWaitsForStoppedNotPrompt covers the drain loop's
// discipline (scenario S6/S7-adjacent): once ^running is seen, an
// intervening "(gdb)" prompt must not complete the command; only a prompt
// that follows the first *stopped does.
func TestSupervisor_DrainWaitsForStoppedNotPrompt(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := sup.Execute(context.Background(), "continue")
		resultCh <- out
		errCh <- err
	}()

	proc.readCommand(t)
	proc.send(t, "^running")
	proc.send(t, "(gdb)") // must be ignored: running but not yet stopped
	proc.send(t, `*stopped,reason="breakpoint-hit",bkptno="1"`)
	proc.send(t, "(gdb)")

	require.NoError(t, <-errCh)
	out := <-resultCh
	assert.Contains(t, out, "*stopped")
	assert.Equal(t, Stopped, sup.State())
}

func TestSupervisor_ExecuteTimesOutAndReleasesSlot(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	sup.Timeout = 30 * time.Millisecond
	startReady(t, sup, proc)
	sup.Timeout = 30 * time.Millisecond // re-apply post-Ready (Start used the same field)

	firstErrCh := make(chan error, 1)
	go func() {
		_, err := sup.Execute(context.Background(), "continue")
		firstErrCh <- err
	}()
	proc.readCommand(t)
	err := <-firstErrCh
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))

	// A second command can still be admitted once the slot is released,
	// proving the timed-out command didn't leave commandInFlight stuck.
	sup.Timeout = 2 * time.Second
	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err2 := sup.Execute(context.Background(), "print 1")
		resultCh <- out
		errCh <- err2
	}()
	proc.readCommand(t)
	proc.send(t, "^done")
	proc.send(t, "(gdb)")
	require.NoError(t, <-errCh)
	<-resultCh
}

func TestSupervisor_ExecuteRejectedWhenNotReady(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	// Never started: state is Disconnected, which does not accept commands.
	_, err := sup.Execute(context.Background(), "print 1")
	require.Error(t, err)
	assert.Equal(t, KindSessionNotReady, KindOf(err))
}

func TestSupervisor_ExecuteMIReturnsParsedRecords(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)

	recCh := make(chan []interface{}, 1)
	errCh := make(chan error, 1)
	go func() {
		recs, err := sup.ExecuteMI(context.Background(), "print x")
		out := make([]interface{}, len(recs))
		for i, r := range recs {
			out[i] = r
		}
		recCh <- out
		errCh <- err
	}()

	proc.readCommand(t)
	proc.send(t, "^done")
	proc.send(t, "(gdb)")

	require.NoError(t, <-errCh)
	recs := <-recCh
	assert.NotEmpty(t, recs)
}

func TestSupervisor_TerminateFromReadyIsGraceful(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)
	go func() { _, _ = io.Copy(io.Discard, proc.toGDB) }() // consume the "quit" write

	err := sup.Terminate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Terminated, sup.State())
}

func TestSupervisor_TerminateIsIdempotentOnTerminalState(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)
	go func() { _, _ = io.Copy(io.Discard, proc.toGDB) }() // consume the "quit" write

	require.NoError(t, sup.Terminate(context.Background()))
	require.NoError(t, sup.Terminate(context.Background())) // fast path, no panic/hang
}

func TestSupervisor_FatalIOFailureDuringCommandTransitionsToError(t *testing.T) {
	proc := newFakeProcess()
	sup := newTestSupervisor(t, proc)
	startReady(t, sup, proc)

	errCh := make(chan error, 1)
	go func() {
		_, err := sup.Execute(context.Background(), "continue")
		errCh <- err
	}()

	proc.readCommand(t)
	_ = proc.fromGDBW.Close() // simulate gdb dying mid-command

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, KindCommandFailed, KindOf(err))
	assert.Equal(t, StateError, sup.State())
}
