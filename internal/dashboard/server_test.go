package dashboard

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdbmcp/gdbmcp/internal/session"
)

type fakeProcess struct {
	fromGDB  *io.PipeReader
	fromGDBW *io.PipeWriter
	toGDB    *io.PipeReader
	toGDBW   *io.PipeWriter
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
	_, err := io.WriteString(f.toGDBW, s+"\n")
	return err
}

func (f *fakeProcess) CloseStdin() error { return f.toGDBW.Close() }

func (f *fakeProcess) Stop(grace time.Duration) (int, error) {
	_ = f.toGDBW.Close()
	_ = f.fromGDBW.Close()
	return 0, nil
}

func (f *fakeProcess) send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(f.fromGDBW, line+"\n")
	require.NoError(t, err)
}

type fakeRunner struct{ proc *fakeProcess }

func (r *fakeRunner) Start(ctx context.Context, gdbPath, workingDir string) (session.Process, error) {
	return r.proc, nil
}

func newTestServer(t *testing.T) (*Server, *session.Manager, *fakeProcess) {
	t.Helper()
	proc := newFakeProcess()
	mgr := session.NewManager(session.ManagerConfig{Runner: &fakeRunner{proc: proc}})
	return New(mgr, nil, 0), mgr, proc
}

func TestHandleIndex_Empty(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No sessions yet")
}

func TestHandleIndex_ListsSession(t *testing.T) {
	s, mgr, _ := newTestServer(t)
	sup, err := mgr.Create("gdb", t.TempDir())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sup.Info().ID)
}

func TestHandleSession_UnknownIsNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSession_RendersKnownSession(t *testing.T) {
	s, mgr, _ := newTestServer(t)
	sup, err := mgr.Create("gdb", t.TempDir())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+sup.Info().ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No commands recorded yet")
}

func TestHandleHistory_EmptyWithoutStore(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No completed sessions recorded")
}
