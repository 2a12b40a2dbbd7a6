package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdbmcp/gdbmcp/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndEndSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := session.Info{
		ID:         "gdb-1-0001",
		GDBPath:    "/usr/bin/gdb",
		WorkingDir: "/tmp",
		Program:    "",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.CreateSession(ctx, info))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, info.ID, sessions[0].ID)
	assert.Equal(t, -1, sessions[0].ExitCode)
	assert.Nil(t, sessions[0].EndedAt)

	require.NoError(t, s.EndSession(ctx, info.ID, "terminated", 0))

	sessions, err = s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "terminated", sessions[0].FinalState)
	assert.Equal(t, 0, sessions[0].ExitCode)
	require.NotNil(t, sessions[0].EndedAt)
}

func TestStore_RecordAndListCommands(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := session.Info{ID: "gdb-1-0002", GDBPath: "gdb", CreatedAt: time.Now()}
	require.NoError(t, s.CreateSession(ctx, info))

	require.NoError(t, s.RecordCommand(ctx, session.CommandResult{
		SessionID: info.ID,
		Command:   "break main",
		RawOutput: "^done\n(gdb)\n",
		Duration:  15 * time.Millisecond,
	}))
	require.NoError(t, s.RecordCommand(ctx, session.CommandResult{
		SessionID: info.ID,
		Command:   "run",
		RawOutput: "^running\n*stopped,reason=\"breakpoint-hit\"\n(gdb)\n",
		Duration:  1200 * time.Millisecond,
	}))

	cmds, err := s.ListCommands(ctx, info.ID)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "break main", cmds[0].Command)
	assert.Equal(t, "run", cmds[1].Command)
	assert.False(t, cmds[0].TimedOut)
	assert.Equal(t, int64(1200), cmds[1].DurationMs)
}

func TestStore_RecordCommandWithError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := session.Info{ID: "gdb-1-0003", GDBPath: "gdb", CreatedAt: time.Now()}
	require.NoError(t, s.CreateSession(ctx, info))

	require.NoError(t, s.RecordCommand(ctx, session.CommandResult{
		SessionID: info.ID,
		Command:   "print bogus",
		TimedOut:  true,
		Err:       context.DeadlineExceeded,
	}))

	cmds, err := s.ListCommands(ctx, info.ID)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.True(t, cmds[0].TimedOut)
	assert.Contains(t, cmds[0].Error, "deadline exceeded")
}

func TestStore_RecordConsoleLine(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := session.Info{ID: "gdb-1-0004", GDBPath: "gdb", CreatedAt: time.Now()}
	require.NoError(t, s.CreateSession(ctx, info))

	require.NoError(t, s.RecordConsoleLine(ctx, info.ID, "Breakpoint 1 at 0x1149: file main.c, line 5."))
	require.NoError(t, s.RecordConsoleLine(ctx, info.ID, "Starting program: /tmp/a.out"))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM console_lines WHERE session_id = ?`, info.ID).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestStore_SaveSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := session.Info{ID: "gdb-1-0005", GDBPath: "gdb", CreatedAt: time.Now()}
	require.NoError(t, s.CreateSession(ctx, info))
	require.NoError(t, s.SaveSummary(ctx, info.ID, "Debugged a segfault in main(), fixed by bounds-checking the array index."))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Contains(t, sessions[0].Summary, "segfault")
}
