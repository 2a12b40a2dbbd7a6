package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_JSON(t *testing.T) {
	tup := NewTuple()
	tup.Set("addr", String("0x1234"))
	tup.Set("func", String("main"))

	list := NewList()
	list.Append(String("a"))
	list.Append(String("b"))
	tup.Set("names", list)

	assert.Equal(t, `{"addr":"0x1234","func":"main","names":["a","b"]}`, tup.JSON())
}

func TestValue_JSONEscaping(t *testing.T) {
	v := String("line1\nline2\t\"quoted\"\\backslash")
	assert.Equal(t, `"line1\nline2\t\"quoted\"\\backslash"`, v.JSON())
}

func TestValue_SetReplacesInPlace(t *testing.T) {
	tup := NewTuple()
	tup.Set("a", String("1"))
	tup.Set("b", String("2"))
	tup.Set("a", String("updated"))

	assert.Equal(t, []string{"a", "b"}, tup.Names())
	a, _ := tup.Get("a")
	s, _ := a.Str()
	assert.Equal(t, "updated", s)
}

func TestValue_Equal(t *testing.T) {
	a := NewTuple()
	a.Set("x", String("1"))
	b := NewTuple()
	b.Set("x", String("1"))
	assert.True(t, a.Equal(b))

	c := NewTuple()
	c.Set("x", String("2"))
	assert.False(t, a.Equal(c))

	assert.False(t, a.Equal(String("1")))
}

func TestNormalizeStopReason(t *testing.T) {
	cases := map[string]StopReason{
		"breakpoint-hit":            StopBreakpoint,
		"watchpoint-trigger":        StopWatchpoint,
		"read-watchpoint-trigger":   StopWatchpoint,
		"access-watchpoint-trigger": StopWatchpoint,
		"signal-received":           StopSignal,
		"end-stepping-range":        StopStep,
		"function-finished":         StopFinish,
		"exited":                    StopExited,
		"exited-normally":           StopExitedNormally,
		"exited-signalled":          StopExitedSignalled,
		"something-else":           StopUnknown,
	}
	for reason, want := range cases {
		assert.Equal(t, want, NormalizeStopReason(reason), reason)
	}
}
