package mi

// StopReason is the normalized form of an *stopped record's "reason" field
// (spec.md §6 "Stop-reason normalization"). Grounded on the reason
// vocabulary used by other_examples' ulrichSchreiner/gdbmi stop-reason enum
// and the GDB/MI manual's documented reason strings.
type StopReason int

const (
	StopUnknown StopReason = iota
	StopBreakpoint
	StopWatchpoint
	StopSignal
	StopStep
	StopFinish
	StopExited
	StopExitedNormally
	StopExitedSignalled
)

func (r StopReason) String() string {
	switch r {
	case StopBreakpoint:
		return "breakpoint"
	case StopWatchpoint:
		return "watchpoint"
	case StopSignal:
		return "signal"
	case StopStep:
		return "step"
	case StopFinish:
		return "finish"
	case StopExited:
		return "exited"
	case StopExitedNormally:
		return "exited-normally"
	case StopExitedSignalled:
		return "exited-signalled"
	default:
		return "unknown"
	}
}

var stopReasonByName = map[string]StopReason{
	"breakpoint-hit":                   StopBreakpoint,
	"watchpoint-trigger":               StopWatchpoint,
	"read-watchpoint-trigger":          StopWatchpoint,
	"access-watchpoint-trigger":        StopWatchpoint,
	"signal-received":                  StopSignal,
	"end-stepping-range":               StopStep,
	"function-finished":                StopFinish,
	"exited":                           StopExited,
	"exited-normally":                  StopExitedNormally,
	"exited-signalled":                 StopExitedSignalled,
}

// NormalizeStopReason maps an MI *stopped "reason" string to a StopReason,
// per the table in spec.md §6. Unrecognized reasons (including an absent
// reason, which GDB omits for some stop causes like an explicit "interrupt")
// normalize to StopUnknown.
func NormalizeStopReason(reason string) StopReason {
	if r, ok := stopReasonByName[reason]; ok {
		return r
	}
	return StopUnknown
}

// StopReasonFromBody reads the "reason" member out of a *stopped record's
// body and normalizes it. Returns StopUnknown if the body carries no
// reason member (a bare *stopped, or a body that isn't a tuple).
func StopReasonFromBody(body Value) StopReason {
	reasonVal, ok := body.Get("reason")
	if !ok {
		return StopUnknown
	}
	reason, ok := reasonVal.Str()
	if !ok {
		return StopUnknown
	}
	return NormalizeStopReason(reason)
}
