package session

import (
	"time"

	"github.com/google/uuid"
)

// ObservationType discriminates the publish-only events a session emits
// (spec.md §6 "Observation events").
type ObservationType int

const (
	ObsStateChanged ObservationType = iota
	ObsStopped
	ObsConsoleOutput
	ObsReady
	ObsTerminated
	ObsSessionAdded
	ObsSessionRemoved
)

func (t ObservationType) String() string {
	switch t {
	case ObsStateChanged:
		return "state-changed"
	case ObsStopped:
		return "stopped"
	case ObsConsoleOutput:
		return "console-output"
	case ObsReady:
		return "ready"
	case ObsTerminated:
		return "terminated"
	case ObsSessionAdded:
		return "session-added"
	case ObsSessionRemoved:
		return "session-removed"
	default:
		return "unknown"
	}
}

// Observation is a single publish-only event, delivery of which may be
// lossy (spec.md §6). ID is a correlation id for log/dashboard
// cross-referencing only — it is not the session identifier, which spec.md
// §3 requires to be the timestamp+counter scheme implemented in manager.go.
type Observation struct {
	ID        string
	SessionID string
	Type      ObservationType
	Time      time.Time

	// Populated depending on Type.
	OldState    State      // ObsStateChanged
	NewState    State      // ObsStateChanged
	StopReason  string     // ObsStopped (raw MI reason string)
	StopDetails string     // ObsStopped (JSON body)
	Text        string     // ObsConsoleOutput
	ExitCode    int        // ObsTerminated (-1 if unknown)
}

func newObservation(sessionID string, typ ObservationType, now time.Time) Observation {
	return Observation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      typ,
		Time:      now,
		ExitCode:  -1,
	}
}
