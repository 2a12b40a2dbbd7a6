package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Manager is the thread-safe registry of live sessions (spec.md §4.7): a
// single mutex protects the id→supervisor map; nothing else about a
// supervisor is touched while holding it. Grounded on the teacher's
// Manager (sync.Mutex-guarded single-resource owner), generalized from "one
// claude CLI run at a time" to "many concurrent GDB sessions, bounded by
// MaxSessions".
type Manager struct {
	gdbPath        string
	defaultTimeout time.Duration
	maxSessions    int
	runner         Runner
	hub            *Hub
	redact         *Redactor

	// OnCommand, if set, is wired into every Supervisor this Manager
	// creates, for optional history persistence (internal/store).
	OnCommand func(CommandResult)

	// OnObservation, if set, receives every observation published for any
	// session this Manager creates, for optional history persistence
	// (cmd/gdbmcp records session-added, console-output and terminated
	// events in internal/store without internal/session needing to import
	// internal/store).
	OnObservation func(Observation)

	mu       sync.Mutex
	sessions map[string]*Supervisor
	counter  uint64
}

// ManagerConfig carries the defaults new sessions are constructed with.
type ManagerConfig struct {
	GDBPath        string
	DefaultTimeout time.Duration
	MaxSessions    int
	Runner         Runner
	Hub            *Hub
	Redact         *Redactor
}

// NewManager constructs an empty Manager. A zero Runner defaults to
// GDBRunner{}; a zero Hub defaults to a fresh Hub so callers can always
// subscribe to observations even without wiring one in explicitly.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.GDBPath == "" {
		cfg.GDBPath = defaultGDBPath()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultCommandTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 32
	}
	if cfg.Runner == nil {
		cfg.Runner = GDBRunner{}
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub()
	}
	return &Manager{
		gdbPath:        cfg.GDBPath,
		defaultTimeout: cfg.DefaultTimeout,
		maxSessions:    cfg.MaxSessions,
		runner:         cfg.Runner,
		hub:            cfg.Hub,
		redact:         cfg.Redact,
		sessions:       make(map[string]*Supervisor),
	}
}

// Hub exposes the manager's observation hub so a dashboard or logger can
// subscribe across every session it creates.
func (m *Manager) Hub() *Hub { return m.hub }

// nextID generates a session identifier from a monotonic timestamp plus a
// per-manager counter (spec.md §3: "opaque, unique per process lifetime;
// generated from a monotonic timestamp plus a per-manager counter so
// collisions are impossible"). It deliberately does not use google/uuid:
// the identifier scheme is specified, not arbitrary.
func (m *Manager) nextID() string {
	n := atomic.AddUint64(&m.counter, 1)
	return fmt.Sprintf("gdb-%d-%04d", time.Now().UnixNano(), n)
}

// Create implements spec.md §4.7 create(): allocates an id, constructs a
// Supervisor with current defaults (or the given overrides), inserts it
// into the registry, and publishes session-added. It does not start the
// subprocess — call Start(ctx) on the returned session, or use
// CreateAndStart.
func (m *Manager) Create(gdbPath, workingDir string) (*Supervisor, error) {
	if gdbPath == "" {
		gdbPath = m.gdbPath
	}

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, newErr(KindSessionLimit, "session limit reached (%d)", m.maxSessions)
	}
	id := m.nextID()
	sup := NewSupervisor(id, gdbPath, workingDir, m.defaultTimeout, m.runner, m.hub, m.redact)
	sup.OnCommand = m.OnCommand
	m.sessions[id] = sup
	m.mu.Unlock()

	if m.OnObservation != nil {
		m.forwardObservations(id)
	}
	m.hub.Publish(Observation{SessionID: id, Type: ObsSessionAdded})
	return sup, nil
}

// forwardObservations subscribes to sessionID's stream for its whole
// lifetime and relays every event to OnObservation. The subscription ends
// on its own once Remove calls hub.Remove(sessionID), which closes the
// channel.
func (m *Manager) forwardObservations(sessionID string) {
	ch, _ := m.hub.Subscribe(sessionID)
	go func() {
		for o := range ch {
			m.OnObservation(o)
		}
	}()
}

// CreateAndStart is a convenience combining Create and Start, mirroring
// the typical create_session → start tool-call sequence (spec.md §6).
func (m *Manager) CreateAndStart(ctx context.Context, gdbPath, workingDir string) (*Supervisor, error) {
	sup, err := m.Create(gdbPath, workingDir)
	if err != nil {
		return nil, err
	}
	if err := sup.Start(ctx); err != nil {
		return sup, err
	}
	return sup, nil
}

// Get implements spec.md §4.7 get(id).
func (m *Manager) Get(id string) (*Supervisor, error) {
	m.mu.Lock()
	sup, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sup, nil
}

// List implements spec.md §4.7 list(): a snapshot of every session's Info,
// never the live supervisors themselves (spec.md §4.1 invariant 1).
func (m *Manager) List() []Info {
	m.mu.Lock()
	snapshot := make([]*Supervisor, 0, len(m.sessions))
	for _, sup := range m.sessions {
		snapshot = append(snapshot, sup)
	}
	m.mu.Unlock()

	infos := make([]Info, len(snapshot))
	for i, sup := range snapshot {
		infos[i] = sup.Info()
	}
	return infos
}

// Count implements spec.md §4.7 count().
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Remove implements spec.md §4.7 remove(id): terminates the session,
// drops it from the registry, and publishes session-removed. The mutex is
// released before the (blocking) terminate call, per spec.md §4.7
// "holding the mutex must never straddle a blocking I/O call".
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	sup, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	_ = sup.Terminate(ctx)
	m.hub.Remove(id)
	m.hub.Publish(Observation{SessionID: id, Type: ObsSessionRemoved})
	return nil
}

// TerminateAll implements spec.md §4.7 terminate_all(): snapshot the id set
// under lock, then drop the lock and terminate+remove each one.
func (m *Manager) TerminateAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Remove(ctx, id)
	}
}
