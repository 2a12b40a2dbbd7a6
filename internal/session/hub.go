package session

import "sync"

// defaultObservationBufferCap bounds catch-up replay for a live session.
// It is sized for interactive debugging scrollback, not for archival
// history — that lives in internal/store, written line-by-line from
// OnObservation regardless of what this buffer retains or discards.
const defaultObservationBufferCap = 500

// observationBuffer holds the catch-up replay state for a single session's
// observation stream, plus the set of live subscriber channels. Unlike a
// plain ring of opaque payloads, append understands what kind of
// Observation it is holding:
//
//   - consecutive ObsConsoleOutput events are coalesced into one buffered
//     entry, since GDB can emit a burst of output lines for a single
//     command and a late subscriber only needs the concatenated text, not
//     one ring slot per line;
//   - an ObsTerminated event discards everything buffered before it. A
//     dead session has no "catch-up" to do: its console history already
//     landed in internal/store via OnObservation, and a dashboard client
//     subscribing after the fact only needs to learn that the session
//     ended, not replay a scrollback for a process that is no longer
//     running.
type observationBuffer struct {
	buf     []Observation
	pos     int
	clients map[chan Observation]struct{}
	done    bool
}

func newObservationBuffer() *observationBuffer {
	return &observationBuffer{
		buf:     make([]Observation, 0, defaultObservationBufferCap),
		clients: make(map[chan Observation]struct{}),
	}
}

func (s *observationBuffer) ordered() []Observation {
	n := len(s.buf)
	if n == 0 || s.pos == 0 {
		return s.buf
	}
	out := make([]Observation, n)
	copy(out, s.buf[s.pos:])
	copy(out[n-s.pos:], s.buf[:s.pos])
	return out
}

// lastIndex returns the buffer slot most recently written to, or -1 if the
// buffer is empty.
func (s *observationBuffer) lastIndex() int {
	if len(s.buf) == 0 {
		return -1
	}
	if len(s.buf) < cap(s.buf) {
		return len(s.buf) - 1
	}
	return (s.pos - 1 + cap(s.buf)) % cap(s.buf)
}

func (s *observationBuffer) append(o Observation) {
	if o.Type == ObsTerminated {
		s.buf = s.buf[:0]
		s.pos = 0
	} else if li := s.lastIndex(); li >= 0 && o.Type == ObsConsoleOutput && s.buf[li].Type == ObsConsoleOutput {
		s.buf[li].Text += "\n" + o.Text
		s.buf[li].Time = o.Time
		return
	}

	if len(s.buf) < cap(s.buf) {
		s.buf = append(s.buf, o)
	} else {
		s.buf[s.pos] = o
	}
	s.pos = (s.pos + 1) % cap(s.buf)
}

// Hub fans out per-session Observation events to any number of dashboard
// or logging subscribers. It buffers recent history per session so a
// late-joining subscriber sees catch-up events before live delivery.
// Delivery to subscribers is best-effort (spec.md §6: "lossy delivery is
// acceptable") — a slow consumer never blocks publication.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*observationBuffer
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*observationBuffer)}
}

func (h *Hub) getOrCreate(sessionID string) *observationBuffer {
	s, ok := h.sessions[sessionID]
	if !ok {
		s = newObservationBuffer()
		h.sessions[sessionID] = s
	}
	return s
}

// Publish fans o out to all current subscribers of o.SessionID and appends
// it to that session's replay buffer. Observations across different
// sessions carry no relative ordering guarantee (spec.md §5); within one
// session, Publish calls from the owning supervisor's single driving task
// are already serialized by construction. Every subscriber still receives
// o individually and in full — only the catch-up buffer coalesces or
// discards, never the live fan-out.
func (h *Hub) Publish(o Observation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.getOrCreate(o.SessionID)
	if s.done {
		return
	}
	s.append(o)

	for ch := range s.clients {
		select {
		case ch <- o:
		default:
		}
	}
}

// Subscribe returns a channel of future observations for sessionID plus an
// unsubscribe function. Buffered history is replayed immediately.
func (h *Hub) Subscribe(sessionID string) (<-chan Observation, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.getOrCreate(sessionID)
	ch := make(chan Observation, defaultObservationBufferCap+64)

	for _, o := range s.ordered() {
		ch <- o
	}

	if s.done {
		close(ch)
		return ch, func() {}
	}

	s.clients[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(s.clients, ch)
	}
	return ch, unsubscribe
}

// Close marks sessionID's stream done and closes all of its subscriber
// channels. Called when a session is removed from the manager.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	s.done = true
	for ch := range s.clients {
		close(ch)
	}
	s.clients = nil
}

// Remove deletes a session's buffer entirely, freeing its memory. Any
// remaining subscribers are closed first.
func (h *Hub) Remove(sessionID string) {
	h.Close(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}
