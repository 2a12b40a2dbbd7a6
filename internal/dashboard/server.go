// Package dashboard serves a read-only HTTP view of live and historical
// GDB sessions: an index of sessions, a per-session transcript, and an
// SSE stream of live observation events. Trimmed down from the teacher's
// internal/web package, which serves the same shape of
// overview/detail/SSE pages for tier-escalation sessions — same
// html/template + embed.FS + goldmark wiring, same render()/SSE-handler
// structure, pointed at internal/session.Manager and internal/store
// instead of internal/db.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/gdbmcp/gdbmcp/internal/session"
	"github.com/gdbmcp/gdbmcp/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the GDB session dashboard's HTTP server.
type Server struct {
	manager *session.Manager
	store   *store.Store
	mux     *http.ServeMux
	tmpl    *template.Template
	server  *http.Server
}

// New creates a dashboard bound to manager and store, listening on port.
// store may be nil: history pages render empty rather than failing, since
// the dashboard's live-session views only need the manager.
func New(manager *session.Manager, st *store.Store, port int) *Server {
	s := &Server{manager: manager, store: st, mux: http.NewServeMux()}
	s.parseTemplates()
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams never time out a write
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("dashboard listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) parseTemplates() {
	funcMap := template.FuncMap{
		"fmtTime": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04:05 UTC")
		},
		"fmtTimePtr": func(t *time.Time) string {
			if t == nil {
				return "--"
			}
			return t.UTC().Format("2006-01-02 15:04:05 UTC")
		},
		"stateClass": func(state string) string {
			switch state {
			case "ready", "stopped":
				return "state-ok"
			case "running":
				return "state-running"
			case "error", "terminated":
				return "state-down"
			default:
				return "state-unknown"
			}
		},
		"renderMarkdown": func(md string) template.HTML {
			gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
			var buf bytes.Buffer
			if err := gm.Convert([]byte(md), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(md))
			}
			return template.HTML(buf.String())
		},
	}

	s.tmpl = template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	s.mux.HandleFunc("GET /sessions/{id}/stream", s.handleSessionStream)
	s.mux.HandleFunc("GET /history", s.handleHistory)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("dashboard: template %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	layoutData := struct {
		Content template.HTML
	}{Content: template.HTML(buf.String())}
	if err := s.tmpl.ExecuteTemplate(w, "layout.html", layoutData); err != nil {
		log.Printf("dashboard: layout+%s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct{ Sessions []session.Info }{Sessions: s.manager.List()}
	s.render(w, "index.html", data)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sup, err := s.manager.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var commands []store.CommandRecord
	if s.store != nil {
		commands, _ = s.store.ListCommands(r.Context(), id)
	}

	data := struct {
		Info     session.Info
		Commands []store.CommandRecord
	}{Info: sup.Info(), Commands: commands}
	s.render(w, "session.html", data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var sessions []store.SessionRecord
	if s.store != nil {
		var err error
		sessions, err = s.store.ListSessions(r.Context())
		if err != nil {
			log.Printf("dashboard: history: %v", err)
		}
	}
	data := struct{ Sessions []store.SessionRecord }{Sessions: sessions}
	s.render(w, "history.html", data)
}

// handleSessionStream streams a session's observation events as SSE,
// grounded on the teacher's handleSessionStream: same retry-interval
// header, same flusher discipline, same unsubscribe-on-disconnect shape.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "retry: 30000\n\n")
	flusher.Flush()

	clientID := uuid.NewString()
	log.Printf("dashboard: client %s subscribed to session %s", clientID, id)
	defer log.Printf("dashboard: client %s disconnected from session %s", clientID, id)

	ch, unsubscribe := s.manager.Hub().Subscribe(id)
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-ch:
			if !ok {
				writeSSE(w, "done", "session closed")
				flusher.Flush()
				return
			}
			writeSSE(w, o.Type.String(), sseLine(o))
			flusher.Flush()
		}
	}
}

// writeSSE writes an SSE event, prefixing every line of data with "data: "
// per the wire format — console output can itself contain newlines.
func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func sseLine(o session.Observation) string {
	switch o.Type {
	case session.ObsConsoleOutput:
		return o.Text
	case session.ObsStateChanged:
		return o.OldState.String() + " -> " + o.NewState.String()
	case session.ObsStopped:
		return o.StopReason
	case session.ObsTerminated:
		return fmt.Sprintf("exit code %d", o.ExitCode)
	default:
		return o.Type.String()
	}
}
