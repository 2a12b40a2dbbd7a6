// Command gdbmcp runs the GDB MCP bridge: an MCP stdio server exposing
// GDB debugging sessions as tools, with optional SQLite-backed history
// and a read-only HTTP dashboard. Flag/env wiring follows the teacher's
// cobra+viper cmd/claudeops/main.go pattern, generalized from the
// CLAUDEOPS_ prefix to GDBMCP_.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gdbmcp/gdbmcp/internal/config"
	"github.com/gdbmcp/gdbmcp/internal/dashboard"
	"github.com/gdbmcp/gdbmcp/internal/mcpserver"
	"github.com/gdbmcp/gdbmcp/internal/session"
	"github.com/gdbmcp/gdbmcp/internal/store"
	"github.com/gdbmcp/gdbmcp/internal/summarize"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gdbmcp",
		Short: "MCP bridge exposing GDB debugging sessions as tools",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("gdb-path", "", "path to the gdb binary (default: gdb on PATH, or GDB_MCP_GDB_PATH if set)")
	f.Int("default-timeout-ms", 10000, "default per-command timeout in milliseconds")
	f.Int("post-command-delay-ms", 2000, "settle delay after writing a command before draining output")
	f.Int("max-sessions", 32, "maximum concurrent GDB sessions")
	f.String("state-dir", "./state", "directory for the session history database")
	f.Bool("dashboard", false, "serve the read-only HTTP dashboard")
	f.Int("dashboard-port", 8080, "HTTP port for the dashboard, when enabled")
	f.String("summary-model", "", "Anthropic model for session summaries (empty disables summarization)")
	f.String("transport", "stdio", "MCP transport (only stdio is implemented)")
	f.Bool("verbose", false, "enable verbose logging")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("gdb_path", "gdb-path")
	bindFlag("default_timeout_ms", "default-timeout-ms")
	bindFlag("post_command_delay_ms", "post-command-delay-ms")
	bindFlag("max_sessions", "max-sessions")
	bindFlag("state_dir", "state-dir")
	bindFlag("dashboard", "dashboard")
	bindFlag("dashboard_port", "dashboard-port")
	bindFlag("summary_model", "summary-model")
	bindFlag("transport", "transport")
	bindFlag("verbose", "verbose")

	viper.SetEnvPrefix("GDBMCP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	gdbPathLog := cfg.GDBPath
	if gdbPathLog == "" {
		gdbPathLog = "gdb (auto)"
	}
	log.Printf("gdbmcp starting: gdb=%s max-sessions=%d transport=%s", gdbPathLog, cfg.MaxSessions, cfg.Transport)

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.StateDir, "gdbmcp.db"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer st.Close() //nolint:errcheck

	var summarizer *summarize.Client
	if cfg.SummaryModel != "" {
		summarizer = summarize.New(cfg.SummaryModel)
	}

	manager := session.NewManager(session.ManagerConfig{
		GDBPath:        cfg.GDBPath,
		DefaultTimeout: cfg.DefaultTimeout(),
		MaxSessions:    cfg.MaxSessions,
		Redact:         session.NewRedactor(),
	})
	wireHistory(manager, st, summarizer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down", sig)
		cancel()
	}()

	var dashboardSrv *dashboard.Server
	if cfg.Dashboard {
		dashboardSrv = dashboard.New(manager, st, cfg.DashboardPort)
		go func() {
			if err := dashboardSrv.Start(); err != nil {
				log.Printf("dashboard server error: %v", err)
			}
		}()
	}

	srv := mcpserver.NewServer(manager)
	err = srv.Run(ctx)

	if dashboardSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutErr := dashboardSrv.Shutdown(shutdownCtx); shutErr != nil {
			log.Printf("dashboard shutdown: %v", shutErr)
		}
	}

	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// wireHistory hooks the manager's command/observation callbacks to persist
// session history to st, and to generate a closing summary via summarizer
// when one is configured. It keeps internal/session free of any
// internal/store import (store already imports session for CommandResult
// and Info).
func wireHistory(manager *session.Manager, st *store.Store, summarizer *summarize.Client) {
	bg := context.Background()

	manager.OnCommand = func(r session.CommandResult) {
		if err := st.RecordCommand(bg, r); err != nil {
			log.Printf("history: record command: %v", err)
		}
	}

	manager.OnObservation = func(o session.Observation) {
		switch o.Type {
		case session.ObsSessionAdded:
			sup, err := manager.Get(o.SessionID)
			if err != nil {
				return
			}
			if err := st.CreateSession(bg, sup.Info()); err != nil {
				log.Printf("history: create session: %v", err)
			}
		case session.ObsConsoleOutput:
			if err := st.RecordConsoleLine(bg, o.SessionID, o.Text); err != nil {
				log.Printf("history: record console line: %v", err)
			}
		case session.ObsTerminated:
			if err := st.EndSession(bg, o.SessionID, "terminated", o.ExitCode); err != nil {
				log.Printf("history: end session: %v", err)
			}
			if summarizer != nil {
				go summarizeSession(st, summarizer, o.SessionID)
			}
		}
	}
}

func summarizeSession(st *store.Store, summarizer *summarize.Client, sessionID string) {
	ctx := context.Background()
	commands, err := st.ListCommands(ctx, sessionID)
	if err != nil || len(commands) == 0 {
		return
	}

	entries := make([]summarize.TranscriptEntry, len(commands))
	for i, c := range commands {
		entries[i] = summarize.TranscriptEntry{Command: c.Command, Output: c.RawOutput}
	}

	summary, err := summarizer.Summarize(ctx, entries)
	if err != nil {
		log.Printf("history: summarize session %s: %v", sessionID, err)
		return
	}
	if summary == "" {
		return
	}
	if err := st.SaveSummary(ctx, sessionID, summary); err != nil {
		log.Printf("history: save summary: %v", err)
	}
}
