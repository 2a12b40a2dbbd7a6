// Package mcpserver implements an MCP (Model Context Protocol) server that
// exposes GDB debugging sessions as typed tools over stdio JSON-RPC. It is
// the tool-call boundary of spec.md §6: a thin adaptor translating
// create_session/start/execute/execute_mi/terminate/list/get calls onto an
// *session.Manager, shaping core errors into MCP's non-error
// error-payload convention (spec.md §7).
package mcpserver

import (
	"context"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/gdbmcp/gdbmcp/internal/session"
)

const serverVersion = "0.1.0"

// Server holds the MCP server state: the single session manager every
// tool handler operates on.
type Server struct {
	manager *session.Manager
}

// NewServer creates an MCP tool-call boundary backed by the given manager.
func NewServer(manager *session.Manager) *Server {
	return &Server{manager: manager}
}

// Run starts the MCP stdio server. It blocks until stdin is closed or ctx
// is cancelled, then terminates every live session before returning.
func (s *Server) Run(ctx context.Context) error {
	mcpServer := server.NewMCPServer(
		"gdbmcp",
		serverVersion,
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTools(
		server.ServerTool{Tool: createSessionTool(), Handler: s.handleCreateSession},
		server.ServerTool{Tool: startSessionTool(), Handler: s.handleStartSession},
		server.ServerTool{Tool: executeTool(), Handler: s.handleExecute},
		server.ServerTool{Tool: executeMITool(), Handler: s.handleExecuteMI},
		server.ServerTool{Tool: terminateSessionTool(), Handler: s.handleTerminateSession},
		server.ServerTool{Tool: listSessionsTool(), Handler: s.handleListSessions},
		server.ServerTool{Tool: getSessionTool(), Handler: s.handleGetSession},
	)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	s.manager.TerminateAll(context.Background())
	return err
}
