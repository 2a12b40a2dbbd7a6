package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gdbmcp/gdbmcp/internal/mi"
	"github.com/gdbmcp/gdbmcp/internal/session"
)

// --- Tool definitions ---

func createSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"create_session",
		"Create a new GDB debugging session. Does not start the subprocess; call start_session next.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"gdb_path": {
					"type": "string",
					"description": "Path to the gdb binary (default: gdb on PATH, or GDB_MCP_GDB_PATH)"
				},
				"working_dir": {
					"type": "string",
					"description": "Working directory gdb should be launched in"
				}
			}
		}`),
	)
}

func startSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"start_session",
		"Spawn the GDB subprocess for a created session and wait for it to become ready.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": { "type": "string", "description": "Session identifier returned by create_session" }
			},
			"required": ["session_id"]
		}`),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"execute",
		"Send a GDB MI command to a ready or stopped session and wait for it to complete. Returns the raw concatenated output.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": { "type": "string", "description": "Session identifier" },
				"command": { "type": "string", "description": "GDB command string, e.g. \"break main\" or \"-break-insert main\"" }
			},
			"required": ["session_id", "command"]
		}`),
	)
}

func executeMITool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"execute_mi",
		"Like execute, but returns the ordered list of parsed MI records instead of raw text.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": { "type": "string", "description": "Session identifier" },
				"command": { "type": "string", "description": "GDB command string" }
			},
			"required": ["session_id", "command"]
		}`),
	)
}

func terminateSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"terminate_session",
		"Terminate a session's GDB subprocess, gracefully then forcibly, and remove it from the registry.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": { "type": "string", "description": "Session identifier" }
			},
			"required": ["session_id"]
		}`),
	)
}

func listSessionsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list_sessions",
		"List every live session and its current state.",
		json.RawMessage(`{ "type": "object", "properties": {} }`),
	)
}

func getSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_session",
		"Get a single session's current state and metadata.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": { "type": "string", "description": "Session identifier" }
			},
			"required": ["session_id"]
		}`),
	)
}

// --- Argument/result shapes ---

type createSessionArgs struct {
	GDBPath    string `json:"gdb_path"`
	WorkingDir string `json:"working_dir"`
}

type sessionIDArgs struct {
	SessionID string `json:"session_id"`
}

type executeArgs struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
}

// infoResult is the JSON-friendly projection of session.Info returned by
// create_session, start_session, get_session, and list_sessions.
type infoResult struct {
	ID             string `json:"id"`
	State          string `json:"state"`
	GDBPath        string `json:"gdb_path"`
	WorkingDir     string `json:"working_dir,omitempty"`
	Program        string `json:"program,omitempty"`
	CreatedAt      string `json:"created_at"`
	TimeoutMs      int64  `json:"timeout_ms"`
	CommandPending bool   `json:"command_pending"`
}

func toInfoResult(info session.Info) infoResult {
	return infoResult{
		ID:             info.ID,
		State:          info.State.String(),
		GDBPath:        info.GDBPath,
		WorkingDir:     info.WorkingDir,
		Program:        info.Program,
		CreatedAt:      info.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		TimeoutMs:      info.Timeout.Milliseconds(),
		CommandPending: info.CommandPending,
	}
}

type executeResult struct {
	RawOutput string `json:"raw_output"`
}

// miRecordResult is the JSON-friendly projection of mi.Record: Body is
// re-encoded through Value.JSON() rather than Go's struct tags, since
// Value's variants are represented with unexported fields by design (its
// only public serialization is JSON()/GoString()).
type miRecordResult struct {
	Kind        string          `json:"kind"`
	Token       *int64          `json:"token,omitempty"`
	Class       string          `json:"class,omitempty"`
	ResultClass string          `json:"result_class,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
	Text        string          `json:"text,omitempty"`
}

func toMIRecordResult(r mi.Record) miRecordResult {
	out := miRecordResult{
		Kind:  r.Kind.String(),
		Token: r.Token,
		Class: r.Class,
		Text:  r.Text,
	}
	if r.Kind == mi.KindResult {
		out.ResultClass = r.ResultClass.String()
	}
	if r.Kind == mi.KindResult || r.Kind == mi.KindExecAsync || r.Kind == mi.KindStatusAsync || r.Kind == mi.KindNotifyAsync {
		out.Body = json.RawMessage(r.Body.JSON())
	}
	return out
}

type executeMIResult struct {
	Records []miRecordResult `json:"records"`
}

type listSessionsResult struct {
	Sessions []infoResult `json:"sessions"`
}

// --- Handlers ---

func (s *Server) handleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createSessionArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	sup, err := s.manager.Create(args.GDBPath, args.WorkingDir)
	if err != nil {
		return errorResult(err), nil
	}
	return resultJSON(toInfoResult(sup.Info()))
}

func (s *Server) handleStartSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionIDArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	sup, err := s.manager.Get(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	if err := sup.Start(ctx); err != nil {
		return errorResult(err), nil
	}
	return resultJSON(toInfoResult(sup.Info()))
}

func (s *Server) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args executeArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SessionID == "" || args.Command == "" {
		return mcp.NewToolResultError("session_id and command are required"), nil
	}

	sup, err := s.manager.Get(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	out, err := sup.Execute(ctx, args.Command)
	if err != nil {
		return errorResult(err), nil
	}
	return resultJSON(executeResult{RawOutput: out})
}

func (s *Server) handleExecuteMI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args executeArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SessionID == "" || args.Command == "" {
		return mcp.NewToolResultError("session_id and command are required"), nil
	}

	sup, err := s.manager.Get(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	records, err := sup.ExecuteMI(ctx, args.Command)
	if err != nil {
		return errorResult(err), nil
	}
	out := make([]miRecordResult, len(records))
	for i, r := range records {
		out[i] = toMIRecordResult(r)
	}
	return resultJSON(executeMIResult{Records: out})
}

func (s *Server) handleTerminateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionIDArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	if err := s.manager.Remove(ctx, args.SessionID); err != nil {
		return errorResult(err), nil
	}
	return resultJSON(map[string]bool{"terminated": true})
}

func (s *Server) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.manager.List()
	out := make([]infoResult, len(infos))
	for i, info := range infos {
		out[i] = toInfoResult(info)
	}
	return resultJSON(listSessionsResult{Sessions: out})
}

func (s *Server) handleGetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionIDArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	sup, err := s.manager.Get(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return resultJSON(toInfoResult(sup.Info()))
}

// --- Shared helpers ---

func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult shapes a core error into MCP's non-error error-payload
// convention (spec.md §7: "the core itself returns programmatic errors and
// lets the boundary shape the user-visible form").
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", session.KindOf(err), err))
}
