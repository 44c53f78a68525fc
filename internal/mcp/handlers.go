package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/varsnap/varsnap/internal/adapters"
	"github.com/varsnap/varsnap/internal/capture"
	internaldap "github.com/varsnap/varsnap/internal/dap"
	"github.com/varsnap/varsnap/internal/errors"
	"github.com/varsnap/varsnap/pkg/types"
)

// Session Management Handlers

func (s *Server) handleDebugLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	langStr, err := request.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("language",
			"Specify the programming language: 'go', 'python', 'javascript', or 'typescript'.").Error()), nil
	}

	program, err := request.RequireString("program")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("program",
			"Specify the path to the program to debug. For Go: path to the main package directory. For Python/JS: path to the script file.").Error()), nil
	}

	lang := types.Language(langStr)

	adapter, err := s.adapterReg.Get(lang)
	if err != nil {
		return mcp.NewToolResultError(errors.AdapterNotSupported(langStr, s.adapterReg.Languages()).Error()), nil
	}

	session, err := s.sessionManager.CreateSession(lang, program)
	if err != nil {
		return mcp.NewToolResultError(errors.SessionLimitReached(s.config.MaxSessions).Error()), nil
	}

	args := make(map[string]interface{})
	if cwd, err := request.RequireString("cwd"); err == nil {
		args["cwd"] = cwd
	}
	if stopOnEntry := request.GetBool("stopOnEntry", false); stopOnEntry {
		args["stopOnEntry"] = true
	}
	if pythonPath, err := request.RequireString("pythonPath"); err == nil {
		args["pythonPath"] = pythonPath
	}

	client, cmd, err := adapters.SpawnAndConnect(ctx, adapter, program, args)
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, false)
		return mcp.NewToolResultError(errors.AdapterSpawnFailed(langStr, err).Error()), nil
	}

	if cmd != nil && cmd.Process != nil {
		s.sessionManager.SetSessionProcess(session.ID, cmd, cmd.Process.Pid)
	}

	s.sessionManager.SetSessionClient(session.ID, client)

	_, err = client.Initialize("varsnap", "varsnap")
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPInitFailed(err).Error()), nil
	}

	// Launch asynchronously: debugpy holds the launch response until after
	// configurationDone
	launchArgs := adapter.BuildLaunchArgs(program, args)
	launchRespCh, err := client.LaunchAsync(launchArgs)
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPLaunchFailed(program, err).Error()), nil
	}

	if err := client.WaitInitialized(10 * time.Second); err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPLaunchFailed(program, fmt.Errorf("waiting for initialized event: %w", err)).Error()), nil
	}

	if client.Capabilities().SupportsConfigurationDoneRequest {
		if err := client.ConfigurationDone(); err != nil {
			s.sessionManager.TerminateSession(session.ID, true)
			return mcp.NewToolResultError(errors.DAPLaunchFailed(program, fmt.Errorf("configuration done: %w", err)).Error()), nil
		}
	}

	_, err = client.WaitForLaunchResponse(launchRespCh, 10*time.Second)
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPLaunchFailed(program, err).Error()), nil
	}

	s.sessionManager.UpdateSessionStatus(session.ID, types.SessionStatusRunning)

	result := map[string]interface{}{
		"sessionId": session.ID,
		"status":    "launched",
		"language":  string(lang),
		"program":   program,
	}
	if cmd != nil && cmd.Process != nil {
		result["pid"] = cmd.Process.Pid
	}

	return jsonResult(result)
}

func (s *Server) handleDebugAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	langStr, err := request.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("language",
			"Specify the programming language of the process to attach to: 'go', 'python', 'javascript', 'typescript'.").Error()), nil
	}

	lang := types.Language(langStr)

	adapter, err := s.adapterReg.Get(lang)
	if err != nil {
		return mcp.NewToolResultError(errors.AdapterNotSupported(langStr, s.adapterReg.Languages()).Error()), nil
	}

	session, err := s.sessionManager.CreateSession(lang, "attached")
	if err != nil {
		return mcp.NewToolResultError(errors.SessionLimitReached(s.config.MaxSessions).Error()), nil
	}

	host := "127.0.0.1"
	if h, err := request.RequireString("host"); err == nil {
		host = h
	}

	port, err := request.RequireFloat("port")
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, false)
		return mcp.NewToolResultError(errors.MissingParameter("port",
			"Specify the TCP port the debug adapter is listening on.").Error()), nil
	}

	args := map[string]interface{}{
		"host": host,
		"port": port,
	}
	if pid, err := request.RequireFloat("pid"); err == nil {
		args["pid"] = pid
	}

	address := fmt.Sprintf("%s:%d", host, int(port))
	client, err := adapters.Connect(address, 10)
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, false)
		return mcp.NewToolResultError(errors.AdapterConnectFailed(address, err).Error()), nil
	}

	s.sessionManager.SetSessionClient(session.ID, client)

	_, err = client.Initialize("varsnap", "varsnap")
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPInitFailed(err).Error()), nil
	}

	// Same async pattern as launch: debugpy in listen mode holds the attach
	// response until configurationDone
	attachArgs := adapter.BuildAttachArgs(args)
	attachRespCh, err := client.AttachAsync(attachArgs)
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPAttachFailed(err).Error()), nil
	}

	if err := client.WaitInitialized(10 * time.Second); err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPAttachFailed(fmt.Errorf("waiting for initialized event: %w", err)).Error()), nil
	}

	if client.Capabilities().SupportsConfigurationDoneRequest {
		if err := client.ConfigurationDone(); err != nil {
			s.sessionManager.TerminateSession(session.ID, true)
			return mcp.NewToolResultError(errors.DAPAttachFailed(fmt.Errorf("configuration done: %w", err)).Error()), nil
		}
	}

	_, err = client.WaitForAttachResponse(attachRespCh, 10*time.Second)
	if err != nil {
		s.sessionManager.TerminateSession(session.ID, true)
		return mcp.NewToolResultError(errors.DAPAttachFailed(err).Error()), nil
	}

	s.sessionManager.UpdateSessionStatus(session.ID, types.SessionStatusRunning)

	return jsonResult(map[string]interface{}{
		"sessionId": session.ID,
		"status":    "attached",
		"language":  string(lang),
	})
}

func (s *Server) handleDebugDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	terminateDebuggee := request.GetBool("terminateDebuggee", false)

	if err := s.sessionManager.TerminateSession(sessionID, terminateDebuggee); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessionManager.ListSessions()

	result := make([]types.SessionInfo, len(sessions))
	for i, session := range sessions {
		result[i] = session.GetInfo()
	}

	return jsonResult(map[string]interface{}{
		"sessions": result,
		"count":    len(result),
	})
}

// Control Handlers

func (s *Server) handleDebugBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, client, err := s.getSessionClient(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	bpsJSON, err := request.RequireString("breakpoints")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var bpRequests []struct {
		Line      int    `json:"line"`
		Condition string `json:"condition,omitempty"`
	}

	if err := json.Unmarshal([]byte(bpsJSON), &bpRequests); err != nil {
		return mcp.NewToolResultError(errors.InvalidParameter("breakpoints", bpsJSON,
			`JSON array like [{"line": 10}, {"line": 20, "condition": "x > 5"}]`).Error()), nil
	}

	source := dap.Source{
		Path: path,
	}

	breakpoints := make([]dap.SourceBreakpoint, len(bpRequests))
	for i, bp := range bpRequests {
		breakpoints[i] = dap.SourceBreakpoint{
			Line:      bp.Line,
			Condition: bp.Condition,
		}
	}

	bps, err := client.SetBreakpoints(source, breakpoints)
	if err != nil {
		return mcp.NewToolResultError(errors.BreakpointFailed(path, 0, err.Error()).Error()), nil
	}

	result := make([]map[string]interface{}, len(bps))
	for i, bp := range bps {
		result[i] = map[string]interface{}{
			"id":       bp.Id,
			"verified": bp.Verified,
			"line":     bp.Line,
		}
		if bp.Message != "" {
			result[i]["message"] = bp.Message
		}
	}

	return jsonResult(map[string]interface{}{
		"breakpoints": result,
	})
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, client, err := s.getSessionClient(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	allContinued, err := client.Continue(int(threadID))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("continue failed: %v", err)), nil
	}

	s.sessionManager.UpdateSessionStatus(session.ID, types.SessionStatusRunning)

	if !request.GetBool("waitForStop", false) {
		return jsonResult(map[string]interface{}{
			"allThreadsContinued": allContinued,
		})
	}

	stopped, err := client.WaitForStopped(30 * time.Second)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("continue succeeded but no stopped event arrived: %v", err)), nil
	}

	s.sessionManager.UpdateSessionStatus(session.ID, types.SessionStatusStopped)

	return jsonResult(map[string]interface{}{
		"allThreadsContinued": allContinued,
		"stopped": map[string]interface{}{
			"reason":   stopped.Reason,
			"threadId": stopped.ThreadID,
		},
	})
}

// Capture Handler

func (s *Server) handleCaptureVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("expression",
			"Specify the variable or property-access expression to capture, e.g. 'user' or 'order.items'.").Error()), nil
	}

	sessionID := ""
	if id, err := request.RequireString("sessionId"); err == nil {
		sessionID = id
	}

	session := s.sessionManager.ActiveSession(sessionID)
	if session == nil {
		return mcp.NewToolResultError(errors.NoActiveSession().Error()), nil
	}
	if session.Client == nil {
		return mcp.NewToolResultError(errors.SessionNoClient(session.ID).Error()), nil
	}

	opts := capture.Options{
		MaxDepth:    s.config.Capture.MaxDepth,
		GateLimit:   s.config.Capture.Concurrency,
		StepTimeout: time.Duration(s.config.Capture.StepTimeout),
		ArtifactDir: s.config.Capture.ArtifactDir,
		Reporter: capture.ReporterFunc(func(percent int, message string) {
			log.Printf("capture %s: %d%% (%s)", session.ID, percent, message)
		}),
	}
	if maxDepth, err := request.RequireFloat("maxDepth"); err == nil && maxDepth > 0 {
		opts.MaxDepth = int(maxDepth)
	}

	if !s.config.Capture.DisableFastPath {
		if adapter, err := s.adapterReg.Get(session.Language); err == nil {
			opts.Serializer = adapter.Serializer()
		}
	}

	workspaceRoot := ""
	if root, err := request.RequireString("workspaceRoot"); err == nil {
		workspaceRoot = root
	}

	capturer := capture.NewCapturer(session.Client, s.snapshots, opts)
	result, err := capturer.CaptureVariable(ctx, workspaceRoot, expression)
	if err != nil {
		return mcp.NewToolResultError(errors.FromError(err).WithDetails("sessionId", session.ID).Error()), nil
	}
	if result == nil {
		// User cancelled mid-capture; nothing was written
		return jsonResult(map[string]interface{}{
			"status": "cancelled",
		})
	}

	return jsonResult(map[string]interface{}{
		"path":     result.Path,
		"snapshot": result.Snapshot,
	})
}

// Helper functions

func (s *Server) getSessionClient(request mcp.CallToolRequest) (*internaldap.Session, *internaldap.Client, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, nil, errors.MissingParameter("sessionId", "Provide the sessionId returned from debug_launch or debug_attach. Use debug_list_sessions to see active sessions.")
	}

	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return nil, nil, errors.SessionNotFound(sessionID)
	}

	if session.Client == nil {
		return nil, nil, errors.SessionNoClient(sessionID)
	}

	return session, session.Client, nil
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
