package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the varsnap tool API
func (s *Server) registerTools() {
	// Session management
	s.registerDebugLaunch()
	s.registerDebugAttach()
	s.registerDebugDisconnect()
	s.registerDebugListSessions()

	// Control
	s.registerDebugBreakpoint()
	s.registerDebugContinue()

	// Capture
	s.registerCaptureVariable()
}

// Session Management Tools

func (s *Server) registerDebugLaunch() {
	tool := mcp.NewTool("debug_launch",
		mcp.WithDescription("Launch a program under a debug adapter. Returns sessionId needed for other tools. Use stopOnEntry=true to pause at the first line."),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("Programming language: go, python, javascript, or typescript"),
		),
		mcp.WithString("program",
			mcp.Required(),
			mcp.Description("Path to the program to debug. For Go: path to the main package directory. For Python/JS: path to the script file."),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the program"),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Stop on entry point (default: false)"),
		),
		mcp.WithString("pythonPath",
			mcp.Description("Path to a Python interpreter, e.g. '/path/to/venv/bin/python'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugLaunch)
}

func (s *Server) registerDebugAttach() {
	tool := mcp.NewTool("debug_attach",
		mcp.WithDescription("Attach to a debug adapter already listening on a TCP port (e.g. 'dlv dap --listen' or debugpy in listen mode)."),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("Programming language: go, python, javascript, or typescript"),
		),
		mcp.WithString("host",
			mcp.Description("Host address of the debug adapter (default: 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Required(),
			mcp.Description("Port of the debug adapter"),
		),
		mcp.WithNumber("pid",
			mcp.Description("Process ID to attach to, where the adapter supports it"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugAttach)
}

func (s *Server) registerDebugDisconnect() {
	tool := mcp.NewTool("debug_disconnect",
		mcp.WithDescription("Disconnect from a debug session"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID to disconnect from"),
		),
		mcp.WithBoolean("terminateDebuggee",
			mcp.Description("Terminate the debugged process (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugDisconnect)
}

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List all active debug sessions"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

// Control Tools

func (s *Server) registerDebugBreakpoint() {
	tool := mcp.NewTool("debug_breakpoint",
		mcp.WithDescription("Set breakpoints in a source file. Note: this REPLACES all breakpoints in the file - include every desired breakpoint in each call."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The source file path"),
		),
		mcp.WithString("breakpoints",
			mcp.Required(),
			mcp.Description("JSON array of breakpoints: [{line: number, condition?: string}]"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBreakpoint)
}

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Continue program execution until the next breakpoint or program end. Set waitForStop=true to block until the debuggee stops again, which leaves it paused and ready for capture_variable."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID to continue"),
		),
		mcp.WithBoolean("waitForStop",
			mcp.Description("Wait for the next stopped event before returning (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugContinue)
}

// Capture Tool

func (s *Server) registerCaptureVariable() {
	tool := mcp.NewTool("capture_variable",
		mcp.WithDescription("Capture the runtime value of a single variable or property-access expression from the paused debuggee and persist it as a snapshot file. The debuggee must be stopped at a breakpoint. Literals and multi-line expressions are rejected."),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("The expression to capture, e.g. 'user' or 'order.items'"),
		),
		mcp.WithString("sessionId",
			mcp.Description("The session ID. Defaults to the most recently created live session."),
		),
		mcp.WithString("workspaceRoot",
			mcp.Description("Workspace root used to record the source file path relative to the project"),
		),
		mcp.WithNumber("maxDepth",
			mcp.Description("Depth bound for the protocol walk; deeper values are recorded as unresolved (default from config)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleCaptureVariable)
}
