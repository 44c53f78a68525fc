// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes the capture engine through MCP tools:
//
// Session Management:
//   - debug_launch: Launch a program under a debug adapter
//   - debug_attach: Attach to a running debug adapter
//   - debug_disconnect: Disconnect from a session
//   - debug_list_sessions: List active sessions
//
// Control:
//   - debug_breakpoint: Set breakpoints in a source file
//   - debug_continue: Resume execution (optionally waiting for the next stop)
//
// Capture:
//   - capture_variable: Capture the value of an expression from the paused
//     debuggee and persist it as a snapshot file
package mcp

import (
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/varsnap/varsnap/internal/adapters"
	"github.com/varsnap/varsnap/internal/config"
	"github.com/varsnap/varsnap/internal/dap"
	"github.com/varsnap/varsnap/internal/snapshot"
	"github.com/varsnap/varsnap/internal/version"
)

// Server wraps the MCP server with the capture engine and its session layer
type Server struct {
	mcpServer      *server.MCPServer
	sessionManager *dap.SessionManager
	adapterReg     *adapters.Registry
	snapshots      *snapshot.Store
	config         *config.Config
}

// NewServer creates a new varsnap server
func NewServer(cfg *config.Config) *Server {
	mcpServer := server.NewMCPServer(
		"varsnap",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:      mcpServer,
		sessionManager: dap.NewSessionManager(cfg.MaxSessions, time.Duration(cfg.SessionTimeout)),
		adapterReg:     adapters.NewRegistry(cfg),
		snapshots:      snapshot.NewStore(cfg.SnapshotDir),
		config:         cfg,
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close shuts down the server
func (s *Server) Close() {
	s.sessionManager.Close()
}
