package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/varsnap/varsnap/internal/config"
	"github.com/varsnap/varsnap/internal/mcp"
	"github.com/varsnap/varsnap/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("varsnap version %s\n", version.Version)
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	server := mcp.NewServer(cfg)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		server.Close()
		os.Exit(0)
	}()

	log.Println("varsnap server starting...")
	if err := server.ServeStdio(); err != nil {
		server.Close()
		log.Fatalf("Server error: %v", err)
	}
	server.Close()
}

func printHelp() {
	fmt.Println(`varsnap: debugger variable snapshot capture

A Model Context Protocol (MCP) server that captures runtime values of
variables from a paused debuggee over the Debug Adapter Protocol (DAP)
and persists them as snapshot files.

USAGE:
    varsnap [OPTIONS]

OPTIONS:
    -config <path>     Path to configuration file (JSON)
    -version           Show version and exit
    -help              Show this help message

SUPPORTED LANGUAGES:
    - Go (via Delve)
    - Python (via debugpy)
    - JavaScript/TypeScript (via Node.js inspector)

CONFIGURATION:
    Create a JSON configuration file to customize behavior:

    {
        "capture": {
            "maxDepth": 10,
            "concurrency": 20,
            "stepTimeout": "5s",
            "artifactDir": "",
            "disableFastPath": false
        },
        "snapshotDir": "~/.varsnap/snapshots",
        "maxSessions": 10,
        "sessionTimeout": "30m",
        "adapters": {
            "go": {
                "path": "dlv",
                "buildFlags": ""
            },
            "python": {
                "pythonPath": "python3"
            },
            "node": {
                "nodePath": "node",
                "inspectBrk": true
            }
        }
    }

TOOLS:
    Session Management:
        debug_launch          Launch a program under a debug adapter
        debug_attach          Attach to a listening debug adapter
        debug_disconnect      End a debug session
        debug_list_sessions   List active sessions

    Control:
        debug_breakpoint      Set source breakpoints
        debug_continue        Continue execution

    Capture:
        capture_variable      Capture an expression's value as a snapshot`)
}
