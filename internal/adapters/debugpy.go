package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/varsnap/varsnap/internal/capture"
	"github.com/varsnap/varsnap/internal/config"
	"github.com/varsnap/varsnap/pkg/types"
)

// DebugpyAdapter implements the Adapter interface for Python/debugpy
type DebugpyAdapter struct {
	pythonPath string
}

// NewDebugpyAdapter creates a new debugpy adapter
func NewDebugpyAdapter(cfg config.DebugpyConfig) *DebugpyAdapter {
	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		pythonPath = "python3"
	}

	return &DebugpyAdapter{
		pythonPath: pythonPath,
	}
}

// Language returns the language this adapter supports
func (d *DebugpyAdapter) Language() types.Language {
	return types.LanguagePython
}

// Serializer returns the Python realization of the remote serialization
// contract.
func (d *DebugpyAdapter) Serializer() capture.RemoteSerializer {
	return pySerializer{}
}

// pySerializer builds a Python fragment that serializes a value inside the
// debuggee and writes it to the artifact path. Cycles become "[circular]",
// callables "[function]", anything else non-JSON is stringified. debugpy
// evaluates the fragment in the paused frame's namespace ("repl" context
// accepts statements).
type pySerializer struct{}

func (pySerializer) BuildScript(expression, artifactPath string) string {
	var sb strings.Builder
	sb.WriteString("import json as _vs_json\n")
	sb.WriteString("def _vs_strip(o, seen):\n")
	sb.WriteString("    if isinstance(o, dict):\n")
	sb.WriteString("        if id(o) in seen: return '[circular]'\n")
	sb.WriteString("        seen = seen | {id(o)}\n")
	sb.WriteString("        return {str(k): _vs_strip(v, seen) for k, v in o.items()}\n")
	sb.WriteString("    if isinstance(o, (list, tuple, set)):\n")
	sb.WriteString("        if id(o) in seen: return '[circular]'\n")
	sb.WriteString("        seen = seen | {id(o)}\n")
	sb.WriteString("        return [_vs_strip(v, seen) for v in o]\n")
	sb.WriteString("    if hasattr(o, '__dict__') and not callable(o):\n")
	sb.WriteString("        return _vs_strip(vars(o), seen | {id(o)})\n")
	sb.WriteString("    return o\n")
	sb.WriteString("def _vs_default(o):\n")
	sb.WriteString("    return '[function]' if callable(o) else str(o)\n")
	sb.WriteString("with open(" + strconv.Quote(artifactPath) + ", 'w') as _vs_f:\n")
	sb.WriteString("    _vs_json.dump(_vs_strip(" + expression + ", frozenset()), _vs_f, default=_vs_default)\n")
	return sb.String()
}

// Spawn starts a debugpy adapter process
func (d *DebugpyAdapter) Spawn(ctx context.Context, program string, args map[string]interface{}) (string, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return "", nil, fmt.Errorf("failed to find available port: %w", err)
	}

	address := fmt.Sprintf("127.0.0.1:%d", port)

	pythonPath := d.pythonPath
	if p, ok := args["pythonPath"].(string); ok && p != "" {
		pythonPath = p
	}

	cmdArgs := []string{
		"-m", "debugpy.adapter",
		"--host", "127.0.0.1",
		"--port", fmt.Sprintf("%d", port),
	}

	cmd := exec.CommandContext(ctx, pythonPath, cmdArgs...)
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)

	if env, ok := args["env"].(map[string]interface{}); ok {
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, fmt.Sprint(v)))
		}
	}

	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("failed to start debugpy: %w", err)
	}

	// Give the adapter a moment to bind
	time.Sleep(500 * time.Millisecond)

	return address, cmd, nil
}

// BuildLaunchArgs builds the launch arguments for debugpy
func (d *DebugpyAdapter) BuildLaunchArgs(program string, args map[string]interface{}) map[string]interface{} {
	launchArgs := map[string]interface{}{
		"program": program,
		"console": "internalConsole",
	}

	if programArgs, ok := args["args"].([]interface{}); ok {
		strArgs := make([]string, len(programArgs))
		for i, a := range programArgs {
			strArgs[i] = fmt.Sprint(a)
		}
		launchArgs["args"] = strArgs
	}

	if cwd, ok := args["cwd"].(string); ok {
		launchArgs["cwd"] = cwd
	}

	if stopOnEntry, ok := args["stopOnEntry"].(bool); ok {
		launchArgs["stopOnEntry"] = stopOnEntry
	}

	if python, ok := args["pythonPath"].(string); ok && python != "" {
		launchArgs["python"] = python
	}

	return launchArgs
}

// BuildAttachArgs builds the attach arguments for debugpy
func (d *DebugpyAdapter) BuildAttachArgs(args map[string]interface{}) map[string]interface{} {
	attachArgs := map[string]interface{}{}

	connect := map[string]interface{}{
		"host": "127.0.0.1",
		"port": 5678,
	}
	if h, ok := args["host"].(string); ok && h != "" {
		connect["host"] = h
	}
	if p, ok := args["port"].(float64); ok && p > 0 {
		connect["port"] = int(p)
	}
	attachArgs["connect"] = connect

	return attachArgs
}
