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

// NodeAdapter implements the Adapter interface for JavaScript/TypeScript
// via the Node.js inspector
type NodeAdapter struct {
	nodePath   string
	inspectBrk bool
}

// NewNodeAdapter creates a new Node.js adapter
func NewNodeAdapter(cfg config.NodeConfig) *NodeAdapter {
	nodePath := cfg.NodePath
	if nodePath == "" {
		nodePath = "node"
	}

	return &NodeAdapter{
		nodePath:   nodePath,
		inspectBrk: cfg.InspectBrk,
	}
}

// Language returns the language this adapter supports
func (n *NodeAdapter) Language() types.Language {
	return types.LanguageJavaScript
}

// Serializer returns the JavaScript realization of the remote serialization
// contract.
func (n *NodeAdapter) Serializer() capture.RemoteSerializer {
	return jsSerializer{}
}

// jsSerializer builds a single JavaScript expression that serializes a value
// inside the debuggee and writes it to the artifact path. Revisited
// composites become "[circular]", functions "[function]", bigints decimal
// strings. Requires a CommonJS frame where require is reachable.
type jsSerializer struct{}

func (jsSerializer) BuildScript(expression, artifactPath string) string {
	var sb strings.Builder
	sb.WriteString("(function(){")
	sb.WriteString("var seen=new WeakSet();")
	sb.WriteString("var out=JSON.stringify(")
	sb.WriteString(expression)
	sb.WriteString(",function(k,v){")
	sb.WriteString("if(typeof v==='function'){return '[function]';}")
	sb.WriteString("if(typeof v==='bigint'){return v.toString();}")
	sb.WriteString("if(v!==null&&typeof v==='object'){if(seen.has(v)){return '[circular]';}seen.add(v);}")
	sb.WriteString("return v;});")
	sb.WriteString("require('fs').writeFileSync(")
	sb.WriteString(strconv.Quote(artifactPath))
	sb.WriteString(",out===undefined?'null':out);")
	sb.WriteString("return 'ok';})()")
	return sb.String()
}

// Spawn starts the program under the Node inspector
func (n *NodeAdapter) Spawn(ctx context.Context, program string, args map[string]interface{}) (string, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return "", nil, fmt.Errorf("failed to find available port: %w", err)
	}

	address := fmt.Sprintf("127.0.0.1:%d", port)

	inspectFlag := "--inspect"
	if n.inspectBrk {
		inspectFlag = "--inspect-brk"
	}

	cmdArgs := []string{
		fmt.Sprintf("%s=%s", inspectFlag, address),
	}
	if program != "" {
		cmdArgs = append(cmdArgs, program)
		if programArgs, ok := args["args"].([]interface{}); ok {
			for _, a := range programArgs {
				cmdArgs = append(cmdArgs, fmt.Sprint(a))
			}
		}
	}

	cmd := exec.CommandContext(ctx, n.nodePath, cmdArgs...)
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
		return "", nil, fmt.Errorf("failed to start node: %w", err)
	}

	// Give the inspector a moment to bind
	time.Sleep(500 * time.Millisecond)

	return address, cmd, nil
}

// BuildLaunchArgs builds the launch arguments for Node
func (n *NodeAdapter) BuildLaunchArgs(program string, args map[string]interface{}) map[string]interface{} {
	launchArgs := map[string]interface{}{
		"type":    "pwa-node",
		"request": "launch",
		"program": program,
	}

	if cwd, ok := args["cwd"].(string); ok {
		launchArgs["cwd"] = cwd
	}

	if stopOnEntry, ok := args["stopOnEntry"].(bool); ok {
		launchArgs["stopOnEntry"] = stopOnEntry
	}

	return launchArgs
}

// BuildAttachArgs builds the attach arguments for Node
func (n *NodeAdapter) BuildAttachArgs(args map[string]interface{}) map[string]interface{} {
	attachArgs := map[string]interface{}{
		"type":    "pwa-node",
		"request": "attach",
	}

	host := "127.0.0.1"
	if h, ok := args["host"].(string); ok && h != "" {
		host = h
	}
	attachArgs["address"] = host

	port := 9229
	if p, ok := args["port"].(float64); ok && p > 0 {
		port = int(p)
	}
	attachArgs["port"] = port

	return attachArgs
}
