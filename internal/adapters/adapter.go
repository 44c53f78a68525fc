// Package adapters provides language-specific debug adapter integrations.
//
// Each adapter knows how to spawn its debugger process, how to shape
// launch/attach arguments, and whether its runtime can honor the remote
// serialization contract (capture.RemoteSerializer): a short program
// fragment the debuggee evaluates to serialize a value to a temp artifact
// in one round trip. Runtimes without a realization of the contract return
// a nil serializer and captures always take the slow protocol walk.
package adapters

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/varsnap/varsnap/internal/capture"
	"github.com/varsnap/varsnap/internal/config"
	"github.com/varsnap/varsnap/internal/dap"
	"github.com/varsnap/varsnap/pkg/types"
)

// Adapter defines the interface for language-specific debug adapters
type Adapter interface {
	// Language returns the language this adapter supports
	Language() types.Language

	// Spawn starts a debug adapter process and returns the TCP address to
	// connect to
	Spawn(ctx context.Context, program string, args map[string]interface{}) (address string, cmd *exec.Cmd, err error)

	// BuildLaunchArgs builds the launch arguments for the debug adapter
	BuildLaunchArgs(program string, args map[string]interface{}) map[string]interface{}

	// BuildAttachArgs builds the attach arguments for the debug adapter
	BuildAttachArgs(args map[string]interface{}) map[string]interface{}

	// Serializer returns the runtime's realization of the remote
	// serialization contract, or nil if the fast path is unavailable for
	// this language
	Serializer() capture.RemoteSerializer
}

// Registry holds all registered adapters
type Registry struct {
	adapters map[types.Language]Adapter
}

// NewRegistry creates a registry with all supported adapters
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		adapters: make(map[types.Language]Adapter),
	}

	r.adapters[types.LanguageGo] = NewDelveAdapter(cfg.Adapters.Go)
	r.adapters[types.LanguagePython] = NewDebugpyAdapter(cfg.Adapters.Python)

	nodeAdapter := NewNodeAdapter(cfg.Adapters.Node)
	r.adapters[types.LanguageJavaScript] = nodeAdapter
	r.adapters[types.LanguageTypeScript] = nodeAdapter

	return r
}

// Get returns the adapter for a language
func (r *Registry) Get(language types.Language) (Adapter, error) {
	adapter, ok := r.adapters[language]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for language: %s", language)
	}
	return adapter, nil
}

// Languages returns all supported languages
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.adapters))
	for lang := range r.adapters {
		langs = append(langs, string(lang))
	}
	return langs
}

// Connect dials a debug adapter with retries; freshly spawned adapters take
// a moment to start listening.
func Connect(address string, maxRetries int) (*dap.Client, error) {
	var transport *dap.Transport
	var err error

	for i := 0; i < maxRetries; i++ {
		transport, err = dap.NewTCPTransport(address)
		if err == nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to debug adapter at %s: %w", address, err)
	}

	return dap.NewClient(transport), nil
}

// SpawnAndConnect spawns an adapter process and returns a connected client.
func SpawnAndConnect(ctx context.Context, adapter Adapter, program string, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	address, cmd, err := adapter.Spawn(ctx, program, args)
	if err != nil {
		return nil, nil, err
	}

	// 20 retries at 200ms: up to ~4s for the adapter to bind
	client, err := Connect(address, 20)
	if err != nil {
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill() // best-effort cleanup
		}
		return nil, nil, err
	}

	return client, cmd, nil
}

// findAvailablePort binds port 0 to let the kernel pick a free port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", listener.Addr())
	}
	return addr.Port, nil
}
