// Package config provides configuration management for varsnap.
//
// Configuration controls:
//   - Capture limits: slow-path depth bound, concurrent fetch bound and the
//     per-protocol-call deadline
//   - Snapshot directory: where capture snapshots are written
//   - Language-specific adapter settings: paths for each debugger
//   - Safety limits: maximum sessions and session timeout
//
// Configuration can be loaded from a JSON file or use sensible defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Duration is a time.Duration that unmarshals from either a Go duration
// string such as "5s" or "30m", or a JSON number of nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(data))
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds the server configuration
type Config struct {
	// Capture engine limits
	Capture CaptureConfig `json:"capture"`

	// SnapshotDir is where snapshot files are written
	SnapshotDir string `json:"snapshotDir"`

	// Language-specific adapter configs
	Adapters AdapterConfigs `json:"adapters"`

	// Limits for safety
	MaxSessions    int      `json:"maxSessions"`
	SessionTimeout Duration `json:"sessionTimeout"`
}

// CaptureConfig tunes the value-capture engine
type CaptureConfig struct {
	// MaxDepth bounds slow-path recursion, counted from 0 at the captured
	// expression's immediate children
	MaxDepth int `json:"maxDepth"`

	// Concurrency caps concurrently outstanding variables requests across
	// one whole walk
	Concurrency int `json:"concurrency"`

	// StepTimeout bounds each individual protocol call
	StepTimeout Duration `json:"stepTimeout"`

	// ArtifactDir is where the debuggee writes fast-path artifacts; must be
	// a filesystem namespace shared between host and debuggee. Empty means
	// the system temp directory.
	ArtifactDir string `json:"artifactDir"`

	// DisableFastPath forces the slow path even for runtimes that support
	// debuggee-side serialization
	DisableFastPath bool `json:"disableFastPath"`
}

// AdapterConfigs holds configuration for each language adapter
type AdapterConfigs struct {
	Go     DelveConfig   `json:"go"`
	Python DebugpyConfig `json:"python"`
	Node   NodeConfig    `json:"node"`
}

// DelveConfig holds Delve-specific configuration
type DelveConfig struct {
	Path       string `json:"path"`
	BuildFlags string `json:"buildFlags"`
}

// DebugpyConfig holds debugpy-specific configuration
type DebugpyConfig struct {
	PythonPath string `json:"pythonPath"`
}

// NodeConfig holds Node.js-specific configuration
type NodeConfig struct {
	NodePath   string `json:"nodePath"`
	InspectBrk bool   `json:"inspectBrk"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			MaxDepth:    10,
			Concurrency: 20,
			StepTimeout: Duration(5 * time.Second),
		},
		SnapshotDir:    defaultSnapshotDir(),
		MaxSessions:    10,
		SessionTimeout: Duration(30 * time.Minute),
		Adapters: AdapterConfigs{
			Go: DelveConfig{
				Path: "dlv",
			},
			Python: DebugpyConfig{
				PythonPath: "python3",
			},
			Node: NodeConfig{
				NodePath:   "node",
				InspectBrk: true,
			},
		},
	}
}

func defaultSnapshotDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".varsnap"
	}
	return filepath.Join(home, ".varsnap", "snapshots")
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
