// Package snapshot persists capture snapshots as JSON files. The engine
// builds the record; this package only decides the file name and performs
// the structured write. Snapshots are write-once: replacing one means
// deleting the file and writing a new one.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/varsnap/varsnap/internal/capture"
)

// maxFileNameLen bounds the suggested base name. Sanitized function names
// and expressions can otherwise grow past filesystem limits.
const maxFileNameLen = 120

// Store writes and reads snapshot files under a single directory. It
// implements capture.Persister.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes the snapshot to a new file and returns its path. The file
// name derives from the enclosing function, the captured expression and the
// capture timestamp.
func (s *Store) Save(ctx context.Context, snap *capture.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(snap.Variables) != 1 {
		return "", fmt.Errorf("snapshot must contain exactly one variable, has %d", len(snap.Variables))
	}
	var expression string
	for name := range snap.Variables {
		expression = name
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, SuggestFileName(snap.Source.Function, expression, snap.CapturedAt)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads a snapshot file back into its record form.
func (s *Store) Read(path string) (*capture.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap capture.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("malformed snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Delete removes a snapshot file.
func (s *Store) Delete(path string) error {
	return os.Remove(path)
}

// SuggestFileName builds the snapshot base name
// <function>_<expression>_<timestamp>, each part stripped to alphanumerics,
// underscores and hyphens, the whole bounded in length.
func SuggestFileName(function, expression, timestamp string) string {
	name := sanitize(function) + "_" + sanitize(expression) + "_" + sanitize(timestamp)
	if len(name) > maxFileNameLen {
		name = name[:maxFileNameLen]
	}
	return name
}

func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
