package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-dap"
	"github.com/google/uuid"
)

// RemoteSerializer builds the self-serialization program fragment for a
// debuggee runtime. The fragment is the fast path's remote contract: run in
// the target frame, it must serialize the expression's value to JSON-safe
// data (replacing revisited composites with "[circular]", functions with
// "[function]", big integers with decimal strings) and write the result to
// artifactPath in the debuggee's own filesystem context.
//
// Language adapters implement this; a runtime without a realization of the
// contract simply has no serializer and always takes the slow path.
type RemoteSerializer interface {
	BuildScript(expression, artifactPath string) string
}

// Evaluator is the single protocol operation the fast path needs.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error)
}

// FastPath performs one-round-trip capture: the debuggee evaluates the
// serialization fragment, writes the artifact, and the host reads it back.
// Cost is dominated by debuggee-side work, independent of value size or
// depth. Any failure reports unavailable rather than an error; the caller
// falls back to the Walker.
type FastPath struct {
	eval       Evaluator
	serializer RemoteSerializer
	dir        string
}

// NewFastPath wires a fast path. serializer may be nil, which makes
// TrySerialize always report unavailable. dir defaults to os.TempDir() and
// must be a filesystem namespace shared with the debuggee.
func NewFastPath(eval Evaluator, serializer RemoteSerializer, dir string) *FastPath {
	if dir == "" {
		dir = os.TempDir()
	}
	return &FastPath{eval: eval, serializer: serializer, dir: dir}
}

// TrySerialize asks the debuggee to self-serialize expression in the context
// of frameID. The second return is false whenever the fast path is
// unavailable: no serializer for the runtime, evaluation error, missing or
// malformed artifact. The artifact is removed best-effort either way.
func (f *FastPath) TrySerialize(ctx context.Context, expression string, frameID int) (*Value, bool) {
	if f.serializer == nil {
		return nil, false
	}

	artifact := filepath.Join(f.dir, fmt.Sprintf("varsnap-%s.json", uuid.New().String()))
	defer os.Remove(artifact)

	script := f.serializer.BuildScript(expression, artifact)
	if _, err := f.eval.Evaluate(ctx, script, frameID, "repl"); err != nil {
		return nil, false
	}

	data, err := os.ReadFile(artifact)
	if err != nil {
		return nil, false
	}

	val, err := ParseJSON(data)
	if err != nil {
		return nil, false
	}
	return val, true
}
