package capture

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-dap"

	vserrors "github.com/varsnap/varsnap/internal/errors"
	"github.com/varsnap/varsnap/pkg/types"
)

// SnapshotVersion tags the persisted snapshot format.
const SnapshotVersion = 1

// DefaultStepTimeout bounds each individual protocol call the orchestrator
// makes. Timing out usually means the debuggee is not paused.
const DefaultStepTimeout = 5 * time.Second

// Snapshot is the persisted capture artifact. Constructed once per capture,
// immutable afterward; exactly one variables entry after a successful
// capture.
type Snapshot struct {
	Version    int                  `json:"version"`
	CapturedAt string               `json:"capturedAt"`
	Source     types.SourceLocation `json:"source"`
	Frame      types.FrameIdentity  `json:"frame"`
	Variables  map[string]*Value    `json:"variables"`
}

// Persister is the persistence collaborator: it accepts a fully-built
// snapshot and returns where it was written.
type Persister interface {
	Save(ctx context.Context, snap *Snapshot) (path string, err error)
}

// ProtocolClient is the slice of the debug adapter protocol the orchestrator
// drives. The DAP client implements it; tests use fakes.
type ProtocolClient interface {
	Threads(ctx context.Context) ([]dap.Thread, error)
	StackTrace(ctx context.Context, threadID int) ([]dap.StackFrame, error)
	Scopes(ctx context.Context, frameID int) ([]dap.Scope, error)
	Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error)
	Variables(ctx context.Context, reference int) ([]dap.Variable, error)
}

// Options tunes one capture invocation.
type Options struct {
	MaxDepth    int           // slow-path depth bound, DefaultMaxDepth if zero
	GateLimit   int           // concurrent fetch bound, DefaultGateLimit if zero
	StepTimeout time.Duration // per-protocol-call deadline, DefaultStepTimeout if zero

	// Serializer enables the fast path for the session's runtime. Nil means
	// the slow path is always taken.
	Serializer RemoteSerializer
	// ArtifactDir is where the debuggee writes fast-path artifacts.
	ArtifactDir string

	Reporter Reporter
}

// Result is what a completed capture hands back to the command layer.
type Result struct {
	Path     string    `json:"path"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Capturer runs the capture state sequence: resolve the paused target's top
// frame, try the fast path, fall back to the graph walk, assemble the
// snapshot and hand it to the persister.
type Capturer struct {
	client ProtocolClient
	sink   Persister
	opts   Options
}

// NewCapturer wires an orchestrator. sink may be nil for callers that only
// want the in-memory record (Result.Path is then empty).
func NewCapturer(client ProtocolClient, sink Persister, opts Options) *Capturer {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	return &Capturer{client: client, sink: sink, opts: opts}
}

// CaptureVariable captures the value of expression in the top frame of the
// first paused thread and persists it. workspaceRoot, when set, makes the
// recorded source path workspace-relative.
//
// User cancellation aborts silently: the return is (nil, nil), nothing is
// written. All other failures come back as structured errors suitable for
// user-facing messages.
func (c *Capturer) CaptureVariable(ctx context.Context, workspaceRoot, expression string) (*Result, error) {
	expression = strings.TrimSpace(expression)
	if err := validateExpression(expression); err != nil {
		return nil, err
	}

	threads, err := stepCall(ctx, c.opts.StepTimeout, "threads", c.client.Threads)
	if err != nil {
		return nil, cancelOrErr(ctx, err)
	}
	if len(threads) == 0 {
		return nil, vserrors.NoThreads()
	}
	threadID := threads[0].Id

	frames, err := stepCall(ctx, c.opts.StepTimeout, "stackTrace", func(ctx context.Context) ([]dap.StackFrame, error) {
		return c.client.StackTrace(ctx, threadID)
	})
	if err != nil {
		return nil, cancelOrErr(ctx, err)
	}
	if len(frames) == 0 {
		return nil, vserrors.NoStackFrames()
	}
	top := frames[0]

	progress := NewProgress(c.opts.Reporter)
	value, err := c.materialize(ctx, expression, top.Id, progress)
	if err != nil {
		return nil, cancelOrErr(ctx, err)
	}
	if ctx.Err() != nil {
		// Cancelled mid-capture: partial results are discarded, no snapshot.
		return nil, nil
	}

	// Source is optional in stack trace responses; runtime and native
	// frames often carry none.
	sourcePath := ""
	if top.Source != nil {
		sourcePath = top.Source.Path
	}

	snap := &Snapshot{
		Version:    SnapshotVersion,
		CapturedAt: time.Now().UTC().Format(time.RFC3339),
		Source: types.SourceLocation{
			File:     relativePath(workspaceRoot, sourcePath),
			Line:     top.Line,
			Function: top.Name,
		},
		Frame:     types.FrameIdentity{Name: top.Name, ID: top.Id},
		Variables: map[string]*Value{expression: value},
	}

	progress.Done()

	if c.sink == nil {
		return &Result{Snapshot: snap}, nil
	}
	path, err := c.sink.Save(ctx, snap)
	if err != nil {
		return nil, vserrors.SnapshotWriteFailed(err)
	}
	return &Result{Path: path, Snapshot: snap}, nil
}

// materialize tries the fast path first and falls back to the graph walk.
func (c *Capturer) materialize(ctx context.Context, expression string, frameID int, progress *Progress) (*Value, error) {
	fp := NewFastPath(c.client, c.opts.Serializer, c.opts.ArtifactDir)
	if val, ok := fp.TrySerialize(ctx, expression, frameID); ok {
		return val, nil
	}

	var root dap.Variable
	body, err := stepCall(ctx, c.opts.StepTimeout, "evaluate", func(ctx context.Context) (*dap.EvaluateResponseBody, error) {
		return c.client.Evaluate(ctx, expression, frameID, "watch")
	})
	switch {
	case err == nil:
		root = dap.Variable{
			Name:               expression,
			Value:              body.Result,
			Type:               body.Type,
			VariablesReference: body.VariablesReference,
		}
	default:
		var de *vserrors.DebugError
		if errors.As(err, &de) && de.Code == vserrors.CodeStepTimeout {
			return nil, err
		}
		// Some adapters reject plain-name watch evaluation; a variable of
		// exactly that name may still sit in one of the frame's scopes.
		v, ok := c.lookupInScopes(ctx, expression, frameID)
		if !ok {
			return nil, vserrors.EvaluationFailed(expression, err)
		}
		root = v
	}

	gate := NewGate(c.opts.GateLimit)
	walker := NewWalker(c.client, gate, progress, c.opts.MaxDepth)
	return walker.Serialize(ctx, root)
}

// lookupInScopes scans the frame's scopes, innermost first, for a variable
// named exactly expression. Only plain names can match; property accesses
// still require evaluate.
func (c *Capturer) lookupInScopes(ctx context.Context, expression string, frameID int) (dap.Variable, bool) {
	if strings.ContainsAny(expression, ".[(") {
		return dap.Variable{}, false
	}

	scopes, err := stepCall(ctx, c.opts.StepTimeout, "scopes", func(ctx context.Context) ([]dap.Scope, error) {
		return c.client.Scopes(ctx, frameID)
	})
	if err != nil {
		return dap.Variable{}, false
	}

	for _, scope := range scopes {
		if scope.VariablesReference == 0 {
			continue
		}
		vars, err := stepCall(ctx, c.opts.StepTimeout, "variables", func(ctx context.Context) ([]dap.Variable, error) {
			return c.client.Variables(ctx, scope.VariablesReference)
		})
		if err != nil {
			return dap.Variable{}, false
		}
		for _, v := range vars {
			if v.Name == expression {
				return v, true
			}
		}
	}
	return dap.Variable{}, false
}

// validateExpression enforces the deliberate scope limit: a single
// variable-or-property-access expression, one line, no literals.
func validateExpression(expr string) error {
	if expr == "" {
		return vserrors.InvalidExpression(expr, "expression is empty")
	}
	if strings.ContainsAny(expr, "\n\r") {
		return vserrors.InvalidExpression(expr, "expression spans multiple lines")
	}
	if expr[0] == '[' || expr[0] == '{' {
		return vserrors.InvalidExpression(expr, "array and object literals cannot be captured")
	}
	return nil
}

// stepCall runs one protocol call under the per-step deadline, converting a
// deadline miss into a step-named timeout error.
func stepCall[T any](ctx context.Context, timeout time.Duration, step string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		var zero T
		return zero, vserrors.StepTimeout(step, timeout)
	}
	return out, err
}

// cancelOrErr collapses failures caused by user cancellation into the
// silent-abort return.
func cancelOrErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func relativePath(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
