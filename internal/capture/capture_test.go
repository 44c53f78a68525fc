package capture

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-dap"

	vserrors "github.com/varsnap/varsnap/internal/errors"
)

// fakeClient is a scripted protocol client for orchestrator tests.
type fakeClient struct {
	threads []dap.Thread
	frames  []dap.StackFrame
	scopes  []dap.Scope
	eval    func(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error)
	vars    map[int][]dap.Variable

	varCalls    int
	threadDelay time.Duration
}

func (f *fakeClient) Threads(ctx context.Context) ([]dap.Thread, error) {
	if f.threadDelay > 0 {
		select {
		case <-time.After(f.threadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.threads, nil
}

func (f *fakeClient) StackTrace(ctx context.Context, threadID int) ([]dap.StackFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.frames, nil
}

func (f *fakeClient) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.scopes, nil
}

func (f *fakeClient) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	if f.eval == nil {
		return nil, errors.New("no evaluate scripted")
	}
	return f.eval(ctx, expression, frameID, evalContext)
}

func (f *fakeClient) Variables(ctx context.Context, reference int) ([]dap.Variable, error) {
	f.varCalls++
	return f.vars[reference], nil
}

// memSink is an in-memory persister recording the snapshot it was handed.
type memSink struct {
	snap *Snapshot
}

func (m *memSink) Save(ctx context.Context, snap *Snapshot) (string, error) {
	m.snap = snap
	return "/snapshots/test.json", nil
}

func pausedClient() *fakeClient {
	return &fakeClient{
		threads: []dap.Thread{{Id: 1, Name: "main"}},
		frames: []dap.StackFrame{{
			Id:     100,
			Name:   "main.handleOrder",
			Line:   42,
			Source: &dap.Source{Path: "/ws/app/main.go"},
		}},
	}
}

// TestCaptureVariable_SlowPath verifies the full slow-path sequence: resolve
// thread and frame, evaluate, walk, assemble and persist the snapshot.
func TestCaptureVariable_SlowPath(t *testing.T) {
	client := pausedClient()
	client.eval = func(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
		if expression != "items" || frameID != 100 || evalContext != "watch" {
			t.Errorf("unexpected evaluate: %q frame=%d ctx=%q", expression, frameID, evalContext)
		}
		return &dap.EvaluateResponseBody{Result: "Array(2)", VariablesReference: 5}, nil
	}
	client.vars = map[int][]dap.Variable{
		5: {{Name: "0", Value: "1"}, {Name: "1", Value: "2"}},
	}
	sink := &memSink{}

	c := NewCapturer(client, sink, Options{})
	result, err := c.CaptureVariable(context.Background(), "/ws", "items")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Path != "/snapshots/test.json" {
		t.Errorf("expected sink path, got %q", result.Path)
	}

	snap := result.Snapshot
	if snap.Version != SnapshotVersion {
		t.Errorf("expected version %d, got %d", SnapshotVersion, snap.Version)
	}
	if len(snap.Variables) != 1 {
		t.Fatalf("expected exactly one variables entry, got %d", len(snap.Variables))
	}
	val := snap.Variables["items"]
	if val == nil || val.Kind != KindSequence || len(val.Seq) != 2 {
		t.Fatalf("expected 2-element sequence for items, got %#v", val)
	}
	if snap.Source.File != "app/main.go" {
		t.Errorf("expected workspace-relative source path, got %q", snap.Source.File)
	}
	if snap.Source.Line != 42 || snap.Frame.ID != 100 {
		t.Errorf("unexpected location: %+v %+v", snap.Source, snap.Frame)
	}
	if sink.snap != snap {
		t.Error("persisted snapshot differs from returned snapshot")
	}
}

// TestCaptureVariable_FastPath verifies that a working serializer bypasses
// the graph walk entirely.
func TestCaptureVariable_FastPath(t *testing.T) {
	client := pausedClient()
	client.eval = func(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
		// The fast path evaluates the serialization fragment in repl context;
		// here the fragment is the artifact path itself.
		if evalContext != "repl" {
			t.Errorf("expected repl context for the fragment, got %q", evalContext)
		}
		if err := os.WriteFile(expression, []byte(`{"a":1,"b":[1,2,3]}`), 0o644); err != nil {
			return nil, err
		}
		return &dap.EvaluateResponseBody{Result: "'ok'"}, nil
	}

	c := NewCapturer(client, nil, Options{
		Serializer:  &pathSerializer{},
		ArtifactDir: t.TempDir(),
	})
	result, err := c.CaptureVariable(context.Background(), "", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.varCalls != 0 {
		t.Errorf("fast path must not issue variables requests, got %d", client.varCalls)
	}

	val := result.Snapshot.Variables["user"]
	if val == nil || val.Kind != KindMapping {
		t.Fatalf("expected mapping, got %#v", val)
	}
	if val.Map["b"].Kind != KindSequence || len(val.Map["b"].Seq) != 3 {
		t.Errorf("expected b as 3-element sequence, got %#v", val.Map["b"])
	}
	if result.Path != "" {
		t.Errorf("expected empty path with no sink, got %q", result.Path)
	}
}

// TestCaptureVariable_NoFrameSource verifies that a top frame without source
// information still captures, recording an empty file path.
func TestCaptureVariable_NoFrameSource(t *testing.T) {
	client := &fakeClient{
		threads: []dap.Thread{{Id: 1, Name: "main"}},
		frames:  []dap.StackFrame{{Id: 100, Name: "runtime.gopark"}},
	}
	client.eval = func(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
		return &dap.EvaluateResponseBody{Result: "42", Type: "int"}, nil
	}

	c := NewCapturer(client, nil, Options{})
	result, err := c.CaptureVariable(context.Background(), "/ws", "n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Snapshot.Source.File != "" {
		t.Errorf("expected empty source file, got %q", result.Snapshot.Source.File)
	}
	if result.Snapshot.Frame.Name != "runtime.gopark" {
		t.Errorf("unexpected frame: %+v", result.Snapshot.Frame)
	}
}

// TestCaptureVariable_InvalidExpression verifies the deliberate scope limit
// on capturable expressions.
func TestCaptureVariable_InvalidExpression(t *testing.T) {
	c := NewCapturer(pausedClient(), nil, Options{})

	for _, expr := range []string{"", "  ", "[1, 2]", "{a: 1}", "a\nb"} {
		_, err := c.CaptureVariable(context.Background(), "", expr)
		var de *vserrors.DebugError
		if !errors.As(err, &de) || de.Code != vserrors.CodeInvalidExpression {
			t.Errorf("expression %q: expected invalid-expression error, got %v", expr, err)
		}
	}
}

// TestCaptureVariable_NoThreads verifies the paused-target resolution errors.
func TestCaptureVariable_NoThreads(t *testing.T) {
	client := &fakeClient{}
	c := NewCapturer(client, nil, Options{})

	_, err := c.CaptureVariable(context.Background(), "", "x")
	var de *vserrors.DebugError
	if !errors.As(err, &de) || de.Code != vserrors.CodeNoThreads {
		t.Errorf("expected no-threads error, got %v", err)
	}
}

// TestCaptureVariable_NoFrames verifies the empty-stack error.
func TestCaptureVariable_NoFrames(t *testing.T) {
	client := &fakeClient{threads: []dap.Thread{{Id: 1}}}
	c := NewCapturer(client, nil, Options{})

	_, err := c.CaptureVariable(context.Background(), "", "x")
	var de *vserrors.DebugError
	if !errors.As(err, &de) || de.Code != vserrors.CodeNoStackFrames {
		t.Errorf("expected no-stack-frames error, got %v", err)
	}
}

// TestCaptureVariable_StepTimeout verifies that a hung protocol step turns
// into a step-naming timeout error instead of blocking forever.
func TestCaptureVariable_StepTimeout(t *testing.T) {
	client := pausedClient()
	client.threadDelay = time.Second

	c := NewCapturer(client, nil, Options{StepTimeout: 20 * time.Millisecond})
	_, err := c.CaptureVariable(context.Background(), "", "x")

	var de *vserrors.DebugError
	if !errors.As(err, &de) || de.Code != vserrors.CodeStepTimeout {
		t.Fatalf("expected step-timeout error, got %v", err)
	}
}

// TestCaptureVariable_Cancelled verifies that user cancellation aborts the
// whole capture silently: no result, no error, nothing persisted.
func TestCaptureVariable_Cancelled(t *testing.T) {
	client := pausedClient()
	sink := &memSink{}
	c := NewCapturer(client, sink, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.CaptureVariable(ctx, "", "x")
	if err != nil {
		t.Fatalf("cancellation must not be an error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected no result after cancellation, got %#v", result)
	}
	if sink.snap != nil {
		t.Error("nothing may be persisted after cancellation")
	}
}

// TestCaptureVariable_ScopeFallback verifies that a plain variable name the
// adapter refuses to evaluate is still found by scanning the frame's scopes.
func TestCaptureVariable_ScopeFallback(t *testing.T) {
	client := pausedClient()
	client.eval = func(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
		return nil, errors.New("evaluate not supported for watch")
	}
	client.scopes = []dap.Scope{
		{Name: "Locals", VariablesReference: 10},
	}
	client.vars = map[int][]dap.Variable{
		10: {{Name: "count", Value: "7", Type: "int"}},
	}

	c := NewCapturer(client, nil, Options{})
	result, err := c.CaptureVariable(context.Background(), "", "count")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	val := result.Snapshot.Variables["count"]
	if val == nil || val.Kind != KindScalar || val.Scalar != float64(7) {
		t.Errorf("expected scalar 7 from scope lookup, got %#v", val)
	}
}

// TestCaptureVariable_EvaluationFailed verifies that a failing evaluate
// surfaces as a structured evaluation error.
func TestCaptureVariable_EvaluationFailed(t *testing.T) {
	client := pausedClient()
	client.eval = func(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
		return nil, errors.New("ReferenceError: nope is not defined")
	}

	c := NewCapturer(client, nil, Options{})
	_, err := c.CaptureVariable(context.Background(), "", "nope")

	var de *vserrors.DebugError
	if !errors.As(err, &de) || de.Code != vserrors.CodeEvaluationFailed {
		t.Errorf("expected evaluation-failed error, got %v", err)
	}
}
