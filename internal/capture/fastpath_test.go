package capture

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-dap"
)

// pathSerializer returns the artifact path as the "script" so the fake
// evaluator below knows where to write.
type pathSerializer struct {
	expression string
	artifact   string
}

func (s *pathSerializer) BuildScript(expression, artifactPath string) string {
	s.expression = expression
	s.artifact = artifactPath
	return artifactPath
}

// writingEvaluator plays the debuggee side of the fast path: on evaluate it
// writes payload to the path given by the script.
type writingEvaluator struct {
	payload []byte
	err     error
	calls   int
}

func (e *writingEvaluator) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if err := os.WriteFile(expression, e.payload, 0o644); err != nil {
		return nil, err
	}
	return &dap.EvaluateResponseBody{Result: "'ok'"}, nil
}

// TestFastPathRoundTrip verifies the one-round-trip capture: the debuggee
// writes the artifact, the host reads it back as a value tree and removes
// the file.
func TestFastPathRoundTrip(t *testing.T) {
	ser := &pathSerializer{}
	eval := &writingEvaluator{payload: []byte(`{"a":1,"b":[1,2,3]}`)}
	fp := NewFastPath(eval, ser, t.TempDir())

	val, ok := fp.TrySerialize(context.Background(), "user", 7)
	if !ok {
		t.Fatal("expected fast path to succeed")
	}
	if eval.calls != 1 {
		t.Errorf("expected exactly one evaluate round trip, got %d", eval.calls)
	}
	if ser.expression != "user" {
		t.Errorf("expected script built for 'user', got %q", ser.expression)
	}

	if val.Kind != KindMapping {
		t.Fatalf("expected mapping, got %#v", val)
	}
	if val.Map["a"].Scalar != float64(1) {
		t.Errorf("expected a = 1, got %#v", val.Map["a"])
	}
	b := val.Map["b"]
	if b.Kind != KindSequence || len(b.Seq) != 3 {
		t.Fatalf("expected 3-element sequence for b, got %#v", b)
	}

	if _, err := os.Stat(ser.artifact); !os.IsNotExist(err) {
		t.Errorf("expected artifact removed, stat returned %v", err)
	}
}

// TestFastPathNoSerializer verifies that a runtime without a serialization
// fragment reports unavailable without touching the protocol.
func TestFastPathNoSerializer(t *testing.T) {
	eval := &writingEvaluator{}
	fp := NewFastPath(eval, nil, t.TempDir())

	if _, ok := fp.TrySerialize(context.Background(), "x", 1); ok {
		t.Error("expected unavailable with no serializer")
	}
	if eval.calls != 0 {
		t.Errorf("expected no evaluate calls, got %d", eval.calls)
	}
}

// TestFastPathEvaluateFailure verifies that an evaluation error means
// unavailable, never an error surfaced to the caller.
func TestFastPathEvaluateFailure(t *testing.T) {
	eval := &writingEvaluator{err: os.ErrPermission}
	fp := NewFastPath(eval, &pathSerializer{}, t.TempDir())

	if _, ok := fp.TrySerialize(context.Background(), "x", 1); ok {
		t.Error("expected unavailable on evaluate failure")
	}
}

// TestFastPathMalformedArtifact verifies that an unreadable artifact means
// unavailable and the file is still cleaned up.
func TestFastPathMalformedArtifact(t *testing.T) {
	ser := &pathSerializer{}
	eval := &writingEvaluator{payload: []byte(`{"a":`)}
	fp := NewFastPath(eval, ser, t.TempDir())

	if _, ok := fp.TrySerialize(context.Background(), "x", 1); ok {
		t.Error("expected unavailable on malformed artifact")
	}
	if _, err := os.Stat(ser.artifact); !os.IsNotExist(err) {
		t.Errorf("expected artifact removed, stat returned %v", err)
	}
}

// TestFastPathMissingArtifact verifies that evaluation succeeding without
// producing the artifact means unavailable.
func TestFastPathMissingArtifact(t *testing.T) {
	ser := &pathSerializer{}
	fp := NewFastPath(&missingArtifactEvaluator{}, ser, t.TempDir())

	if _, ok := fp.TrySerialize(context.Background(), "x", 1); ok {
		t.Error("expected unavailable when the artifact was never written")
	}
}

type missingArtifactEvaluator struct{}

func (missingArtifactEvaluator) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	return &dap.EvaluateResponseBody{Result: "'ok'"}, nil
}
