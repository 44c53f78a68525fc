package capture

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-dap"
)

// fakeFetcher serves variable children from a fixed reference table and
// records which references were fetched.
type fakeFetcher struct {
	table map[int][]dap.Variable

	mu      sync.Mutex
	fetched []int
	err     error
}

func (f *fakeFetcher) Variables(ctx context.Context, reference int) ([]dap.Variable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, reference)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.table[reference], nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func newTestWalker(fetch VariableFetcher, maxDepth int) *Walker {
	return NewWalker(fetch, NewGate(0), NewProgress(nil), maxDepth)
}

// TestWalkerScalarRoot verifies that a non-expandable root decodes directly
// without any variables request.
func TestWalkerScalarRoot(t *testing.T) {
	fetch := &fakeFetcher{}
	w := newTestWalker(fetch, 0)

	val, err := w.Serialize(context.Background(), dap.Variable{Name: "n", Value: "42", Type: "int"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val.Kind != KindScalar || val.Scalar != float64(42) {
		t.Errorf("expected scalar 42, got %#v", val)
	}
	if fetch.fetchCount() != 0 {
		t.Errorf("expected no fetches for a scalar, got %d", fetch.fetchCount())
	}
}

// TestWalkerSequenceOrder verifies that index-named children become an
// ordered sequence in protocol order.
func TestWalkerSequenceOrder(t *testing.T) {
	fetch := &fakeFetcher{table: map[int][]dap.Variable{
		1: {
			{Name: "0", Value: "10"},
			{Name: "1", Value: "20"},
			{Name: "2", Value: "30"},
		},
	}}
	w := newTestWalker(fetch, 0)

	val, err := w.Serialize(context.Background(), dap.Variable{Name: "xs", Value: "Array(3)", VariablesReference: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val.Kind != KindSequence || len(val.Seq) != 3 {
		t.Fatalf("expected 3-element sequence, got %#v", val)
	}
	for i, want := range []float64{10, 20, 30} {
		if val.Seq[i].Scalar != want {
			t.Errorf("element %d: expected %v, got %#v", i, want, val.Seq[i])
		}
	}
}

// TestWalkerMappingMixedNames verifies that any non-index child name makes
// the collection a mapping, not a sequence.
func TestWalkerMappingMixedNames(t *testing.T) {
	fetch := &fakeFetcher{table: map[int][]dap.Variable{
		1: {
			{Name: "0", Value: "10"},
			{Name: "foo", Value: "'bar'"},
		},
	}}
	w := newTestWalker(fetch, 0)

	val, err := w.Serialize(context.Background(), dap.Variable{Name: "m", Value: "Object", VariablesReference: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val.Kind != KindMapping {
		t.Fatalf("expected mapping, got %#v", val)
	}
	if val.Map["0"].Scalar != float64(10) {
		t.Errorf("expected m[\"0\"] = 10, got %#v", val.Map["0"])
	}
	if val.Map["foo"].Scalar != "bar" {
		t.Errorf("expected m[\"foo\"] = bar, got %#v", val.Map["foo"])
	}
}

// TestWalkerInternalSlotsFiltered verifies that engine-internal
// pseudo-properties are dropped from mappings.
func TestWalkerInternalSlotsFiltered(t *testing.T) {
	fetch := &fakeFetcher{table: map[int][]dap.Variable{
		1: {
			{Name: "name", Value: "'x'"},
			{Name: "[[Prototype]]", Value: "Object", VariablesReference: 2},
			{Name: "[[Entries]]", Value: "Array(0)", VariablesReference: 3},
		},
	}}
	w := newTestWalker(fetch, 0)

	val, err := w.Serialize(context.Background(), dap.Variable{Name: "o", Value: "Object", VariablesReference: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(val.Map) != 1 {
		t.Errorf("expected internal slots filtered, got %#v", val.Map)
	}
	if _, ok := val.Map["[[Prototype]]"]; ok {
		t.Error("[[Prototype]] must not appear in the mapping")
	}
}

// TestWalkerDepthBound verifies that composites at the depth bound become
// truncation markers naming the type, and that nothing beyond the bound is
// fetched.
func TestWalkerDepthBound(t *testing.T) {
	fetch := &fakeFetcher{table: map[int][]dap.Variable{
		1: {{Name: "a", Value: "Object", Type: "Inner", VariablesReference: 2}},
		2: {{Name: "b", Value: "Object", Type: "Deep", VariablesReference: 3}},
		3: {{Name: "c", Value: "Object", Type: "HugeStruct", VariablesReference: 4}},
		4: {{Name: "d", Value: "1"}},
	}}
	w := newTestWalker(fetch, 2)

	val, err := w.Serialize(context.Background(), dap.Variable{Name: "root", Value: "Object", VariablesReference: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// root -> a (depth 0) -> b (depth 1) -> c (depth 2, at the bound)
	c := val.Map["a"].Map["b"].Map["c"]
	if c.Kind != KindTruncated {
		t.Fatalf("expected truncated node at the bound, got %#v", c)
	}
	if c.Type != "HugeStruct" {
		t.Errorf("expected truncation to name the type, got %q", c.Type)
	}

	for _, ref := range fetch.fetched {
		if ref == 4 {
			t.Error("reference beyond the depth bound must not be fetched")
		}
	}
}

// TestWalkerCancelledBeforeStart verifies that an already-cancelled context
// yields a cancellation marker with no error and no protocol traffic.
func TestWalkerCancelledBeforeStart(t *testing.T) {
	fetch := &fakeFetcher{table: map[int][]dap.Variable{1: {{Name: "x", Value: "1"}}}}
	w := newTestWalker(fetch, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	val, err := w.Serialize(ctx, dap.Variable{Name: "o", Value: "Object", VariablesReference: 1})
	if err != nil {
		t.Fatalf("cancellation must not be an error, got %v", err)
	}
	if val.Kind != KindCancelled {
		t.Errorf("expected cancelled marker, got %#v", val)
	}
	if fetch.fetchCount() != 0 {
		t.Errorf("expected no fetches after cancellation, got %d", fetch.fetchCount())
	}
}

// scriptedFetcher lets one test control each fetch individually.
type scriptedFetcher struct {
	fn func(ctx context.Context, reference int) ([]dap.Variable, error)
}

func (s *scriptedFetcher) Variables(ctx context.Context, reference int) ([]dap.Variable, error) {
	return s.fn(ctx, reference)
}

// TestWalkerMidWalkCancellation verifies cooperative cancellation during an
// ongoing walk: the fetch in flight when cancellation hits still completes,
// its children and every branch not yet fetched come back as cancellation
// markers, and no error is raised.
func TestWalkerMidWalkCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetch := &scriptedFetcher{fn: func(fctx context.Context, reference int) ([]dap.Variable, error) {
		switch reference {
		case 1:
			return []dap.Variable{
				{Name: "a", Value: "Array(2)", VariablesReference: 2},
				{Name: "b", Value: "Object", VariablesReference: 3},
			}, nil
		case 2:
			// In flight when the user cancels; the response still arrives.
			cancel()
			return []dap.Variable{{Name: "0", Value: "1"}, {Name: "1", Value: "2"}}, nil
		case 3:
			// This branch observes the cancellation instead of completing.
			<-fctx.Done()
			return nil, fctx.Err()
		}
		t.Errorf("unexpected fetch of reference %d", reference)
		return nil, nil
	}}

	w := newTestWalker(fetch, 5)
	val, err := w.Serialize(ctx, dap.Variable{Name: "o", Value: "Object", VariablesReference: 1})
	if err != nil {
		t.Fatalf("cancellation must not be an error, got %v", err)
	}
	if val.Kind != KindMapping || len(val.Map) != 2 {
		t.Fatalf("expected 2-entry mapping, got %#v", val)
	}

	a := val.Map["a"]
	if a == nil || a.Kind != KindSequence || len(a.Seq) != 2 {
		t.Fatalf("expected completed fetch to keep its 2-element shape, got %#v", a)
	}
	for i, elem := range a.Seq {
		if elem.Kind != KindCancelled {
			t.Errorf("element %d: expected cancelled marker after cancellation, got %#v", i, elem)
		}
	}

	b := val.Map["b"]
	if b == nil || b.Kind != KindCancelled {
		t.Errorf("expected unfetched branch as cancelled marker, got %#v", b)
	}
}

// TestWalkerFetchError verifies that a protocol failure propagates as an
// error and ends the walk.
func TestWalkerFetchError(t *testing.T) {
	fetchErr := errors.New("connection reset")
	fetch := &fakeFetcher{err: fetchErr}
	w := newTestWalker(fetch, 0)

	_, err := w.Serialize(context.Background(), dap.Variable{Name: "o", Value: "Object", VariablesReference: 1})
	if !errors.Is(err, fetchErr) {
		t.Errorf("expected fetch error to propagate, got %v", err)
	}
}

// TestWalkerEmptyComposite verifies that an expandable value with no
// children becomes an empty mapping.
func TestWalkerEmptyComposite(t *testing.T) {
	fetch := &fakeFetcher{table: map[int][]dap.Variable{1: {}}}
	w := newTestWalker(fetch, 0)

	val, err := w.Serialize(context.Background(), dap.Variable{Name: "o", Value: "Object", VariablesReference: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val.Kind != KindMapping || len(val.Map) != 0 {
		t.Errorf("expected empty mapping, got %#v", val)
	}
}
