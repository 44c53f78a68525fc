package capture

import (
	"context"
	"errors"
	"strings"

	"github.com/google/go-dap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxDepth bounds slow-path recursion. Depth 0 is the requested
// expression's immediate children; a composite still unexpanded at the bound
// becomes a Truncated node. The bound is also the cycle guard: the walk never
// revisits references, it only ever descends.
const DefaultMaxDepth = 10

// internalSlotPrefix marks engine-internal pseudo-properties some adapters
// expose (e.g. V8's "[[Prototype]]", "[[Entries]]"). They are not user data.
const internalSlotPrefix = "[["

// VariableFetcher fetches the children of an expandable variable reference.
// Implemented by the DAP client; tests use synthetic fetchers.
type VariableFetcher interface {
	Variables(ctx context.Context, reference int) ([]dap.Variable, error)
}

// Walker is the slow path: it reconstructs a value from the host side, one
// gated variables request per composite node, fanning out into children
// concurrently. The Gate bounds total in-flight requests across the whole
// recursion; the Progress counter tracks every discovered child.
type Walker struct {
	fetch    VariableFetcher
	gate     *Gate
	progress *Progress
	maxDepth int
}

// NewWalker wires a walker for one capture invocation.
func NewWalker(fetch VariableFetcher, gate *Gate, progress *Progress, maxDepth int) *Walker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Walker{fetch: fetch, gate: gate, progress: progress, maxDepth: maxDepth}
}

// Serialize materializes the value behind root. Cancellation is cooperative:
// a cancelled context yields Cancelled nodes, never an error. Only a protocol
// failure returns an error, ending the capture attempt.
func (w *Walker) Serialize(ctx context.Context, root dap.Variable) (*Value, error) {
	if ctx.Err() != nil {
		return NewCancelled(), nil
	}
	if root.VariablesReference == 0 {
		return NewScalar(DecodeDisplay(root.Value, root.Type)), nil
	}
	return w.expand(ctx, root, 0)
}

// node handles one variable at the given depth (depth of the variable
// itself, counted from 0 at the root's immediate children).
func (w *Walker) node(ctx context.Context, v dap.Variable, depth int) (*Value, error) {
	if ctx.Err() != nil {
		return NewCancelled(), nil
	}
	if v.VariablesReference == 0 {
		return NewScalar(DecodeDisplay(v.Value, v.Type)), nil
	}
	if depth >= w.maxDepth {
		// Depth budget exhausted on a still-composite value: explicit lossy
		// truncation naming the type, not an error.
		return NewTruncated(typeName(v)), nil
	}
	return w.expand(ctx, v, depth+1)
}

// expand fetches v's children through the gate and assembles a sequence or
// mapping. childDepth is the depth the children will be serialized at.
func (w *Walker) expand(ctx context.Context, v dap.Variable, childDepth int) (*Value, error) {
	var children []dap.Variable
	err := w.gate.Run(ctx, func() error {
		var ferr error
		children, ferr = w.fetch.Variables(ctx, v.VariablesReference)
		return ferr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return NewCancelled(), nil
		}
		return nil, err
	}

	if isArrayLike(children) {
		return w.expandSequence(ctx, children, childDepth)
	}
	return w.expandMapping(ctx, children, childDepth)
}

// expandSequence recurses into index-named children concurrently, keeping
// the protocol's returned order regardless of completion order.
func (w *Walker) expandSequence(ctx context.Context, children []dap.Variable, depth int) (*Value, error) {
	w.progress.AddItems(len(children))

	elems := make([]*Value, len(children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children {
		g.Go(func() error {
			defer w.progress.CompleteItem()
			val, err := w.node(gctx, child, depth)
			if err != nil {
				return err
			}
			elems[i] = val
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewSequence(elems), nil
}

// expandMapping recurses into named children concurrently, dropping
// engine-internal slots. Duplicate names resolve last-write-wins in
// protocol order.
func (w *Walker) expandMapping(ctx context.Context, children []dap.Variable, depth int) (*Value, error) {
	kept := children[:0:0]
	for _, child := range children {
		if strings.HasPrefix(child.Name, internalSlotPrefix) {
			continue
		}
		kept = append(kept, child)
	}
	w.progress.AddItems(len(kept))

	vals := make([]*Value, len(kept))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range kept {
		g.Go(func() error {
			defer w.progress.CompleteItem()
			val, err := w.node(gctx, child, depth)
			if err != nil {
				return err
			}
			vals[i] = val
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := make(map[string]*Value, len(kept))
	for i, child := range kept {
		m[child.Name] = vals[i]
	}
	return NewMapping(m), nil
}

// isArrayLike reports whether a child set represents an ordered collection:
// at least one child and every display name a pure non-negative integer.
func isArrayLike(children []dap.Variable) bool {
	if len(children) == 0 {
		return false
	}
	for _, c := range children {
		if !isIndexName(c.Name) {
			return false
		}
	}
	return true
}

func isIndexName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func typeName(v dap.Variable) string {
	if v.Type != "" {
		return v.Type
	}
	return "object"
}
