// Package capture implements the value-capture engine: it materializes the
// runtime value of a single expression out of a suspended debuggee, either in
// one round trip (the debuggee serializes itself, see fastpath.go) or by
// walking the object graph through the debug adapter protocol (walker.go).
//
// The engine produces Value trees. A Value is JSON-safe by construction:
// cycles, depth-limit truncation and cancellation are represented as tagged
// variants rather than real references, and marshal to the sentinel strings
// the snapshot file format uses ("[circular]", "[unresolved: T]",
// "[cancelled]").
package capture

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the variants of a materialized Value.
type Kind int

const (
	// KindScalar is a primitive leaf: nil, bool, float64, string or Undefined.
	KindScalar Kind = iota
	// KindSequence is an ordered, array-like collection.
	KindSequence
	// KindMapping is a property-name to value mapping.
	KindMapping
	// KindTruncated marks a composite left unexpanded by the depth bound.
	KindTruncated
	// KindCircular marks a revisited composite reported by the debuggee.
	KindCircular
	// KindCancelled marks a subtree skipped after cancellation.
	KindCancelled
)

// Undefined is the scalar for a debuggee "undefined" value, distinct from
// null. It marshals to JSON null.
var Undefined = undefinedValue{}

type undefinedValue struct{}

func (undefinedValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Sentinel strings used in the snapshot file format. Real captured string
// data that happens to equal one of these is indistinguishable in the file;
// the tagged Kind exists so that at least in-process consumers are not.
const (
	SentinelCircular  = "[circular]"
	SentinelCancelled = "[cancelled]"
	SentinelFunction  = "[function]"
)

// Value is a materialized, JSON-safe debuggee value.
type Value struct {
	Kind   Kind
	Scalar any               // KindScalar only
	Seq    []*Value          // KindSequence only
	Map    map[string]*Value // KindMapping only
	Type   string            // KindTruncated: the debuggee-reported type name
}

// NewScalar wraps a primitive leaf.
func NewScalar(v any) *Value { return &Value{Kind: KindScalar, Scalar: v} }

// NewSequence wraps an ordered collection.
func NewSequence(elems []*Value) *Value { return &Value{Kind: KindSequence, Seq: elems} }

// NewMapping wraps a name-to-value mapping.
func NewMapping(m map[string]*Value) *Value { return &Value{Kind: KindMapping, Map: m} }

// NewTruncated marks a composite the depth bound left unexpanded.
func NewTruncated(typeName string) *Value {
	if typeName == "" {
		typeName = "object"
	}
	return &Value{Kind: KindTruncated, Type: typeName}
}

// NewCancelled marks a subtree skipped after cancellation.
func NewCancelled() *Value { return &Value{Kind: KindCancelled} }

// MarshalJSON renders the value in the snapshot file format, flattening the
// tagged variants to their sentinel strings.
func (v *Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindScalar:
		return json.Marshal(v.Scalar)
	case KindSequence:
		if v.Seq == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Seq)
	case KindMapping:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Map)
	case KindTruncated:
		return json.Marshal(fmt.Sprintf("[unresolved: %s]", v.Type))
	case KindCircular:
		return json.Marshal(SentinelCircular)
	case KindCancelled:
		return json.Marshal(SentinelCancelled)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.Kind)
}

// UnmarshalJSON reads the snapshot file format back into a Value tree.
// Sentinel strings come back as plain string scalars; the file format does
// not preserve the distinction (see SentinelCircular).
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	dec, err := fromDecoded(raw)
	if err != nil {
		return err
	}
	*v = *dec
	return nil
}

// fromDecoded converts a generically-decoded JSON document (the fast path
// artifact, or a re-read snapshot) into a Value tree.
func fromDecoded(raw any) (*Value, error) {
	switch t := raw.(type) {
	case nil, bool, float64, string, json.Number:
		return NewScalar(t), nil
	case []any:
		elems := make([]*Value, len(t))
		for i, e := range t {
			child, err := fromDecoded(e)
			if err != nil {
				return nil, err
			}
			elems[i] = child
		}
		return NewSequence(elems), nil
	case map[string]any:
		m := make(map[string]*Value, len(t))
		for name, e := range t {
			child, err := fromDecoded(e)
			if err != nil {
				return nil, err
			}
			m[name] = child
		}
		return NewMapping(m), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", raw)
}

// ParseJSON decodes a JSON document into a Value tree. Used by the fast path
// to read the artifact the debuggee wrote.
func ParseJSON(data []byte) (*Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromDecoded(raw)
}
