// Package frame implements the inherited context passed down a node tree
// during traversal. A Frame is an immutable value: contributions produce a new
// Frame that shadows the parent for one subtree without affecting siblings or
// ancestors.
package frame

import (
	"time"

	snapshot "github.com/hanpama/compdata/internal/snapshot"
)

// Well-known keys carried by every resolving tree.
const (
	KeyData       = "data"
	KeyMethod     = "method"
	KeyResolvedAt = "resolvedAt"
)

// Frame is an ordered-by-shadowing key/value set. The zero value is empty and
// ready to use.
type Frame struct {
	values map[string]any
}

// New returns a frame holding a copy of values.
func New(values map[string]any) Frame {
	return Frame{}.With(values)
}

// Empty returns a frame with no values.
func Empty() Frame { return Frame{} }

// With returns a frame where add shallow-merges over f. f is not modified.
func (f Frame) With(add map[string]any) Frame {
	if len(add) == 0 {
		return f
	}
	merged := make(map[string]any, len(f.values)+len(add))
	for k, v := range f.values {
		merged[k] = v
	}
	for k, v := range add {
		merged[k] = v
	}
	return Frame{values: merged}
}

// Value looks up key.
func (f Frame) Value(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Len reports the number of visible keys.
func (f Frame) Len() int { return len(f.values) }

// Data returns the resolved-data mapping carried by the frame, if any.
func (f Frame) Data() *snapshot.Snapshot {
	s, _ := f.values[KeyData].(*snapshot.Snapshot)
	return s
}

// Method returns the resolution method name carried by the frame.
func (f Frame) Method() string {
	m, _ := f.values[KeyMethod].(string)
	return m
}

// ResolvedAt returns the resolution timestamp, when the frame carries one.
func (f Frame) ResolvedAt() (time.Time, bool) {
	t, ok := f.values[KeyResolvedAt].(time.Time)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// WithData is shorthand for contributing the three resolution values at once.
// A zero resolvedAt is omitted so the frame carries no freshness stamp.
func (f Frame) WithData(data *snapshot.Snapshot, method string, resolvedAt time.Time) Frame {
	add := map[string]any{KeyData: data}
	if method != "" {
		add[KeyMethod] = method
	}
	if !resolvedAt.IsZero() {
		add[KeyResolvedAt] = resolvedAt
	}
	return f.With(add)
}
