package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ComponentsKey wraps identity-indexed data in the serialized form.
const ComponentsKey = "_resolverComponents"

// Snapshot is the frozen result of one resolve cycle. It is either indexed by
// node identity (recursive mode) or a bare props object (simple mode).
// A Snapshot is never mutated after construction; accessors return copies.
type Snapshot struct {
	indexed    bool
	components map[string]map[string]any
	props      map[string]any
}

// NewIndexed freezes an identity-indexed mapping. The input is copied.
func NewIndexed(components map[string]map[string]any) *Snapshot {
	cp := make(map[string]map[string]any, len(components))
	for k, v := range components {
		cp[k] = copyProps(v)
	}
	return &Snapshot{indexed: true, components: cp}
}

// NewBare freezes a single props object for the simple (non-recursive) mode.
func NewBare(props map[string]any) *Snapshot {
	return &Snapshot{props: copyProps(props)}
}

// Indexed reports whether the snapshot is keyed by node identity.
func (s *Snapshot) Indexed() bool { return s != nil && s.indexed }

// Len returns the number of identity entries, or 1 for a non-empty bare snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	if s.indexed {
		return len(s.components)
	}
	if s.props == nil {
		return 0
	}
	return 1
}

// Lookup returns the props stored for identity. A present entry whose value
// was null yields (nil, true).
func (s *Snapshot) Lookup(identity string) (map[string]any, bool) {
	if s == nil || !s.indexed {
		return nil, false
	}
	v, ok := s.components[identity]
	if !ok {
		return nil, false
	}
	return copyProps(v), true
}

// Props returns the bare props of a non-indexed snapshot.
func (s *Snapshot) Props() (map[string]any, bool) {
	if s == nil || s.indexed {
		return nil, false
	}
	return copyProps(s.props), s.props != nil
}

// Components returns a copy of the identity-indexed mapping.
func (s *Snapshot) Components() map[string]map[string]any {
	if s == nil || !s.indexed {
		return nil
	}
	cp := make(map[string]map[string]any, len(s.components))
	for k, v := range s.components {
		cp[k] = copyProps(v)
	}
	return cp
}

// MarshalJSON writes {"_resolverComponents":{...}} for indexed snapshots and
// the bare props object otherwise. HTML characters are left unescaped; callers
// embedding the output in a document escape it themselves.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	if s.indexed {
		return marshal(map[string]any{ComponentsKey: s.components})
	}
	return marshal(s.props)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON accepts either serialized form.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = Snapshot{}
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if inner, ok := raw[ComponentsKey]; ok {
		var comps map[string]map[string]any
		if err := json.Unmarshal(inner, &comps); err != nil {
			return fmt.Errorf("snapshot: %s: %w", ComponentsKey, err)
		}
		if comps == nil {
			comps = map[string]map[string]any{}
		}
		*s = Snapshot{indexed: true, components: comps}
		return nil
	}
	var props map[string]any
	if err := json.Unmarshal(b, &props); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	*s = Snapshot{props: props}
	return nil
}

// ToStruct converts the serialized form into a google.protobuf.Struct so a
// snapshot can be handed to gRPC peers without a bespoke message type.
func (s *Snapshot) ToStruct() (*structpb.Struct, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct is the inverse of ToStruct.
func FromStruct(st *structpb.Struct) (*Snapshot, error) {
	if st == nil {
		return nil, nil
	}
	b, err := st.MarshalJSON()
	if err != nil {
		return nil, err
	}
	s := &Snapshot{}
	if err := s.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return s, nil
}

// copyProps deep-copies the JSON-shaped values of m: nested objects and
// arrays are copied, scalars are shared.
func copyProps(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = copyValue(v)
	}
	return cp
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyProps(x)
	case []any:
		if x == nil {
			return x
		}
		cp := make([]any, len(x))
		for i, e := range x {
			cp[i] = copyValue(e)
		}
		return cp
	case []map[string]any:
		if x == nil {
			return x
		}
		cp := make([]map[string]any, len(x))
		for i, e := range x {
			cp[i] = copyProps(e)
		}
		return cp
	default:
		return v
	}
}
