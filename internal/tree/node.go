package tree

// Props are the arguments a node type is instantiated with.
type Props map[string]any

// ChildrenProp is the props key under which a composable receives the
// children declared on its node.
const ChildrenProp = "children"

// Node is an element of the virtual tree. Nodes are immutable; WithProps and
// WithKey return modified copies.
type Node struct {
	// Type identifies the node's capabilities. Composable types are
	// instantiated; any other value is treated as a primitive.
	Type any
	// Props are the node's own props, before defaults and overrides.
	Props Props
	// Children are the declared child nodes. Nil entries are skipped.
	Children []*Node
	// Key is the host runtime's remount key.
	Key string
}

// New creates a node of type t.
func New(t any, props Props, children ...*Node) *Node {
	return &Node{Type: t, Props: props.Clone(), Children: children}
}

// Element is a primitive node type identified by its tag name.
type Element string

// El creates a primitive element node.
func El(tag string, props Props, children ...*Node) *Node {
	return New(Element(tag), props, children...)
}

// TextTag is the tag used for text leaves.
const TextTag = "#text"

// Text creates a text leaf.
func Text(s string) *Node {
	return New(Element(TextTag), Props{"text": s})
}

// WithProps returns a copy of n whose props are n.Props shallow-merged with
// override.
func (n *Node) WithProps(override Props) *Node {
	cp := *n
	cp.Props = MergeProps(n.Props, override)
	return &cp
}

// WithKey returns a copy of n carrying key.
func (n *Node) WithKey(key string) *Node {
	cp := *n
	cp.Key = key
	return &cp
}

// Clone returns a shallow copy of p. A nil map stays nil.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	cp := make(Props, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// MergeProps shallow-merges layers from weakest to strongest. Later layers win.
func MergeProps(layers ...Props) Props {
	out := Props{}
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}

// ChildNodes extracts the children passed to a composable through props.
func ChildNodes(p Props) []*Node {
	switch v := p[ChildrenProp].(type) {
	case []*Node:
		return v
	case *Node:
		return []*Node{v}
	default:
		return nil
	}
}
