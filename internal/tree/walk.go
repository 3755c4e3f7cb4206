package tree

import (
	"fmt"

	"github.com/sirupsen/logrus"

	frame "github.com/hanpama/compdata/internal/frame"
	logging "github.com/hanpama/compdata/internal/logging"
)

// Action tells Walk whether to descend below the visited node.
type Action int

const (
	// Continue descends into the node's children or rendered subtree.
	Continue Action = iota
	// Stop leaves the node's subtree unvisited.
	Stop
)

// Visitor is called once per visited node. inst is nil for primitive nodes.
// f is the frame inherited by the node, without the node's own contribution.
type Visitor func(n *Node, inst Instance, f frame.Frame) Action

// WalkOption configures a single Walk call.
type WalkOption func(*walker)

// WithBranchError registers fn to observe branches that ended because a node
// failed to instantiate or render.
func WithBranchError(fn func(n *Node, err error)) WalkOption {
	return func(w *walker) { w.onError = fn }
}

// WithLogger overrides the walker's logger.
func WithLogger(l *logrus.Entry) WalkOption {
	return func(w *walker) {
		if l != nil {
			w.log = l
		}
	}
}

type walker struct {
	visit     Visitor
	intercept Interceptor
	onError   func(n *Node, err error)
	log       *logrus.Entry
}

// Walk traverses the tree rooted at n depth-first. override is merged over the
// root's props only. Composable nodes are instantiated without mounting; a
// failure to instantiate or render ends that branch and the walk continues
// elsewhere.
func Walk(n *Node, f frame.Frame, override Props, visit Visitor, opts ...WalkOption) {
	w := &walker{visit: visit, log: logging.New("walker")}
	for _, o := range opts {
		o(w)
	}
	w.walk(n, f, override)
}

func (w *walker) walk(n *Node, f frame.Frame, override Props) {
	if n == nil {
		return
	}
	c, ok := n.Type.(Composable)
	if !ok {
		if w.visit(n, nil, f) == Stop {
			return
		}
		for _, child := range n.Children {
			if child != nil {
				w.walk(child, f, nil)
			}
		}
		return
	}

	inst, err := instantiate(c, InstanceProps(n, override), f)
	if err != nil {
		w.fail(n, err)
		return
	}

	childFrame := f
	if cp, ok := inst.(ContextProvider); ok {
		childFrame = f.With(cp.ChildContext())
	}

	if w.visit(n, inst, f) == Stop {
		return
	}

	child, err := render(inst)
	if err != nil {
		w.fail(n, err)
		return
	}
	if child == nil {
		return
	}
	w.walk(child, childFrame, nil)
}

func (w *walker) fail(n *Node, err error) {
	w.log.WithError(err).WithField("type", typeName(n.Type)).Debug("branch ended")
	if w.onError != nil {
		w.onError(n, err)
	}
}

// InstanceProps computes the props a composable node is instantiated with:
// defaults, then own props and children, then override.
func InstanceProps(n *Node, override Props) Props {
	var defaults Props
	if d, ok := n.Type.(Defaulter); ok {
		defaults = d.DefaultProps()
	}
	own := n.Props
	if len(n.Children) > 0 {
		own = MergeProps(own, Props{ChildrenProp: n.Children})
	}
	return MergeProps(defaults, own, override)
}

func instantiate(c Composable, props Props, f frame.Frame) (inst Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("instantiate panicked: %v", r)
		}
	}()
	inst, err = c.Instantiate(props, f)
	if err == nil && inst == nil {
		err = fmt.Errorf("instantiate returned no instance")
	}
	return inst, err
}

func render(inst Instance) (child *Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()
	return inst.Render()
}

func typeName(t any) string {
	if name, ok := Identity(t); ok {
		return name
	}
	return fmt.Sprintf("%T", t)
}
