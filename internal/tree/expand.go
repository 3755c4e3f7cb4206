package tree

import (
	"context"

	frame "github.com/hanpama/compdata/internal/frame"
	logging "github.com/hanpama/compdata/internal/logging"
)

// Interceptor may replace a node before Expand instantiates it. When handled
// is true the replacement is expanded in the node's place; a nil replacement
// removes the node.
type Interceptor func(ctx context.Context, n *Node, f frame.Frame) (replacement *Node, handled bool)

// WithInterceptor registers fn with Expand. Walk ignores it.
func WithInterceptor(fn Interceptor) WalkOption {
	return func(w *walker) { w.intercept = fn }
}

// Expand renders the tree rooted at n down to primitive nodes: every
// composable node is replaced by the expansion of what it renders. Failed
// branches are dropped and reported like in Walk.
func Expand(ctx context.Context, n *Node, f frame.Frame, opts ...WalkOption) *Node {
	w := &walker{log: logging.New("walker")}
	for _, o := range opts {
		o(w)
	}
	return w.expand(ctx, n, f, nil)
}

func (w *walker) expand(ctx context.Context, n *Node, f frame.Frame, override Props) *Node {
	if n == nil {
		return nil
	}
	if w.intercept != nil {
		if repl, handled := w.intercept(ctx, n, f); handled {
			return w.expand(ctx, repl, f, nil)
		}
	}
	c, ok := n.Type.(Composable)
	if !ok {
		cp := *n
		cp.Props = n.Props.Clone()
		cp.Children = nil
		for _, child := range n.Children {
			if e := w.expand(ctx, child, f, nil); e != nil {
				cp.Children = append(cp.Children, e)
			}
		}
		return &cp
	}

	inst, err := instantiate(c, InstanceProps(n, override), f)
	if err != nil {
		w.fail(n, err)
		return nil
	}
	childFrame := f
	if cp, ok := inst.(ContextProvider); ok {
		childFrame = f.With(cp.ChildContext())
	}
	child, err := render(inst)
	if err != nil {
		w.fail(n, err)
		return nil
	}
	return w.expand(ctx, child, childFrame, nil)
}
