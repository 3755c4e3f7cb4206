package hydrate

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	frame "github.com/hanpama/compdata/internal/frame"
	tree "github.com/hanpama/compdata/internal/tree"
)

// NodeResult is the outcome recorded for one Boundary.
type NodeResult struct {
	Identity string
	Source   Source
	Err      error
}

// Report summarizes a Hydrate pass.
type Report struct {
	// Tree is the expanded tree with every Boundary replaced by its child.
	Tree  *tree.Node
	Nodes []NodeResult
	// Err aggregates per-node failures. Failures never stop the pass.
	Err error
}

// Count returns how many nodes got their props from src.
func (r *Report) Count(src Source) int {
	n := 0
	for _, nr := range r.Nodes {
		if nr.Source == src {
			n++
		}
	}
	return n
}

// Hydrate expands root, activating one Resolver per Boundary. All Resolvers
// share opts; a store passed through WithStore is read once for the whole
// pass. Only a Boundary marked Main accepts bare data; WithMain is ignored.
func Hydrate(ctx context.Context, root *tree.Node, f frame.Frame, opts ...Option) *Report {
	op := buildOptions(opts)
	shared := func(o *Options) { *o = op }

	var (
		mu   sync.Mutex
		rep  = &Report{}
		merr *multierror.Error
	)
	record := func(nr NodeResult) {
		mu.Lock()
		defer mu.Unlock()
		rep.Nodes = append(rep.Nodes, nr)
		if nr.Err != nil {
			merr = multierror.Append(merr, nr.Err)
		}
	}

	intercept := func(ctx context.Context, n *tree.Node, nf frame.Frame) (*tree.Node, bool) {
		b, ok := n.Type.(*Boundary)
		if !ok {
			return nil, false
		}
		child := onlyChild(n.Children)
		if child == nil {
			child = onlyChild(tree.ChildNodes(n.Props))
		}
		if child == nil {
			return nil, true
		}
		res := New(child, shared, WithMain(b.Main)).Activate(ctx, nf)
		identity, _ := tree.Identity(child.Type)
		record(NodeResult{Identity: identity, Source: res.Source, Err: res.Err})
		return res.Node, true
	}
	onError := func(n *tree.Node, err error) {
		identity, _ := tree.Identity(n.Type)
		mu.Lock()
		merr = multierror.Append(merr, errors.Wrapf(err, "branch %q", identity))
		mu.Unlock()
	}

	rep.Tree = tree.Expand(ctx, root, f,
		tree.WithInterceptor(intercept),
		tree.WithBranchError(onError),
		tree.WithLogger(op.Logger))
	rep.Err = merr.ErrorOrNil()
	return rep
}
