// Package provider supplies the root node that hands resolved data to the
// client resolvers below it.
package provider

import (
	"time"

	frame "github.com/hanpama/compdata/internal/frame"
	hydrate "github.com/hanpama/compdata/internal/hydrate"
	router "github.com/hanpama/compdata/internal/router"
	snapshot "github.com/hanpama/compdata/internal/snapshot"
	tree "github.com/hanpama/compdata/internal/tree"
)

// WrapperTag is the element the provider renders around its child.
const WrapperTag = "span"

// Provider is a composable node type. It contributes resolved data, the
// resolution method name and the resolution time to the frame, and puts its
// single child behind the main consumer's hydrate.Boundary. A router.Router
// child instead gets a CreateElement that puts every routed view behind that
// Boundary keyed by the location key, so each navigation resolves the new view
// afresh.
type Provider struct {
	Data       *snapshot.Snapshot
	Method     string
	ResolvedAt time.Time
}

// Wrap returns a node of type p around child.
func (p *Provider) Wrap(child *tree.Node) *tree.Node {
	return tree.New(p, nil, child)
}

func (p *Provider) DisplayName() string { return "ComponentData" }

func (p *Provider) Instantiate(props tree.Props, _ frame.Frame) (tree.Instance, error) {
	var child *tree.Node
	for _, c := range tree.ChildNodes(props) {
		if c != nil {
			child = c
			break
		}
	}
	return &instance{p: p, child: child}, nil
}

type instance struct {
	p     *Provider
	child *tree.Node
}

func (i *instance) ChildContext() map[string]any {
	ctx := map[string]any{}
	if i.p.Data != nil {
		ctx[frame.KeyData] = i.p.Data
	}
	if i.p.Method != "" {
		ctx[frame.KeyMethod] = i.p.Method
	}
	if !i.p.ResolvedAt.IsZero() {
		ctx[frame.KeyResolvedAt] = i.p.ResolvedAt
	}
	return ctx
}

func (i *instance) Render() (*tree.Node, error) {
	if i.child == nil {
		return tree.El(WrapperTag, nil), nil
	}
	if _, ok := i.child.Type.(*router.Router); ok {
		return tree.El(WrapperTag, nil, i.child.WithProps(tree.Props{
			router.PropCreateElement: router.CreateElement(createElement),
		})), nil
	}
	return tree.El(WrapperTag, nil, hydrate.WrapMain(i.child)), nil
}

func createElement(view any, props tree.Props) *tree.Node {
	n := hydrate.WrapMain(tree.New(view, props))
	if loc, ok := props[router.PropLocation].(router.Location); ok {
		n = n.WithKey(loc.Key)
	}
	return n
}
