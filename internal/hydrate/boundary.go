package hydrate

import (
	frame "github.com/hanpama/compdata/internal/frame"
	tree "github.com/hanpama/compdata/internal/tree"
)

// Boundary is the node type marking a data-consuming child. Outside of
// Hydrate it renders its child unchanged, so server-side walks see through it.
type Boundary struct {
	// Main marks the designated main consumer, the one Resolver that accepts
	// bare (simple mode) data.
	Main bool
}

// Shared Boundary values used as node types.
var (
	BoundaryType     = &Boundary{}
	MainBoundaryType = &Boundary{Main: true}
)

// Wrap puts child behind a Boundary.
func Wrap(child *tree.Node) *tree.Node {
	return tree.New(BoundaryType, nil, child)
}

// WrapMain puts child behind the main consumer's Boundary.
func WrapMain(child *tree.Node) *tree.Node {
	return tree.New(MainBoundaryType, nil, child)
}

func (b *Boundary) Instantiate(props tree.Props, _ frame.Frame) (tree.Instance, error) {
	return boundaryInstance{child: onlyChild(tree.ChildNodes(props))}, nil
}

type boundaryInstance struct{ child *tree.Node }

func (i boundaryInstance) Render() (*tree.Node, error) { return i.child, nil }

func onlyChild(children []*tree.Node) *tree.Node {
	for _, c := range children {
		if c != nil {
			return c
		}
	}
	return nil
}
