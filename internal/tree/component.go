package tree

import (
	"context"

	frame "github.com/hanpama/compdata/internal/frame"
)

// Component is a composable type assembled from functions. It is the usual
// way to declare node types in Go code.
type Component struct {
	// Name is the display name used as the node identity. Empty means the
	// type has no identity.
	Name string
	// Defaults are merged beneath each node's own props.
	Defaults Props
	// RenderFunc produces the child description for the given props.
	RenderFunc func(props Props, f frame.Frame) (*Node, error)
	// ContextFunc contributes frame values to descendants. f is the frame
	// the node itself inherited.
	ContextFunc func(props Props, f frame.Frame) map[string]any
	// Methods maps resolution method names to their implementations.
	Methods map[string]ResolveFunc
}

func (c *Component) DisplayName() string { return c.Name }

func (c *Component) DefaultProps() Props { return c.Defaults.Clone() }

func (c *Component) Method(name string) (ResolveFunc, bool) {
	fn, ok := c.Methods[name]
	return fn, ok
}

func (c *Component) Instantiate(props Props, f frame.Frame) (Instance, error) {
	return &ComponentInstance{component: c, props: props, frame: f}, nil
}

// ComponentInstance is the Instance produced by a Component.
type ComponentInstance struct {
	component *Component
	props     Props
	frame     frame.Frame
}

// Props returns the merged props the instance was constructed with.
func (i *ComponentInstance) Props() Props { return i.props }

func (i *ComponentInstance) Render() (*Node, error) {
	if i.component.RenderFunc == nil {
		return nil, nil
	}
	return i.component.RenderFunc(i.props, i.frame)
}

func (i *ComponentInstance) ChildContext() map[string]any {
	if i.component.ContextFunc == nil {
		return nil
	}
	return i.component.ContextFunc(i.props, i.frame)
}

// Static returns a ResolveFunc that settles immediately with p.
func Static(p Props) ResolveFunc {
	return func(context.Context) *Future { return Resolved(p.Clone()) }
}
