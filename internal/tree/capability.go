package tree

import (
	"context"

	frame "github.com/hanpama/compdata/internal/frame"
)

// DefaultMethod is the resolution method name used when none is configured.
const DefaultMethod = "getInitialProps"

// ResolveFunc starts a resolution call. A nil Future means "no data".
type ResolveFunc func(ctx context.Context) *Future

// Resolvable is implemented by node types that resolve data under
// DefaultMethod.
type Resolvable interface {
	Resolve(ctx context.Context) *Future
}

// MethodProvider is implemented by node types that expose resolution methods
// under configurable names.
type MethodProvider interface {
	Method(name string) (ResolveFunc, bool)
}

// Identifiable exposes the stable identity used as the resolved-data key.
type Identifiable interface {
	DisplayName() string
}

// Defaulter supplies default props, merged beneath a node's own props.
type Defaulter interface {
	DefaultProps() Props
}

// Composable types are instantiated into a subtree. Instantiate must not have
// side effects outside the returned Instance.
type Composable interface {
	Instantiate(props Props, f frame.Frame) (Instance, error)
}

// Instance is a constructed, unmounted composable.
type Instance interface {
	// Render returns the instance's child description. A nil node ends the
	// branch.
	Render() (*Node, error)
}

// ContextProvider is implemented by instances that contribute frame values to
// their descendants.
type ContextProvider interface {
	ChildContext() map[string]any
}

// Lookup finds the resolution method named method on t. An empty method means
// DefaultMethod.
func Lookup(t any, method string) (ResolveFunc, bool) {
	if method == "" {
		method = DefaultMethod
	}
	if mp, ok := t.(MethodProvider); ok {
		if fn, ok := mp.Method(method); ok && fn != nil {
			return fn, true
		}
	}
	if r, ok := t.(Resolvable); ok && method == DefaultMethod {
		return r.Resolve, true
	}
	return nil, false
}

// Identity returns t's display name. Empty names count as absent.
func Identity(t any) (string, bool) {
	id, ok := t.(Identifiable)
	if !ok {
		return "", false
	}
	name := id.DisplayName()
	return name, name != ""
}
