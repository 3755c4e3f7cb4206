package tree

import (
	"context"
	"sync"

	frame "github.com/hanpama/compdata/internal/frame"
)

// MockCall records one invocation of a mock resolution method.
type MockCall struct {
	Identity string
	Method   string
}

// MockRecorder collects MockCalls across goroutines. Tests use it to assert
// which resolution methods ran and how often.
type MockRecorder struct {
	mu    sync.Mutex
	calls []MockCall
}

func (r *MockRecorder) record(c MockCall) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls in invocation order.
func (r *MockRecorder) Calls() []MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MockCall(nil), r.calls...)
}

// Count returns how many times identity's method was invoked.
func (r *MockRecorder) Count(identity string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Identity == identity {
			n++
		}
	}
	return n
}

// MockResolver produces the result of a mock resolution call.
type MockResolver func(ctx context.Context) (Props, error)

// NewMockValueResolver returns a MockResolver that always yields p.
func NewMockValueResolver(p Props) MockResolver {
	return func(context.Context) (Props, error) { return p.Clone(), nil }
}

// NewMockErrorResolver returns a MockResolver that always fails with err.
func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context) (Props, error) { return nil, err }
}

// NewMockComponent declares a component named name whose method resolves via
// resolver and records each call on rec. A nil resolver makes the method
// return a nil Future. render may be nil for leaf components.
func NewMockComponent(rec *MockRecorder, name, method string, resolver MockResolver, render func(Props, frame.Frame) (*Node, error)) *Component {
	if method == "" {
		method = DefaultMethod
	}
	return &Component{
		Name:       name,
		RenderFunc: render,
		Methods: map[string]ResolveFunc{
			method: func(ctx context.Context) *Future {
				if rec != nil {
					rec.record(MockCall{Identity: name, Method: method})
				}
				if resolver == nil {
					return nil
				}
				return Go(ctx, resolver)
			},
		},
	}
}

// RenderChild is a render function that always yields child.
func RenderChild(child *Node) func(Props, frame.Frame) (*Node, error) {
	return func(Props, frame.Frame) (*Node, error) { return child, nil }
}
