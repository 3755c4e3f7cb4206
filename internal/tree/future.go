package tree

import (
	"context"
	"fmt"
)

// Future is the pending result of a resolution call.
type Future struct {
	done  chan struct{}
	props Props
	err   error
}

// Go starts fn in its own goroutine and returns its Future. A panic in fn
// settles the Future with an error.
func Go(ctx context.Context, fn func(context.Context) (Props, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("resolution panicked: %v", r)
			}
		}()
		f.props, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns an already settled Future holding p.
func Resolved(p Props) *Future {
	f := &Future{done: make(chan struct{}), props: p}
	close(f.done)
	return f
}

// Rejected returns an already settled Future holding err.
func Rejected(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Await blocks until the Future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (Props, error) {
	select {
	case <-f.done:
		return f.props, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
