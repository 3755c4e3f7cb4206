package resolver

import (
	"context"
	"time"

	"github.com/pkg/errors"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	events "github.com/hanpama/compdata/internal/events"
	reqid "github.com/hanpama/compdata/internal/reqid"
	router "github.com/hanpama/compdata/internal/router"
	snapshot "github.com/hanpama/compdata/internal/snapshot"
	tree "github.com/hanpama/compdata/internal/tree"
)

// ResolveSimple resolves data for a single component without walking a tree.
// thing is a node type (or *tree.Node) exposing the resolution method, or a
// *router.State, in which case the first matched view exposing the method is
// resolved. The result is a bare snapshot, or nil when nothing resolved.
func (r *Resolver) ResolveSimple(ctx context.Context, thing any) (*snapshot.Snapshot, error) {
	if n, ok := thing.(*tree.Node); ok && n != nil {
		thing = n.Type
	}

	var fn tree.ResolveFunc
	switch v := thing.(type) {
	case *router.State:
		if v == nil {
			return nil, errors.Wrap(ErrUsage, "nil router state")
		}
		fn = firstWithMethod(v.Components, r.opt.Method)
		if fn == nil {
			return nil, nil
		}
	default:
		f, ok := tree.Lookup(thing, r.opt.Method)
		if !ok {
			return nil, errors.Wrapf(ErrUsage, "got %T", thing)
		}
		fn = f
	}

	ctx, _ = reqid.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.ResolveStart{Mode: modeSimple, Method: r.opt.Method})
	snap, err := awaitBare(ctx, fn)
	eventbus.Publish(ctx, events.ResolveFinish{
		Mode:     modeSimple,
		Method:   r.opt.Method,
		Entries:  snap.Len(),
		Err:      err,
		Duration: time.Since(start),
	})
	return snap, err
}

func firstWithMethod(components []any, method string) tree.ResolveFunc {
	for _, c := range components {
		if c == nil {
			continue
		}
		if fn, ok := tree.Lookup(c, method); ok {
			return fn
		}
	}
	return nil
}

func awaitBare(ctx context.Context, fn tree.ResolveFunc) (*snapshot.Snapshot, error) {
	fut := fn(ctx)
	if fut == nil {
		return nil, nil
	}
	props, err := fut.Await(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve")
	}
	if props == nil {
		return nil, nil
	}
	return snapshot.NewBare(props), nil
}
