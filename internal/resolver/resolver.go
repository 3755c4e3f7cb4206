package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	events "github.com/hanpama/compdata/internal/events"
	frame "github.com/hanpama/compdata/internal/frame"
	logging "github.com/hanpama/compdata/internal/logging"
	reqid "github.com/hanpama/compdata/internal/reqid"
	snapshot "github.com/hanpama/compdata/internal/snapshot"
	tree "github.com/hanpama/compdata/internal/tree"
)

const (
	modeRecursive = "recursive"
	modeSimple    = "simple"
)

type Options struct {
	// Method is the resolution method name used when the frame carries none.
	Method string
	Logger *logrus.Entry
}

type Option func(*Options)

func WithMethod(name string) Option { return func(o *Options) { o.Method = name } }
func WithLogger(l *logrus.Entry) Option {
	return func(o *Options) { o.Logger = l }
}

// Resolver runs resolve operations. It holds configuration only; every
// operation gets its own accumulator, so one Resolver may serve concurrent
// requests.
type Resolver struct {
	opt Options
}

func New(opts ...Option) *Resolver {
	op := Options{Method: tree.DefaultMethod}
	for _, f := range opts {
		f(&op)
	}
	if op.Method == "" {
		op.Method = tree.DefaultMethod
	}
	if op.Logger == nil {
		op.Logger = logging.New("resolver")
	}
	return &Resolver{opt: op}
}

// Method returns the configured resolution method name.
func (r *Resolver) Method() string { return r.opt.Method }

// resolveState is the accumulator shared by the recursive calls of one
// operation.
type resolveState struct {
	method string
	log    *logrus.Entry
	waves  atomic.Uint64

	mu   sync.Mutex
	data map[string]map[string]any
}

// query is one pending resolution call found by the collector.
type query struct {
	future *tree.Future
	node   *tree.Node
	frame  frame.Frame
}

// Resolve resolves the tree rooted at a node of type typ, including the root
// itself. typ must be composable.
func (r *Resolver) Resolve(ctx context.Context, typ any, props tree.Props) (*snapshot.Snapshot, error) {
	if _, ok := typ.(tree.Composable); !ok {
		return nil, errors.Wrapf(ErrUsage, "got %T", typ)
	}
	return r.ResolveTree(ctx, tree.New(typ, props), frame.Empty(), true)
}

// ResolveTree collects and resolves every resolution call reachable from root.
// It returns nil when no node in the tree resolves data. The root is only
// collected when includeRoot is set.
func (r *Resolver) ResolveTree(ctx context.Context, root *tree.Node, f frame.Frame, includeRoot bool) (*snapshot.Snapshot, error) {
	if root == nil {
		return nil, errors.Wrap(ErrUsage, "nil root node")
	}
	ctx, rid := reqid.NewContext(ctx)
	st := &resolveState{
		method: r.opt.Method,
		log:    r.opt.Logger.WithField("rid", rid),
		data:   make(map[string]map[string]any),
	}

	start := time.Now()
	eventbus.Publish(ctx, events.ResolveStart{Mode: modeRecursive, Method: st.method})

	found, err := st.resolveLevel(ctx, root, f, nil, includeRoot, 0)
	var snap *snapshot.Snapshot
	if err == nil && found {
		st.mu.Lock()
		snap = snapshot.NewIndexed(st.data)
		st.mu.Unlock()
	}

	eventbus.Publish(ctx, events.ResolveFinish{
		Mode:     modeRecursive,
		Method:   st.method,
		Entries:  snap.Len(),
		Waves:    int(st.waves.Load()),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		st.log.WithError(err).Warn("resolve failed")
		return nil, err
	}
	st.log.WithFields(logrus.Fields{"entries": snap.Len(), "waves": st.waves.Load()}).Debug("resolve finished")
	return snap, nil
}

// resolveLevel collects the frontier below root and resolves it as one wave.
// It reports whether any query was collected.
func (st *resolveState) resolveLevel(ctx context.Context, root *tree.Node, f frame.Frame, override tree.Props, includeRoot bool, depth int) (bool, error) {
	queries := st.collect(ctx, root, f, override, includeRoot)
	if len(queries) == 0 {
		return false, nil
	}

	id := st.waves.Add(1)
	start := time.Now()
	eventbus.Publish(ctx, events.WaveStart{ID: id, Depth: depth, Size: len(queries)})
	st.log.WithFields(logrus.Fields{"wave": id, "depth": depth, "size": len(queries)}).Debug("wave collected")

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		q := q
		g.Go(func() error { return st.settle(gctx, q, depth) })
	}
	err := g.Wait()

	eventbus.Publish(ctx, events.WaveFinish{ID: id, Depth: depth, Size: len(queries), Err: err, Duration: time.Since(start)})
	return true, err
}

// collect walks the tree once and starts every resolution call it finds.
func (st *resolveState) collect(ctx context.Context, root *tree.Node, f frame.Frame, override tree.Props, includeRoot bool) []query {
	var queries []query
	tree.Walk(root, f, override, func(n *tree.Node, _ tree.Instance, nf frame.Frame) tree.Action {
		if !includeRoot && n == root {
			return tree.Continue
		}
		method := nf.Method()
		if method == "" {
			method = st.method
		}
		fn, ok := tree.Lookup(n.Type, method)
		if !ok {
			return tree.Continue
		}
		fut := fn(ctx)
		if fut == nil {
			return tree.Continue
		}
		queries = append(queries, query{future: fut, node: n, frame: nf})
		// The subtree depends on data that has not arrived yet.
		return tree.Stop
	}, tree.WithLogger(st.log))
	return queries
}

// settle awaits one query, stores its props, and resolves the subtree the
// props reveal.
func (st *resolveState) settle(ctx context.Context, q query, depth int) error {
	props, err := q.future.Await(ctx)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", describe(q.node))
	}
	identity, ok := tree.Identity(q.node.Type)
	if !ok {
		return errors.Wrapf(ErrMissingIdentity, "node of type %T", q.node.Type)
	}
	st.store(identity, props)
	_, err = st.resolveLevel(ctx, q.node, q.frame, props, false, depth+1)
	return err
}

func (st *resolveState) store(identity string, props tree.Props) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, dup := st.data[identity]; dup {
		st.log.WithField("identity", identity).Debug("identity resolved twice; keeping the later result")
	}
	st.data[identity] = map[string]any(props.Clone())
}

func describe(n *tree.Node) string {
	if id, ok := tree.Identity(n.Type); ok {
		return id
	}
	return "node"
}
