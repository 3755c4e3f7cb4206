package hydrate

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	events "github.com/hanpama/compdata/internal/events"
	frame "github.com/hanpama/compdata/internal/frame"
	logging "github.com/hanpama/compdata/internal/logging"
	payload "github.com/hanpama/compdata/internal/payload"
	snapshot "github.com/hanpama/compdata/internal/snapshot"
	tree "github.com/hanpama/compdata/internal/tree"
)

// DefaultFreshness bounds how old frame data may be before a Resolver
// ignores it.
const DefaultFreshness = 500 * time.Millisecond

// RemountKey is the key given to a node once props were merged into it.
const RemountKey = "hasInitialProps"

type State int

const (
	Unresolved State = iota
	ContextHit
	PayloadHit
	SelfResolving
	Resolved
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case ContextHit:
		return "context-hit"
	case PayloadHit:
		return "payload-hit"
	case SelfResolving:
		return "self-resolving"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

// Source names where a Resolver's props came from.
type Source string

const (
	SourceContext Source = "context"
	SourcePayload Source = "payload"
	SourceSelf    Source = "self"
	SourceEmpty   Source = "empty"
)

type Options struct {
	// Freshness is the maximum age of timestamped frame data.
	Freshness time.Duration
	// Client enables self-resolution.
	Client bool
	// Main makes the Resolver accept bare (non-indexed) data. Hydrate takes
	// it from each Boundary instead.
	Main bool
	// Payload supplies the embedded document payload.
	Payload *Payload
	// Method is used when the frame names none.
	Method string
	Now    func() time.Time
	Logger *logrus.Entry
}

type Option func(*Options)

func WithFreshness(d time.Duration) Option { return func(o *Options) { o.Freshness = d } }
func WithClient(client bool) Option       { return func(o *Options) { o.Client = client } }
func WithMain(main bool) Option           { return func(o *Options) { o.Main = main } }
func WithMethod(name string) Option       { return func(o *Options) { o.Method = name } }
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}
func WithLogger(l *logrus.Entry) Option { return func(o *Options) { o.Logger = l } }

// WithStore reads the embedded payload from s. Resolvers built with the same
// Option share one read of the store.
func WithStore(s *payload.Store) Option {
	p := NewPayload(s)
	return func(o *Options) { o.Payload = p }
}

func buildOptions(opts []Option) Options {
	op := Options{Freshness: DefaultFreshness, Method: tree.DefaultMethod, Now: time.Now}
	for _, f := range opts {
		f(&op)
	}
	if op.Freshness <= 0 {
		op.Freshness = DefaultFreshness
	}
	if op.Method == "" {
		op.Method = tree.DefaultMethod
	}
	if op.Now == nil {
		op.Now = time.Now
	}
	if op.Logger == nil {
		op.Logger = logging.New("hydrate")
	}
	return op
}

// Payload is a decoded view of a payload.Store. The store is consumed on the
// first Get; every Get returns that one result.
type Payload struct {
	store *payload.Store
	once  sync.Once
	snap  *snapshot.Snapshot
	err   error
}

func NewPayload(s *payload.Store) *Payload { return &Payload{store: s} }

func (p *Payload) Get(ctx context.Context) (*snapshot.Snapshot, error) {
	if p == nil {
		return nil, nil
	}
	p.once.Do(func() {
		p.snap, _, p.err = p.store.Consume(ctx)
	})
	return p.snap, p.err
}

// Result is the outcome of one activation.
type Result struct {
	// Node is the child to render in the Resolver's place.
	Node   *tree.Node
	Props  tree.Props
	Source Source
	// Err holds a self-resolution or payload failure. The node still renders.
	Err error
}

// Resolver obtains props for one node.
type Resolver struct {
	opt   Options
	child *tree.Node

	once   sync.Once
	result Result

	mu    sync.Mutex
	state State
}

func New(child *tree.Node, opts ...Option) *Resolver {
	return &Resolver{opt: buildOptions(opts), child: child}
}

// State returns the Resolver's current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resolver) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Activate resolves the child's props. Only the first call does any work;
// concurrent callers wait for it and every call returns the same Result.
// A finished activation always leaves the Resolver Resolved; Source is
// SourceEmpty when no props were found.
func (r *Resolver) Activate(ctx context.Context, f frame.Frame) Result {
	r.once.Do(func() {
		r.result = r.run(ctx, f)
		r.setState(Resolved)
	})
	return r.result
}

func (r *Resolver) run(ctx context.Context, f frame.Frame) Result {
	start := r.opt.Now()
	res := r.activate(ctx, f)
	if res.Props != nil && r.child != nil {
		res.Node = r.child.WithProps(res.Props).WithKey(RemountKey)
	} else {
		res.Node = r.child
	}

	identity, _ := tree.Identity(r.childType())
	eventbus.Publish(ctx, events.HydrateNode{
		Identity: identity,
		Source:   string(res.Source),
		Err:      res.Err,
		Duration: r.opt.Now().Sub(start),
	})
	return res
}

func (r *Resolver) childType() any {
	if r.child == nil {
		return nil
	}
	return r.child.Type
}

func (r *Resolver) activate(ctx context.Context, f frame.Frame) Result {
	log := r.opt.Logger
	identity, hasIdentity := tree.Identity(r.childType())
	if hasIdentity {
		log = log.WithField("identity", identity)
	}

	if data := f.Data(); data != nil {
		if r.stale(f) {
			log.Debug("frame data expired")
		} else if props, ok := r.pick(data, identity, hasIdentity); ok {
			r.setState(ContextHit)
			return Result{Props: props, Source: SourceContext}
		}
	}

	var payloadErr error
	if r.opt.Payload != nil {
		data, err := r.opt.Payload.Get(ctx)
		payloadErr = err
		if props, ok := r.pick(data, identity, hasIdentity); ok {
			r.setState(PayloadHit)
			return Result{Props: props, Source: SourcePayload}
		}
	}

	if !r.opt.Client {
		return Result{Source: SourceEmpty, Err: payloadErr}
	}
	res := r.selfResolve(ctx, f, log)
	if res.Props == nil && res.Err == nil {
		res.Err = payloadErr
	}
	return res
}

// stale reports whether timestamped frame data is older than the window.
func (r *Resolver) stale(f frame.Frame) bool {
	at, ok := f.ResolvedAt()
	if !ok {
		return false
	}
	return r.opt.Now().Sub(at) > r.opt.Freshness
}

func (r *Resolver) pick(data *snapshot.Snapshot, identity string, hasIdentity bool) (tree.Props, bool) {
	if data == nil {
		return nil, false
	}
	if data.Indexed() {
		if !hasIdentity {
			return nil, false
		}
		props, ok := data.Lookup(identity)
		if !ok {
			return nil, false
		}
		if props == nil {
			props = map[string]any{}
		}
		return tree.Props(props), true
	}
	if !r.opt.Main {
		return nil, false
	}
	props, ok := data.Props()
	return tree.Props(props), ok
}

func (r *Resolver) selfResolve(ctx context.Context, f frame.Frame, log *logrus.Entry) Result {
	method := f.Method()
	if method == "" {
		method = r.opt.Method
	}
	fn, ok := tree.Lookup(r.childType(), method)
	if !ok {
		return Result{Source: SourceEmpty}
	}
	r.setState(SelfResolving)
	fut := fn(ctx)
	if fut == nil {
		return Result{Source: SourceEmpty}
	}
	props, err := fut.Await(ctx)
	if err != nil {
		err = errors.Wrapf(err, "self-resolve %s", method)
		log.WithError(err).Warn("client resolution failed; rendering without data")
		return Result{Source: SourceEmpty, Err: err}
	}
	if props == nil {
		log.WithField("method", method).Debug("client resolution returned no data")
		return Result{Source: SourceEmpty}
	}
	return Result{Props: props, Source: SourceSelf}
}
