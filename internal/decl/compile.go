package decl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	frame "github.com/hanpama/compdata/internal/frame"
	gqlfetch "github.com/hanpama/compdata/internal/gqlfetch"
	hydrate "github.com/hanpama/compdata/internal/hydrate"
	router "github.com/hanpama/compdata/internal/router"
	tree "github.com/hanpama/compdata/internal/tree"
)

// App is a compiled application description.
type App struct {
	def        *AppDef
	method     string
	components map[string]*tree.Component
	router     *router.Router
	opt        Options
}

// Compile validates def and builds its component types.
func Compile(def *AppDef, opts ...Option) (*App, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		def:        def,
		method:     def.Method,
		components: make(map[string]*tree.Component, len(def.Components)),
		opt:        buildOptions(opts),
	}
	if a.method == "" {
		a.method = tree.DefaultMethod
	}
	// Allocate first so templates can reference any component.
	for name := range def.Components {
		a.components[name] = &tree.Component{}
	}
	for _, name := range def.componentNames() {
		if err := a.build(name, def.Components[name]); err != nil {
			return nil, errors.Wrapf(err, "decl: component %q", name)
		}
	}
	if len(def.Routes) > 0 {
		routes := make([]router.Route, 0, len(def.Routes))
		for _, r := range def.Routes {
			routes = append(routes, router.Route{Path: r.Path, View: a.components[r.Component]})
		}
		a.router = router.New(routes...)
		if def.NotFound != "" {
			a.router.NotFound = a.components[def.NotFound]
		}
	}
	a.opt.Logger.WithField("app", def.App).WithField("components", len(a.components)).Debug("app compiled")
	return a, nil
}

func (a *App) Name() string { return a.def.App }

// Method returns the resolution method name the app's components expose.
func (a *App) Method() string { return a.method }

// Component returns the compiled component type called name.
func (a *App) Component(name string) (*tree.Component, bool) {
	c, ok := a.components[name]
	return c, ok
}

// Routed reports whether the app is a set of routes rather than a single root.
func (a *App) Routed() bool { return a.router != nil }

// Root returns the application's root node. For routed apps path selects the
// view and every call gets a fresh location key.
func (a *App) Root(path string) *tree.Node {
	if a.router != nil {
		loc := router.Location{Path: path, Key: uuid.NewString()}
		return tree.New(a.router, tree.Props{router.PropLocation: loc})
	}
	return tree.New(a.components[a.def.Root], a.def.Props)
}

// RouterState matches path against the app's routes.
func (a *App) RouterState(path string) (*router.State, bool) {
	if a.router == nil {
		return nil, false
	}
	return a.router.State(router.Location{Path: path})
}

func (a *App) build(name string, def ComponentDef) error {
	c := a.components[name]
	if !def.Anonymous {
		c.Name = name
	}
	c.Defaults = tree.Props(def.Defaults)

	if def.Source != nil {
		fn, err := a.source(def.Source)
		if err != nil {
			return err
		}
		c.Methods = map[string]tree.ResolveFunc{a.method: fn}
	}

	if len(def.Context) > 0 {
		keys := make([]string, 0, len(def.Context))
		progs := make(map[string]*vm.Program, len(def.Context))
		for k, src := range def.Context {
			p, err := compileExpr(src)
			if err != nil {
				return errors.Wrapf(err, "context %q", k)
			}
			keys = append(keys, k)
			progs[k] = p
		}
		sort.Strings(keys)
		log := a.opt.Logger.WithField("component", name)
		c.ContextFunc = func(props tree.Props, f frame.Frame) map[string]any {
			env := newEnv(props, f)
			out := make(map[string]any, len(keys))
			for _, k := range keys {
				v, err := expr.Run(progs[k], env)
				if err != nil {
					log.WithError(err).WithField("key", k).Warn("context expression failed")
					continue
				}
				out[k] = v
			}
			return out
		}
	}

	if def.Render != nil {
		t, err := a.compileTemplate(def.Render)
		if err != nil {
			return err
		}
		c.RenderFunc = func(props tree.Props, f frame.Frame) (*tree.Node, error) {
			return t.build(newEnv(props, f))
		}
	}
	return nil
}

func (a *App) source(def *SourceDef) (tree.ResolveFunc, error) {
	switch {
	case def.Static != nil:
		return tree.Static(tree.Props(def.Static)), nil
	case def.HTTP != "":
		url := def.HTTP
		return func(ctx context.Context) *tree.Future {
			return tree.Go(ctx, func(ctx context.Context) (tree.Props, error) {
				return a.fetchJSON(ctx, url)
			})
		}, nil
	default:
		forward := def.GraphQL.Forward
		if len(forward) == 0 {
			forward = a.opt.ForwardMetadata
		}
		src, err := gqlfetch.New(def.GraphQL.Endpoint, def.GraphQL.Query,
			gqlfetch.WithOperationName(def.GraphQL.Operation),
			gqlfetch.WithHTTPClient(a.opt.Client),
			gqlfetch.WithForwardMetadata(forward...),
			gqlfetch.WithLogger(a.opt.Logger))
		if err != nil {
			return nil, err
		}
		return src.Method(def.GraphQL.Variables), nil
	}
}

func (a *App) fetchJSON(ctx context.Context, url string) (tree.Props, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decl: build request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.opt.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "decl: get %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("decl: get %s: status %d", url, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrapf(err, "decl: decode %s", url)
	}
	return tree.Props(out), nil
}

// template is a compiled RenderDef.
type template struct {
	tag       string
	text      *vm.Program
	component *tree.Component
	props     tree.Props
	bindKeys  []string
	bind      map[string]*vm.Program
	when      *vm.Program
	boundary  bool
	children  []*template
}

func (a *App) compileTemplate(def *RenderDef) (*template, error) {
	t := &template{
		tag:      def.Tag,
		props:    tree.Props(def.Props),
		boundary: def.Boundary,
	}
	var err error
	if def.Text != "" {
		if t.text, err = compileExpr(def.Text); err != nil {
			return nil, errors.Wrapf(err, "text %q", def.Text)
		}
	}
	if def.When != "" {
		if t.when, err = compileExpr(def.When); err != nil {
			return nil, errors.Wrapf(err, "when %q", def.When)
		}
	}
	if def.Component != "" {
		t.component = a.components[def.Component]
	}
	if len(def.Bind) > 0 {
		t.bind = make(map[string]*vm.Program, len(def.Bind))
		for k, src := range def.Bind {
			p, err := compileExpr(src)
			if err != nil {
				return nil, errors.Wrapf(err, "bind %q", k)
			}
			t.bind[k] = p
			t.bindKeys = append(t.bindKeys, k)
		}
		sort.Strings(t.bindKeys)
	}
	for i := range def.Children {
		child, err := a.compileTemplate(&def.Children[i])
		if err != nil {
			return nil, err
		}
		t.children = append(t.children, child)
	}
	return t, nil
}

func (t *template) build(env map[string]any) (*tree.Node, error) {
	if t.when != nil {
		out, err := expr.Run(t.when, env)
		if err != nil {
			return nil, errors.Wrap(err, "when")
		}
		ok, isBool := out.(bool)
		if !isBool {
			return nil, errors.Errorf("when: expected bool, got %T", out)
		}
		if !ok {
			return nil, nil
		}
	}
	if t.text != nil {
		out, err := expr.Run(t.text, env)
		if err != nil {
			return nil, errors.Wrap(err, "text")
		}
		return tree.Text(stringify(out)), nil
	}

	props := t.props.Clone()
	if len(t.bind) > 0 {
		if props == nil {
			props = tree.Props{}
		}
		for _, k := range t.bindKeys {
			v, err := expr.Run(t.bind[k], env)
			if err != nil {
				return nil, errors.Wrapf(err, "bind %q", k)
			}
			props[k] = v
		}
	}
	var children []*tree.Node
	for _, ct := range t.children {
		child, err := ct.build(env)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}

	var n *tree.Node
	if t.component != nil {
		n = tree.New(t.component, props, children...)
	} else {
		n = tree.El(t.tag, props, children...)
	}
	if t.boundary {
		n = hydrate.Wrap(n)
	}
	return n, nil
}

func compileExpr(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.AllowUndefinedVariables())
}

// newEnv exposes props and the frame to expressions as `props` and `ctx(key)`.
func newEnv(props tree.Props, f frame.Frame) map[string]any {
	if props == nil {
		props = tree.Props{}
	}
	return map[string]any{
		"props": map[string]any(props),
		"ctx": func(key string) any {
			v, _ := f.Value(key)
			return v
		},
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	return fmt.Sprint(v)
}
