// Package router provides a routed-view container node type. A Router
// renders the view matching its current location; the view is created through
// an optional CreateElement hook so callers can wrap each routed view, for
// example to remount it on every navigation.
package router

import (
	"fmt"
	"strings"

	frame "github.com/hanpama/compdata/internal/frame"
	tree "github.com/hanpama/compdata/internal/tree"
)

// Props keys understood by Router and passed to routed views.
const (
	PropLocation      = "location"
	PropCreateElement = "createElement"
	PropParams        = "params"
)

// Location is the router's current position. Key changes on every
// navigation, even between identical paths.
type Location struct {
	Path string `json:"path"`
	Key  string `json:"key"`
}

// Route maps a path pattern to a view type. Patterns use "/" separated
// segments; ":name" captures a segment and a trailing "*" matches the rest.
type Route struct {
	Path string
	View any
}

// CreateElement builds the node for a matched view.
type CreateElement func(view any, props tree.Props) *tree.Node

// Router is a composable node type. Its node props must carry a Location
// under PropLocation and may carry a CreateElement under PropCreateElement.
type Router struct {
	Routes   []Route
	NotFound any
}

// New returns a Router over routes, matched in order.
func New(routes ...Route) *Router { return &Router{Routes: routes} }

func (r *Router) DisplayName() string { return "Router" }

// Match returns the first route matching path and its captured params.
func (r *Router) Match(path string) (Route, map[string]string, bool) {
	for _, rt := range r.Routes {
		if params, ok := matchPattern(rt.Path, path); ok {
			return rt, params, true
		}
	}
	return Route{}, nil, false
}

// State is the outcome of matching a location, in the shape the simple
// resolve mode consumes.
type State struct {
	Location   Location
	Components []any
	Params     map[string]string
}

// State matches loc and reports the matched view chain.
func (r *Router) State(loc Location) (*State, bool) {
	rt, params, ok := r.Match(loc.Path)
	if !ok {
		if r.NotFound == nil {
			return nil, false
		}
		return &State{Location: loc, Components: []any{r.NotFound}, Params: map[string]string{}}, true
	}
	return &State{Location: loc, Components: []any{rt.View}, Params: params}, true
}

func (r *Router) Instantiate(props tree.Props, _ frame.Frame) (tree.Instance, error) {
	loc, ok := props[PropLocation].(Location)
	if !ok {
		return nil, fmt.Errorf("router: missing %q prop", PropLocation)
	}
	create, _ := props[PropCreateElement].(CreateElement)
	st, _ := r.State(loc)
	return &instance{state: st, create: create}, nil
}

type instance struct {
	state  *State
	create CreateElement
}

func (i *instance) Render() (*tree.Node, error) {
	if i.state == nil || len(i.state.Components) == 0 {
		return nil, nil
	}
	view := i.state.Components[len(i.state.Components)-1]
	props := tree.Props{PropLocation: i.state.Location, PropParams: i.state.Params}
	if i.create != nil {
		return i.create(view, props), nil
	}
	return tree.New(view, props), nil
}

func matchPattern(pattern, path string) (map[string]string, bool) {
	ps := splitPath(pattern)
	xs := splitPath(path)
	params := map[string]string{}
	for i, seg := range ps {
		if seg == "*" && i == len(ps)-1 {
			params["*"] = strings.Join(xs[min(i, len(xs)):], "/")
			return params, true
		}
		if i >= len(xs) {
			return nil, false
		}
		switch {
		case strings.HasPrefix(seg, ":"):
			params[seg[1:]] = xs[i]
		case seg != xs[i]:
			return nil, false
		}
	}
	if len(xs) != len(ps) {
		return nil, false
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
