package decl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	frame "github.com/hanpama/compdata/internal/frame"
	hydrate "github.com/hanpama/compdata/internal/hydrate"
	provider "github.com/hanpama/compdata/internal/provider"
	resolver "github.com/hanpama/compdata/internal/resolver"
	tree "github.com/hanpama/compdata/internal/tree"
)

const profileYAML = `
app: profile
root: App
components:
  App:
    context:
      theme: "'dark'"
    render:
      tag: main
      children:
        - component: Profile
          boundary: true
          props: {id: "1"}
  Profile:
    source:
      static: {user: ada}
    render:
      tag: div
      props: {class: profile}
      children:
        - text: "props.user == nil ? 'loading' : props.user"
        - text: "ctx('theme')"
        - component: Avatar
          when: "props.user != nil"
          boundary: true
          bind: {owner: "props.user"}
  Avatar:
    source:
      http: %s
    render:
      text: "props.owner + ':' + props.url"
`

func avatarServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"/ada.png"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoad_ResolveAndHydrate(t *testing.T) {
	srv := avatarServer(t)
	app, err := Load([]byte(fmt.Sprintf(profileYAML, srv.URL)))
	require.NoError(t, err)
	require.Equal(t, "profile", app.Name())
	require.Equal(t, tree.DefaultMethod, app.Method())
	require.False(t, app.Routed())

	ctx := context.Background()
	snap, err := resolver.New(resolver.WithMethod(app.Method())).ResolveTree(ctx, app.Root(""), frame.Empty(), true)
	require.NoError(t, err)
	want := map[string]map[string]any{
		"Profile": {"user": "ada"},
		"Avatar":  {"url": "/ada.png"},
	}
	if diff := cmp.Diff(want, snap.Components()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	p := &provider.Provider{Data: snap, Method: app.Method()}
	rep := hydrate.Hydrate(ctx, p.Wrap(app.Root("")), frame.Empty())
	require.NoError(t, rep.Err)
	require.Equal(t, 2, rep.Count(hydrate.SourceContext))

	wantTree := tree.El(provider.WrapperTag, nil,
		tree.El("main", nil,
			tree.El("div", tree.Props{"class": "profile"},
				tree.Text("ada"),
				tree.Text("dark"),
				tree.Text("ada:/ada.png"))))
	if diff := cmp.Diff(wantTree, rep.Tree); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_WhenHidesBranch(t *testing.T) {
	srv := avatarServer(t)
	app, err := Load([]byte(fmt.Sprintf(profileYAML, srv.URL)))
	require.NoError(t, err)

	// Without data the Profile renders its loading state and no Avatar.
	got := tree.Expand(context.Background(), app.Root(""), frame.Empty())
	want := tree.El("main", nil,
		tree.El("div", tree.Props{"class": "profile"},
			tree.Text("loading"),
			tree.Text("dark")))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

const routedYAML = `
app: site
method: getData
routes:
  - path: /
    component: Home
  - path: /users/:id
    component: User
notFound: Missing
components:
  Home:
    render: {text: "'home'"}
  User:
    source:
      static: {name: ada}
    render: {text: "props.name"}
  Missing:
    render: {text: "'missing'"}
`

func TestLoad_Routes(t *testing.T) {
	app, err := Load([]byte(routedYAML))
	require.NoError(t, err)
	require.True(t, app.Routed())
	require.Equal(t, "getData", app.Method())

	st, ok := app.RouterState("/users/7")
	require.True(t, ok)
	user, _ := app.Component("User")
	require.Equal(t, []any{user}, st.Components)

	snap, err := resolver.New(resolver.WithMethod(app.Method())).ResolveSimple(context.Background(), st)
	require.NoError(t, err)
	props, ok := snap.Props()
	require.True(t, ok)
	require.Equal(t, map[string]any{"name": "ada"}, props)

	st, ok = app.RouterState("/nowhere")
	require.True(t, ok)
	missing, _ := app.Component("Missing")
	require.Equal(t, []any{missing}, st.Components)

	a, b := app.Root("/"), app.Root("/")
	require.NotEqual(t, a.Props["location"], b.Props["location"])
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"missing app": `root: A
components: {A: {}}`,
		"unknown root": `app: x
root: B
components: {A: {}}`,
		"root and routes": `app: x
root: A
routes: [{path: /, component: A}]
components: {A: {}}`,
		"unknown render component": `app: x
root: A
components:
  A:
    render: {component: B}`,
		"ambiguous render node": `app: x
root: A
components:
  A:
    render: {tag: div, text: "'x'"}`,
		"two sources": `app: x
root: A
components:
  A:
    source: {static: {a: 1}, http: "http://x"}`,
		"bad expression": `app: x
root: A
components:
  A:
    render: {text: "props.("}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(src))
			require.Error(t, err)
		})
	}
}

func TestAnonymousComponent(t *testing.T) {
	app, err := Load([]byte(`
app: x
root: A
components:
  A:
    anonymous: true
    source: {static: {a: 1}}
`))
	require.NoError(t, err)
	_, err = resolver.New().ResolveTree(context.Background(), app.Root(""), frame.Empty(), true)
	require.ErrorIs(t, err, resolver.ErrMissingIdentity)
}

func TestContextExpressionsSeeInheritedFrame(t *testing.T) {
	app, err := Load([]byte(`
app: ctx
root: Outer
components:
  Outer:
    context:
      theme: "'dark'"
    render: {component: Inner}
  Inner:
    context:
      theme: "ctx('theme') + '-inner'"
    render:
      tag: div
      children:
        - text: "ctx('theme')"
        - component: Leaf
  Leaf:
    render: {text: "ctx('theme')"}
`))
	require.NoError(t, err)

	got := tree.Expand(context.Background(), app.Root(""), frame.Empty())
	want := tree.El("div", nil, tree.Text("dark"), tree.Text("dark-inner"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

const graphqlYAML = `
app: gql
root: User
components:
  User:
    source:
      graphql:
        endpoint: %s
        query: "query U { user { name } }"
%s
`

func TestGraphQLSource_ForwardsMetadata(t *testing.T) {
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"user":{"name":"ada"}}}`))
	}))
	t.Cleanup(srv.Close)

	ctx := metadata.NewOutgoingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer t", "x-tenant", "acme"))

	tests := []struct {
		name       string
		forward    string
		opts       []Option
		wantAuth   string
		wantTenant string
	}{
		{name: "per source", forward: "        forward: [authorization]", wantAuth: "Bearer t"},
		{name: "app default", opts: []Option{WithForwardMetadata("x-tenant")}, wantTenant: "acme"},
		{
			name:     "source overrides default",
			forward:  "        forward: [authorization]",
			opts:     []Option{WithForwardMetadata("x-tenant")},
			wantAuth: "Bearer t",
		},
		{name: "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers = nil
			app, err := Load([]byte(fmt.Sprintf(graphqlYAML, srv.URL, tt.forward)), tt.opts...)
			require.NoError(t, err)

			snap, err := resolver.New().ResolveTree(ctx, app.Root(""), frame.Empty(), true)
			require.NoError(t, err)
			want := map[string]map[string]any{"User": {"user": map[string]any{"name": "ada"}}}
			if diff := cmp.Diff(want, snap.Components()); diff != "" {
				t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, tt.wantAuth, headers.Get("Authorization"))
			require.Equal(t, tt.wantTenant, headers.Get("X-Tenant"))
		})
	}
}
