package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	events "github.com/hanpama/compdata/internal/events"
	frame "github.com/hanpama/compdata/internal/frame"
	payload "github.com/hanpama/compdata/internal/payload"
	reqid "github.com/hanpama/compdata/internal/reqid"
	tree "github.com/hanpama/compdata/internal/tree"
)

func profileRoot(rec *tree.MockRecorder, resolve tree.MockResolver) RootFunc {
	profile := tree.NewMockComponent(rec, "Profile", "", resolve,
		func(p tree.Props, _ frame.Frame) (*tree.Node, error) {
			return tree.El("p", tree.Props{"class": "name"}, tree.Text(fmt.Sprint(p["user"]))), nil
		})
	return func(*http.Request) (*tree.Node, error) { return tree.New(profile, nil), nil }
}

func newTestHandler(t *testing.T, root RootFunc, opts ...Option) *Handler {
	t.Helper()
	h, err := New(root, opts...)
	require.NoError(t, err)
	return h
}

func TestPage_HTML(t *testing.T) {
	rec := &tree.MockRecorder{}
	h := newTestHandler(t, profileRoot(rec, tree.NewMockValueResolver(tree.Props{"user": "ada"})), WithTitle("Profile"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	body := w.Body.String()
	require.True(t, strings.HasPrefix(body, "<!DOCTYPE html>"))
	require.Contains(t, body, "<title>Profile</title>")
	require.Contains(t, body, `<div id="root"><span><p class="name">ada</p></span></div>`)
	require.Equal(t, 1, rec.Count("Profile"), "rendering must reuse the resolved data")

	store, err := payload.NewStoreFromHTML(strings.NewReader(body))
	require.NoError(t, err)
	snap, ok, err := store.Consume(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	got, found := snap.Lookup("Profile")
	require.True(t, found)
	require.Equal(t, map[string]any{"user": "ada"}, got)
}

func TestPage_PayloadEscaping(t *testing.T) {
	nasty := "</script><script>alert(1)</script><!--"
	h := newTestHandler(t, profileRoot(nil, tree.NewMockValueResolver(tree.Props{"user": nasty})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, strings.Count(w.Body.String(), "</script>"))

	store, err := payload.NewStoreFromHTML(strings.NewReader(w.Body.String()))
	require.NoError(t, err)
	snap, _, err := store.Consume(context.Background())
	require.NoError(t, err)
	got, _ := snap.Lookup("Profile")
	require.Equal(t, nasty, got["user"])
}

func TestPage_JSON(t *testing.T) {
	h := newTestHandler(t, profileRoot(nil, tree.NewMockValueResolver(tree.Props{"user": "ada"})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?format=json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	want := map[string]any{"_resolverComponents": map[string]any{"Profile": map[string]any{"user": "ada"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestPage_Errors(t *testing.T) {
	notFound := func(*http.Request) (*tree.Node, error) { return nil, errors.Wrap(ErrNotFound, "/missing") }
	failing := profileRoot(nil, tree.NewMockErrorResolver(errors.New("backend down")))

	cases := []struct {
		name   string
		root   RootFunc
		method string
		target string
		status int
	}{
		{"not found", notFound, http.MethodGet, "/missing", http.StatusNotFound},
		{"resolve failure", failing, http.MethodGet, "/", http.StatusInternalServerError},
		{"resolve failure json", failing, http.MethodGet, "/?format=json", http.StatusInternalServerError},
		{"method", failing, http.MethodPost, "/", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, tc.root)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tc.method, tc.target, nil))
			require.Equal(t, tc.status, w.Code)
		})
	}
}

func TestForwardedHeaders(t *testing.T) {
	var captured metadata.MD
	resolve := func(ctx context.Context) (tree.Props, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return tree.Props{"user": "ada"}, nil
	}
	h := newTestHandler(t, profileRoot(nil, resolve), WithMetadataHeaders("X-Test"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Test", "abc")
	req.Header.Set("X-Other", "nope")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"abc"}, captured.Get("x-test"))
	require.Empty(t, captured.Get("x-other"))
}

func TestForwardedHeadersDefaultEmpty(t *testing.T) {
	var captured metadata.MD
	resolve := func(ctx context.Context) (tree.Props, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return tree.Props{}, nil
	}
	h := newTestHandler(t, profileRoot(nil, resolve))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Test", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Empty(t, captured.Get("x-test"))
}

func TestRequestID(t *testing.T) {
	var (
		capturedMD metadata.MD
		capturedID string
	)
	resolve := func(ctx context.Context) (tree.Props, error) {
		capturedMD, _ = metadata.FromOutgoingContext(ctx)
		capturedID, _ = reqid.FromContext(ctx)
		return tree.Props{}, nil
	}
	h := newTestHandler(t, profileRoot(nil, resolve))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, capturedID)
	require.Equal(t, []string{capturedID}, capturedMD.Get(RequestIDMetadataKey))
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, profileRoot(nil, tree.NewMockValueResolver(tree.Props{})), WithCORS("*"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	require.Equal(t, http.StatusNoContent, pw.Code)
	require.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Test", pw.Header().Get("Access-Control-Allow-Headers"))
}

func TestPageEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		finished []events.PageFinish
	)
	bus := eventbus.New()
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.PageFinish) {
		mu.Lock()
		finished = append(finished, e)
		mu.Unlock()
	})
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	h := newTestHandler(t, profileRoot(nil, tree.NewMockValueResolver(tree.Props{"user": "ada"})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?format=json", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finished, 1)
	require.Equal(t, http.StatusOK, finished[0].Status)
	require.Equal(t, "json", finished[0].Format)
	require.Equal(t, w.Body.Len(), finished[0].Bytes)
}

func TestNew_NilRoot(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
