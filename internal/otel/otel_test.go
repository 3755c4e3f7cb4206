package otel

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	frame "github.com/hanpama/compdata/internal/frame"
	resolver "github.com/hanpama/compdata/internal/resolver"
	tree "github.com/hanpama/compdata/internal/tree"
)

func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	bus := eventbus.New()
	detach := Attach(tp, bus)
	eventbus.Use(bus)
	t.Cleanup(func() {
		eventbus.Use(nil)
		detach()
	})
	return sr
}

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	var out []string
	for _, s := range spans {
		out = append(out, s.Name())
	}
	sort.Strings(out)
	return out
}

func TestResolveSpans(t *testing.T) {
	sr := setupRecorder(t)
	b := tree.NewMockComponent(nil, "B", "", tree.NewMockValueResolver(tree.Props{"b": 1}), nil)
	a := tree.NewMockComponent(nil, "A", "", tree.NewMockValueResolver(tree.Props{"a": 1}),
		tree.RenderChild(tree.New(b, nil)))

	_, err := resolver.New().ResolveTree(context.Background(), tree.El("div", nil, tree.New(a, nil)), frame.Empty(), false)
	require.NoError(t, err)

	ended := sr.Ended()
	require.Equal(t, []string{"compdata.resolve", "compdata.wave", "compdata.wave"}, spanNames(ended))

	var resolveSpan sdktrace.ReadOnlySpan
	for _, s := range ended {
		if s.Name() == "compdata.resolve" {
			resolveSpan = s
		}
	}
	for _, s := range ended {
		if s.Name() == "compdata.wave" {
			require.Equal(t, resolveSpan.SpanContext().SpanID(), s.Parent().SpanID())
		}
	}
}

func TestResolveSpans_Error(t *testing.T) {
	sr := setupRecorder(t)
	bad := tree.NewMockComponent(nil, "Bad", "", tree.NewMockErrorResolver(errors.New("boom")), nil)

	_, err := resolver.New().ResolveTree(context.Background(), tree.El("div", nil, tree.New(bad, nil)), frame.Empty(), false)
	require.Error(t, err)
	for _, s := range sr.Ended() {
		require.Equal(t, codes.Error, s.Status().Code, s.Name())
	}
}

func TestDetach(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	bus := eventbus.New()
	Attach(tp, bus)()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	foo := tree.NewMockComponent(nil, "Foo", "", tree.NewMockValueResolver(tree.Props{}), nil)
	_, err := resolver.New().ResolveTree(context.Background(), tree.El("div", nil, tree.New(foo, nil)), frame.Empty(), false)
	require.NoError(t, err)
	require.Empty(t, sr.Ended())
}

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup("", "compdata", eventbus.New())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
