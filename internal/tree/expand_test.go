package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	frame "github.com/hanpama/compdata/internal/frame"
)

func TestExpand(t *testing.T) {
	greeting := &Component{
		Name:     "Greeting",
		Defaults: Props{"name": "world"},
		RenderFunc: func(p Props, f frame.Frame) (*Node, error) {
			lang, _ := f.Value("lang")
			return El("p", Props{"lang": lang}, Text("hello "+p["name"].(string))), nil
		},
	}
	broken := &Component{
		Name:       "Broken",
		RenderFunc: func(Props, frame.Frame) (*Node, error) { return nil, errors.New("nope") },
	}
	root := El("div", nil, New(greeting, nil), nil, New(broken, nil))

	var failed []string
	got := Expand(context.Background(), root, frame.New(map[string]any{"lang": "en"}),
		WithBranchError(func(n *Node, err error) { failed = append(failed, typeName(n.Type)) }))

	want := El("div", nil, El("p", Props{"lang": "en"}, Text("hello world")))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"Broken"}, failed)
}

func TestExpand_Interceptor(t *testing.T) {
	marker := Element("marker")
	root := El("div", nil, New(marker, nil), El("span", nil))

	got := Expand(context.Background(), root, frame.Empty(),
		WithInterceptor(func(_ context.Context, n *Node, _ frame.Frame) (*Node, bool) {
			if n.Type == marker {
				return Text("replaced"), true
			}
			return nil, false
		}))

	want := El("div", nil, Text("replaced"), El("span", nil))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}
