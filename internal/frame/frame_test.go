package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	snapshot "github.com/hanpama/compdata/internal/snapshot"
)

func TestWith_ShadowsWithoutMutatingParent(t *testing.T) {
	parent := New(map[string]any{"theme": "light", "lang": "en"})
	child := parent.With(map[string]any{"theme": "dark"})

	v, _ := parent.Value("theme")
	require.Equal(t, "light", v)
	v, _ = child.Value("theme")
	require.Equal(t, "dark", v)
	v, _ = child.Value("lang")
	require.Equal(t, "en", v)
}

func TestWith_SiblingsIsolated(t *testing.T) {
	parent := Empty()
	a := parent.With(map[string]any{"x": 1})
	b := parent.With(map[string]any{"y": 2})

	_, ok := a.Value("y")
	require.False(t, ok)
	_, ok = b.Value("x")
	require.False(t, ok)
	require.Equal(t, 0, parent.Len())
}

func TestNew_CopiesInput(t *testing.T) {
	src := map[string]any{"k": "v"}
	f := New(src)
	src["k"] = "changed"
	v, _ := f.Value("k")
	require.Equal(t, "v", v)
}

func TestWithData_WellKnownKeys(t *testing.T) {
	data := snapshot.NewIndexed(map[string]map[string]any{"A": {}})
	at := time.Unix(100, 0)
	f := Empty().WithData(data, "getData", at)

	require.Same(t, data, f.Data())
	require.Equal(t, "getData", f.Method())
	got, ok := f.ResolvedAt()
	require.True(t, ok)
	require.True(t, got.Equal(at))

	noStamp := Empty().WithData(data, "", time.Time{})
	_, ok = noStamp.ResolvedAt()
	require.False(t, ok)
	require.Equal(t, "", noStamp.Method())
}
