package payload

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	snapshot "github.com/hanpama/compdata/internal/snapshot"
)

func fooBar() *snapshot.Snapshot {
	return snapshot.NewIndexed(map[string]map[string]any{
		"Foo": {"a": "x"},
		"Bar": {"b": float64(2)},
	})
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	raw, err := Encode(fooBar())
	require.NoError(t, err)
	require.Contains(t, raw, `"_resolverComponents"`)

	got, err := Decode(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(fooBar().Components(), got.Components()); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestSafeStringify_Escapes(t *testing.T) {
	snap := snapshot.NewIndexed(map[string]map[string]any{
		"Foo": {"html": "</script><script>alert(1)</SCRIPT><!-- x -->"},
	})
	raw, err := Encode(snap)
	require.NoError(t, err)
	require.NotContains(t, strings.ToLower(raw), "</script")
	require.NotContains(t, raw, "<!--")
	require.Contains(t, raw, `<\/script`)
	require.Contains(t, raw, `<\!--`)

	got, err := Decode(raw)
	require.NoError(t, err)
	props, ok := got.Lookup("Foo")
	require.True(t, ok)
	require.Equal(t, "</script><script>alert(1)</SCRIPT><!-- x -->", props["html"])
}

func TestEncode_EscapeForm(t *testing.T) {
	snap := snapshot.NewIndexed(map[string]map[string]any{"Foo": {"h": "</script><!--&"}})
	raw, err := Encode(snap)
	require.NoError(t, err)
	require.Equal(t, `{"_resolverComponents":{"Foo":{"h":"<\/script><\!--&"}}}`, raw)
}

func TestDecode_Empty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		got, err := Decode(raw)
		require.NoError(t, err)
		require.Nil(t, got)
	}
	_, err := Decode("{nope")
	require.Error(t, err)
}

func TestStore_ConsumeOnce(t *testing.T) {
	raw, err := Encode(fooBar())
	require.NoError(t, err)
	s := NewStore(raw)
	require.True(t, s.Present())

	got, ok, err := s.Consume(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, got.Len())
	require.False(t, s.Present())

	got, ok, err = s.Consume(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
}

func TestStore_ConcurrentConsumers(t *testing.T) {
	raw, err := Encode(fooBar())
	require.NoError(t, err)
	s := NewStore(raw)

	var hits atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := s.Consume(context.Background()); ok {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), hits.Load())
}

func TestStore_BadPayloadIsConsumed(t *testing.T) {
	s := NewStore("{nope")
	_, ok, err := s.Consume(context.Background())
	require.True(t, ok)
	require.Error(t, err)
	_, ok, err = s.Consume(context.Background())
	require.False(t, ok)
	require.NoError(t, err)
}

func TestExtract_RemovesElement(t *testing.T) {
	tag, err := ScriptTag(fooBar())
	require.NoError(t, err)
	src := `<!DOCTYPE html><html><head></head><body><div id="root">hi</div>` + tag + `</body></html>`

	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	s := Extract(doc)
	require.True(t, s.Present())

	var out bytes.Buffer
	require.NoError(t, html.Render(&out, doc))
	require.NotContains(t, out.String(), ElementID)
	require.Contains(t, out.String(), `<div id="root">hi</div>`)

	got, ok, err := s.Consume(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	_, found := got.Lookup("Bar")
	require.True(t, found)
}

func TestNewStoreFromHTML_NoPayload(t *testing.T) {
	s, err := NewStoreFromHTML(strings.NewReader(`<html><body><p>plain</p></body></html>`))
	require.NoError(t, err)
	require.False(t, s.Present())
	_, ok, err := s.Consume(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
