package payload

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	events "github.com/hanpama/compdata/internal/events"
	logging "github.com/hanpama/compdata/internal/logging"
	snapshot "github.com/hanpama/compdata/internal/snapshot"
)

// Store holds the embedded payload of one document. The payload can be
// consumed once; later reads see no payload.
type Store struct {
	mu       sync.Mutex
	raw      string
	present  bool
	consumed bool
}

// NewStore returns a store holding raw, the text content of the payload
// element.
func NewStore(raw string) *Store { return &Store{raw: raw, present: true} }

// Empty returns a store for a document without a payload.
func Empty() *Store { return &Store{} }

// NewStoreFromHTML parses an HTML document and extracts its payload.
func NewStoreFromHTML(r io.Reader) (*Store, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "payload: parse document")
	}
	return Extract(doc), nil
}

// Extract finds the payload element in doc, removes it from the document and
// returns a store holding its content. A document without the element yields
// an empty store.
func Extract(doc *html.Node) *Store {
	el := findByID(doc, ElementID)
	if el == nil {
		return Empty()
	}
	var sb strings.Builder
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	if el.Parent != nil {
		el.Parent.RemoveChild(el)
	}
	return NewStore(sb.String())
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// Present reports whether an unconsumed payload remains.
func (s *Store) Present() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present && !s.consumed
}

// Consume decodes and releases the payload. Only the first call observes it;
// every later call, and every call on an empty store, reports false. A
// payload that fails to decode is still consumed.
func (s *Store) Consume(ctx context.Context) (*snapshot.Snapshot, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	s.mu.Lock()
	if !s.present || s.consumed {
		s.mu.Unlock()
		return nil, false, nil
	}
	s.consumed = true
	raw := s.raw
	s.raw = ""
	s.mu.Unlock()

	snap, err := Decode(raw)
	eventbus.Publish(ctx, events.PayloadConsumed{Bytes: len(raw), Err: err})
	if err != nil {
		logging.New("payload").WithError(err).Warn("embedded payload discarded")
		return nil, true, err
	}
	return snap, true, nil
}
