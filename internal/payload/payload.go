// Package payload carries a resolved snapshot from the server-rendered
// document to the client. The server embeds the snapshot as JSON inside a
// script element; the client reads it back exactly once.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	snapshot "github.com/hanpama/compdata/internal/snapshot"
)

// ElementID is the id of the script element holding the payload.
const ElementID = "COMPONENT_DATA_PAYLOAD"

var (
	closeScript = regexp.MustCompile(`(?i)</(script)`)
	openComment = strings.NewReplacer("<!--", `<\!--`)
	// `<\/` is a valid JSON escape; `<\!` is not and must be undone.
	undoComment = strings.NewReplacer(`<\!--`, "<!--")
)

// SafeStringify serializes v as JSON that can be placed verbatim inside a
// script element: closing script tags and comment openers are escaped.
func SafeStringify(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", errors.Wrap(err, "payload: encode")
	}
	s := strings.TrimSuffix(buf.String(), "\n")
	s = closeScript.ReplaceAllString(s, `<\/$1`)
	return openComment.Replace(s), nil
}

// Encode serializes snap for embedding. A nil snapshot encodes as null.
func Encode(snap *snapshot.Snapshot) (string, error) {
	if snap == nil {
		return "null", nil
	}
	return SafeStringify(snap)
}

// ScriptTag renders the script element carrying snap.
func ScriptTag(snap *snapshot.Snapshot) (string, error) {
	body, err := Encode(snap)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`<script id="%s" type="application/json">%s</script>`, html.EscapeString(ElementID), body), nil
}

// Decode parses text produced by Encode. Empty text and null decode to a nil
// snapshot.
func Decode(raw string) (*snapshot.Snapshot, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal([]byte(undoComment.Replace(raw)), &snap); err != nil {
		return nil, errors.Wrap(err, "payload: decode")
	}
	return &snap, nil
}
