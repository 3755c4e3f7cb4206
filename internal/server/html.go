package server

import (
	"fmt"
	"io"
	"sort"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	payload "github.com/hanpama/compdata/internal/payload"
	snapshot "github.com/hanpama/compdata/internal/snapshot"
	tree "github.com/hanpama/compdata/internal/tree"
)

// RootElementID is the id of the element holding the rendered tree.
const RootElementID = "root"

// renderDocument writes a complete HTML document: the expanded tree inside
// the root element, followed by the payload script.
func renderDocument(w io.Writer, title string, body *tree.Node, snap *snapshot.Snapshot) error {
	data, err := payload.Encode(snap)
	if err != nil {
		return err
	}

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	root := element(atom.Html)
	doc.AppendChild(root)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, html.Attribute{Key: "charset", Val: "utf-8"}))
	if title != "" {
		t := element(atom.Title)
		t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
		head.AppendChild(t)
	}
	root.AppendChild(head)

	bodyEl := element(atom.Body)
	mount := element(atom.Div, html.Attribute{Key: "id", Val: RootElementID})
	appendFlat(mount, toHTML(body))
	bodyEl.AppendChild(mount)

	script := element(atom.Script,
		html.Attribute{Key: "id", Val: payload.ElementID},
		html.Attribute{Key: "type", Val: "application/json"})
	// Script content is raw text; payload.Encode already escaped it.
	script.AppendChild(&html.Node{Type: html.TextNode, Data: data})
	bodyEl.AppendChild(script)
	root.AppendChild(bodyEl)

	return html.Render(w, doc)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

// toHTML converts an expanded tree. Nodes that are not elements contribute
// only their children, grouped under a document fragment.
func toHTML(n *tree.Node) *html.Node {
	if n == nil {
		return nil
	}
	tag, isElement := n.Type.(tree.Element)
	if isElement && tag == tree.TextTag {
		return &html.Node{Type: html.TextNode, Data: fmt.Sprint(n.Props["text"])}
	}

	var out *html.Node
	if isElement {
		out = &html.Node{Type: html.ElementNode, Data: string(tag), DataAtom: atom.Lookup([]byte(tag)), Attr: attributes(n.Props)}
	} else {
		out = &html.Node{Type: html.DocumentNode}
	}
	for _, c := range n.Children {
		appendFlat(out, toHTML(c))
	}
	return out
}

// appendFlat appends child to parent, splicing in the children of fragments.
func appendFlat(parent, child *html.Node) {
	if child == nil {
		return
	}
	if child.Type != html.DocumentNode {
		parent.AppendChild(child)
		return
	}
	for gc := child.FirstChild; gc != nil; {
		next := gc.NextSibling
		child.RemoveChild(gc)
		parent.AppendChild(gc)
		gc = next
	}
}

// attributes renders scalar props as attributes in key order. Children, text
// and non-scalar values are skipped; true booleans become empty attributes.
func attributes(p tree.Props) []html.Attribute {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []html.Attribute
	for _, k := range keys {
		if k == tree.ChildrenProp || k == "text" {
			continue
		}
		switch v := p[k].(type) {
		case string:
			out = append(out, html.Attribute{Key: k, Val: v})
		case bool:
			if v {
				out = append(out, html.Attribute{Key: k})
			}
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			out = append(out, html.Attribute{Key: k, Val: fmt.Sprint(v)})
		}
	}
	return out
}
