// Package dom wraps golang.org/x/net/html with the node utilities the
// themeing engine needs: tag/attribute lookup, text extraction, subtree
// moves and clones that preserve surrounding whitespace, and management of
// the content-origin marker attribute planted on nodes grafted from content
// into theme (spec §3, §4.3).
//
// x/net/html already represents a "tail" (the text following an element's
// end tag, before its next sibling's start tag) as a *html.Node of type
// html.TextNode positioned as that element's NextSibling. Preserving
// text/tail semantics across a move therefore reduces to preserving which
// TextNode sits where in the sibling chain -- there is no separate field to
// carry, unlike a DOM built on ElementTree's tail strings.
package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// MarkerAttr is the reserved attribute planted on every element moved or
// copied from content into theme, so subsequent theme selector evaluation
// can exclude it (spec §3 "Content-origin marker", §4.3 step 4).
const MarkerAttr = "x-a-marker-attribute-for-deliverance"

// Document is a parsed HTML tree owned by a single request.
type Document struct {
	Root *html.Node
}

// Parse parses HTML bytes into a Document.
func Parse(htmlBytes []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return nil, err
	}
	return &Document{Root: root}, nil
}

// Bytes serializes the document back to HTML.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.Root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clone deep-copies the whole document tree, used to preserve the
// pre-apply content document when an action runs with move=false (spec §8
// property 3) or to snapshot a theme before a RuleSet application that may
// AbortTheme.
func (d *Document) Clone() *Document {
	return &Document{Root: CloneNode(d.Root)}
}

// CloneNode deep-copies a single node (and its subtree), detached from any
// parent/sibling.
func CloneNode(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		childClone := CloneNode(c)
		clone.AppendChild(childClone)
	}
	return clone
}

// Attr returns the value of attribute name on n (case-insensitive), and
// whether it was present.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	lname := strings.ToLower(name)
	for _, a := range n.Attr {
		if strings.ToLower(a.Key) == lname {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets (overwriting if present) an attribute on n.
func SetAttr(n *html.Node, name, value string) {
	lname := strings.ToLower(name)
	for i, a := range n.Attr {
		if strings.ToLower(a.Key) == lname {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// DeleteAttr removes an attribute by name, if present.
func DeleteAttr(n *html.Node, name string) {
	lname := strings.ToLower(name)
	for i, a := range n.Attr {
		if strings.ToLower(a.Key) == lname {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// HasAttr reports whether n carries attribute name.
func HasAttr(n *html.Node, name string) bool {
	_, ok := Attr(n, name)
	return ok
}

// TextContent recursively concatenates the text of n and its descendants.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// IsElement reports whether n is an element with the given tag name
// (case-insensitive).
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && strings.EqualFold(n.Data, tag)
}

// FindAll returns every descendant element of root with the given tag name,
// in document order.
func FindAll(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if IsElement(n, tag) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// Index returns n's position among its parent's children, or -1 if n has
// no parent.
func Index(n *html.Node) int {
	if n == nil || n.Parent == nil {
		return -1
	}
	i := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c == n {
			return i
		}
		i++
	}
	return -1
}
