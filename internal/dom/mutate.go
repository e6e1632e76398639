package dom

import "golang.org/x/net/html"

// ChildNodes returns a snapshot slice of n's children (text and element
// nodes interleaved, in document order). Snapshotting first is required
// because the functions below mutate sibling pointers while iterating.
func ChildNodes(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Detach removes n from its parent, relocating n's own trailing tail text
// (the TextNode, if any, that followed n) onto n's former previous
// sibling, or onto the parent's leading text if n was the first child.
// This is the "tail preservation on move" discipline of spec §4.3.1 /
// §4.3 step on elements-kind replace: removing an element must not lose or
// duplicate the whitespace that surrounded it.
func Detach(n *html.Node) *html.Node {
	parent := n.Parent
	if parent == nil {
		return n
	}

	if tail := n.NextSibling; tail != nil && tail.Type == html.TextNode {
		prev := n.PrevSibling
		parent.RemoveChild(tail)
		if prev != nil && prev.Type == html.TextNode {
			prev.Data += tail.Data
		} else {
			merged := &html.Node{Type: html.TextNode, Data: tail.Data}
			parent.InsertBefore(merged, n)
		}
	}

	parent.RemoveChild(n)
	return n
}

// DetachAll detaches each node in nodes (in order) via Detach, returning
// them.
func DetachAll(nodes []*html.Node) []*html.Node {
	for _, n := range nodes {
		Detach(n)
	}
	return nodes
}

// ReplaceInParent removes old from its parent (relocating old's own tail
// per Detach) and inserts newNodes in its place, preserving order. Used for
// theme-kind=elements Replace (spec §4.3.1).
func ReplaceInParent(old *html.Node, newNodes []*html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}

	anchor := old.NextSibling
	if anchor != nil && anchor.Type == html.TextNode {
		anchor = anchor.NextSibling
	}

	Detach(old)

	for _, n := range newNodes {
		parent.InsertBefore(n, anchor)
	}
}

// InsertAfter splices newNodes as siblings immediately following ref,
// without touching ref itself. Used for theme-kind=elements Append.
func InsertAfter(ref *html.Node, newNodes []*html.Node) {
	parent := ref.Parent
	if parent == nil {
		return
	}
	anchor := ref.NextSibling
	for _, n := range newNodes {
		parent.InsertBefore(n, anchor)
	}
}

// InsertBeforeNode splices newNodes as siblings immediately preceding ref,
// without touching ref itself. Used for theme-kind=elements Prepend.
func InsertBeforeNode(ref *html.Node, newNodes []*html.Node) {
	parent := ref.Parent
	if parent == nil {
		return
	}
	for _, n := range newNodes {
		parent.InsertBefore(n, ref)
	}
}

// ClearChildren detaches and discards all children of n (used before a
// theme-kind=children Replace empties the element, spec §4.3.1).
func ClearChildren(n *html.Node) {
	for _, c := range ChildNodes(n) {
		n.RemoveChild(c)
	}
}

// AppendChildren appends newNodes to the end of n's existing children.
func AppendChildren(n *html.Node, newNodes []*html.Node) {
	for _, c := range newNodes {
		n.AppendChild(c)
	}
}

// PrependChildren inserts newNodes at the start of n's existing children,
// preserving their relative order.
func PrependChildren(n *html.Node, newNodes []*html.Node) {
	first := n.FirstChild
	for _, c := range newNodes {
		n.InsertBefore(c, first)
	}
}

// CollectContentChildren gathers the child-node sequence (text and element
// nodes interleaved) of each element in elems, concatenated in order. When
// move is true the children are detached from their original parent;
// otherwise each is deep-cloned. This implements the content-kind=children
// side of §4.3.1/§4.3.2: because x/net/html represents "text" as a sibling
// TextNode rather than a separate field, concatenating each element's full
// child list already reproduces the spec's described text/tail stitching
// (the first element's leading text, interior element children, and any
// trailing text all fall out of the child list itself).
func CollectContentChildren(elems []*html.Node, move bool) []*html.Node {
	var out []*html.Node
	for _, ce := range elems {
		for _, k := range ChildNodes(ce) {
			if move {
				ce.RemoveChild(k)
			} else {
				k = CloneNode(k)
			}
			out = append(out, k)
		}
	}
	return out
}

// CollectContentElements detaches (or clones) each element in elems,
// preserving tail relocation on move. This is the content-kind=elements
// side of §4.3.1/§4.3.2.
func CollectContentElements(elems []*html.Node, move bool) []*html.Node {
	out := make([]*html.Node, 0, len(elems))
	for _, ce := range elems {
		if move {
			out = append(out, Detach(ce))
		} else {
			out = append(out, CloneNode(ce))
		}
	}
	return out
}
