package dom

import "golang.org/x/net/html"

// Mark plants the content-origin marker on n and every element in its
// subtree (spec §4.3 step 7: "Mark all celems (and their descendants)").
func Mark(n *html.Node) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode {
		SetAttr(n, MarkerAttr, "1")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Mark(c)
	}
}

// MarkAll marks every node in nodes and its descendants.
func MarkAll(nodes []*html.Node) {
	for _, n := range nodes {
		Mark(n)
	}
}

// IsMarked reports whether n (an element) carries the content-origin marker.
func IsMarked(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && HasAttr(n, MarkerAttr)
}

// AncestorMarked reports whether n or any ancestor of n carries the marker,
// used to exclude previously-moved subtrees from theme selector evaluation
// (spec §4.3 step 4: "rules never see previously-moved nodes"). Lookups
// walk the ancestor chain, which stays O(depth) as the design notes require.
func AncestorMarked(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if IsMarked(cur) {
			return true
		}
	}
	return false
}

// StripMarkers removes the content-origin marker from every element in the
// tree rooted at root. Called once after a RuleSet finishes applying all
// rules, before the theme is serialized (spec §3 invariant, §4.2).
func StripMarkers(root *html.Node) {
	if root == nil {
		return
	}
	if root.Type == html.ElementNode {
		DeleteAttr(root, MarkerAttr)
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		StripMarkers(c)
	}
}

// FilterMarked returns the subset of nodes that do NOT descend from a
// marked element.
func FilterMarked(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if !AncestorMarked(n) {
			out = append(out, n)
		}
	}
	return out
}
