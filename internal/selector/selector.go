// Package selector implements the CSS-like expression sub-language used to
// address pieces of a themeing content/theme document (spec §4.1). A
// Selector compiles once at configuration load and evaluates repeatedly,
// cheaply, against many request-scoped documents.
//
// No selector-matching library in the retrieved corpus models this
// language's three kind-forcing prefixes (children:, attributes(...):,
// tag:) on top of ordinary CSS combinators, so the matcher below is
// hand-rolled; see pkg/pattern for the sibling precedent of a small,
// hand-rolled, pre-compiled text matcher in this codebase.
package selector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/edgecomet/themeproxy/internal/dom"
)

// Kind is the selection kind a Selector yields (spec §3).
type Kind int

const (
	KindElements Kind = iota
	KindChildren
	KindAttributes
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindElements:
		return "elements"
	case KindChildren:
		return "children"
	case KindAttributes:
		return "attributes"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

// SyntaxError reports a malformed selector expression, file/line attached
// by the configuration loader that owns the surrounding XML element.
type SyntaxError struct {
	Expr    string
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("selector syntax error in %q: %s", e.Expr, e.Message)
}

// Selector is a compiled expression. It is immutable and safe for
// concurrent use once parsed.
type Selector struct {
	Raw       string
	Kind      Kind
	AttrNames []string // only meaningful when Kind == KindAttributes; empty means "all"
	Inverted  bool      // set by a leading "!", consumed by if-content guards

	chain compoundChains
}

// SelectorTypes returns the set of kinds this selector may yield. This
// implementation's kind-forcing prefixes make every selector monomorphic,
// but the method is kept plural to match the spec's documented contract
// (a future prefix-less polymorphic form could return more than one).
func (s *Selector) SelectorTypes() []Kind {
	return []Kind{s.Kind}
}

// Parse compiles a selector expression. The grammar is a CSS-like
// combinator language (tag, #id, .class, [attr], [attr=value],
// [attr~=value], [attr*=value], [attr^=value], [attr$=value], descendant
// and direct-child combinators, comma-separated groups), with three
// optional kind-forcing prefixes and an optional leading "!" for
// inversion:
//
//	!children:EXPR                  -- operate on matched elements' children
//	attributes(name, name):EXPR     -- operate on named attributes
//	attributes:EXPR                 -- operate on all attributes
//	tag:EXPR                        -- operate on the element's tag name
//
// With no prefix, Kind is KindElements.
func Parse(text string) (*Selector, error) {
	raw := text
	rest := strings.TrimSpace(text)
	if rest == "" {
		return nil, &SyntaxError{Expr: raw, Message: "empty selector"}
	}

	inverted := false
	if strings.HasPrefix(rest, "!") {
		inverted = true
		rest = strings.TrimSpace(rest[1:])
	}

	kind := KindElements
	var attrNames []string

	switch {
	case strings.HasPrefix(rest, "children:"):
		kind = KindChildren
		rest = rest[len("children:"):]
	case strings.HasPrefix(rest, "attributes("):
		kind = KindAttributes
		end := strings.Index(rest, "):")
		if end == -1 {
			return nil, &SyntaxError{Expr: raw, Message: "unterminated attributes(...) prefix"}
		}
		names := rest[len("attributes("):end]
		for _, nm := range strings.Split(names, ",") {
			nm = strings.TrimSpace(nm)
			if nm != "" {
				attrNames = append(attrNames, nm)
			}
		}
		rest = rest[end+len("):"):]
	case strings.HasPrefix(rest, "attributes:"):
		kind = KindAttributes
		rest = rest[len("attributes:"):]
	case strings.HasPrefix(rest, "tag:"):
		kind = KindTag
		rest = rest[len("tag:"):]
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, &SyntaxError{Expr: raw, Message: "selector expression missing after kind prefix"}
	}

	chain, err := parseGroups(rest)
	if err != nil {
		return nil, &SyntaxError{Expr: raw, Message: err.Error()}
	}

	return &Selector{
		Raw:       raw,
		Kind:      kind,
		AttrNames: attrNames,
		Inverted:  inverted,
		chain:     chain,
	}, nil
}

// Evaluate applies the selector to a document and returns the matched
// elements in document order; for KindAttributes, ResolvedAttrNames gives
// the attribute-name set per element. Exclusion of content-origin-marked nodes
// (spec §4.3 step 4: "rules never see previously-moved nodes") is the
// caller's responsibility via dom.FilterMarked, since that exclusion
// applies only to theme-selector evaluation, not content-selector
// evaluation.
func (s *Selector) Evaluate(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && s.chain.matches(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Matched applies the Inverted flag to a raw match result (spec §4.1:
// "Inversion... negates whether the result is considered a match without
// changing the returned tuple"). The underlying match test is kind-specific,
// grounded on rules.py's if_content_matches: an elements/tag selector is
// satisfied by mere presence, but children: and attributes: selectors guard
// against an element that matched but is itself empty.
func (s *Selector) Matched(elements []*html.Node) bool {
	var matched bool
	switch s.Kind {
	case KindChildren:
		for _, el := range elements {
			if hasTextOrElementChildren(el) {
				matched = true
				break
			}
		}
	case KindAttributes:
		for _, el := range elements {
			if hasNamedOrAnyAttribute(s, el) {
				matched = true
				break
			}
		}
	default:
		matched = len(elements) > 0
	}
	if s.Inverted {
		return !matched
	}
	return matched
}

// hasTextOrElementChildren mirrors rules.py's "el.text or len(el)": an
// element counts as non-empty content if it has a child element or any
// non-empty text immediately inside it.
func hasTextOrElementChildren(el *html.Node) bool {
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
		if c.Type == html.TextNode && c.Data != "" {
			return true
		}
	}
	return false
}

// hasNamedOrAnyAttribute mirrors rules.py's if_content_matches attributes
// branch: with named attributes, any one of them being present is enough;
// with no names given ("attributes:" matching all), any attribute besides
// the internal move marker counts.
func hasNamedOrAnyAttribute(s *Selector, el *html.Node) bool {
	if len(s.AttrNames) > 0 {
		for _, name := range s.AttrNames {
			for _, a := range el.Attr {
				if a.Key == name {
					return true
				}
			}
		}
		return false
	}
	for _, a := range el.Attr {
		if a.Key == dom.MarkerAttr {
			continue
		}
		return true
	}
	return false
}

// ResolvedAttrNames returns attrNames for a matched element, honoring the
// "empty means all" rule for attribute-kind selectors.
func ResolvedAttrNames(s *Selector, n *html.Node) []string {
	if len(s.AttrNames) > 0 {
		return s.AttrNames
	}
	names := make([]string, 0, len(n.Attr))
	for _, a := range n.Attr {
		if a.Key == dom.MarkerAttr {
			continue
		}
		names = append(names, a.Key)
	}
	return names
}
