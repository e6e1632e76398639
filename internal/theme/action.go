// Package theme implements the declarative rule/action transformation
// algorithm that grafts selected fragments of a content document into a
// theme document (spec §4.2, §4.3).
package theme

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/edgecomet/themeproxy/internal/common/logger"
	"github.com/edgecomet/themeproxy/internal/dom"
	"github.com/edgecomet/themeproxy/internal/selector"
)

// ActionKind is the action variant (spec §3, §4.3).
type ActionKind int

const (
	Replace ActionKind = iota
	Append
	Prepend
	Drop
)

func (k ActionKind) String() string {
	switch k {
	case Replace:
		return "replace"
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// ResourceFetcher retrieves an alternate content document by URL (spec
// §3 "content_href"; §4.4 step 2 "resource_fetcher"). The themeing driver
// supplies an implementation backed by the proxy stack; it MAY be a
// synchronous callback into the same process.
type ResourceFetcher func(href string) (*dom.Document, error)

// Action is one DOM transformation within a Rule (spec §3).
type Action struct {
	Kind ActionKind

	Content     *selector.Selector
	Theme       *selector.Selector
	IfContent   *selector.Selector
	ContentHref string
	Move        bool

	NoContent    Policy
	NoTheme      Policy
	ManyContent  ManyPolicy
	ManyTheme    ManyPolicy
}

// compatMatrix lists the (content kind, theme kind) pairs each action
// class permits (spec §4.3 "Compatibility matrices"). Drop has no entry:
// its selectors are evaluated independently with no cross-kind
// requirement.
var compatMatrix = map[ActionKind]map[selector.Kind]map[selector.Kind]bool{
	Replace: {
		selector.KindChildren:   {selector.KindElements: true, selector.KindChildren: true},
		selector.KindElements:   {selector.KindElements: true, selector.KindChildren: true},
		selector.KindAttributes: {selector.KindAttributes: true},
		selector.KindTag:        {selector.KindTag: true},
	},
	Append: {
		selector.KindChildren:   {selector.KindElements: true, selector.KindChildren: true},
		selector.KindElements:   {selector.KindElements: true, selector.KindChildren: true},
		selector.KindAttributes: {selector.KindAttributes: true},
	},
	Prepend: {
		selector.KindChildren:   {selector.KindElements: true, selector.KindChildren: true},
		selector.KindElements:   {selector.KindElements: true, selector.KindChildren: true},
		selector.KindAttributes: {selector.KindAttributes: true},
	},
}

// ValidateCompatibility checks a (content kind, theme kind) pair against
// an action class's compatibility matrix, used at rule-compile time (spec
// §3: "violation is a compile-time RuleSyntax error").
func ValidateCompatibility(kind ActionKind, contentKind, themeKind selector.Kind) error {
	if kind == Drop {
		return nil
	}
	byContent, ok := compatMatrix[kind]
	if !ok {
		return fmt.Errorf("unknown action kind %v", kind)
	}
	themes, ok := byContent[contentKind]
	if !ok || !themes[themeKind] {
		return fmt.Errorf("%s does not permit content kind %s with theme kind %s", kind, contentKind, themeKind)
	}
	return nil
}

// Apply runs the shared front half of action application (spec §4.3) and
// dispatches to the variant-specific transformation.
func (a *Action) Apply(contentDoc, themeDoc *dom.Document, fetch ResourceFetcher, log logger.EventSink) error {
	contentRoot := contentDoc.Root

	if a.ContentHref != "" && a.Content != nil {
		fetched, err := fetch(a.ContentHref)
		if err != nil {
			log.Warn("action", "content href fetch failed, treating as no content match", "href", a.ContentHref, "error", err.Error())
			return a.handleEmpty(a.NoContent, "content", log)
		}
		contentRoot = fetched.Root
	}

	if a.IfContent != nil {
		guard := a.IfContent.Evaluate(contentRoot)
		if !a.IfContent.Matched(guard) {
			log.Debug("action", "if-content guard did not match, skipping action")
			return nil
		}
	}

	var celems []*html.Node
	var ctype selector.Kind
	if a.Content != nil {
		ctype = a.Content.Kind
		celems = a.Content.Evaluate(contentRoot)
		if len(celems) == 0 {
			return a.handleEmpty(a.NoContent, "content", log)
		}
	}

	var themeEl *html.Node
	var ttype selector.Kind
	if a.Theme != nil {
		ttype = a.Theme.Kind
		themeElems := dom.FilterMarked(a.Theme.Evaluate(themeDoc.Root))
		if len(themeElems) == 0 {
			return a.handleEmpty(a.NoTheme, "theme", log)
		}
		if len(themeElems) > 1 {
			kept, err := a.resolveMany(a.ManyTheme, "theme", themeElems, log)
			if err != nil {
				return err
			}
			themeElems = kept
		}
		themeEl = themeElems[0]
	}

	switch a.Kind {
	case Replace:
		return a.applyReplace(ctype, ttype, celems, themeEl, log)
	case Append:
		return a.applyAppend(ctype, ttype, celems, themeEl, log)
	case Prepend:
		return a.applyPrepend(ctype, ttype, celems, themeEl, log)
	case Drop:
		return a.applyDrop(celems, themeEl, log)
	default:
		return fmt.Errorf("unknown action kind %v", a.Kind)
	}
}

func (a *Action) handleEmpty(p Policy, label string, log logger.EventSink) error {
	switch p {
	case PolicyAbort:
		return &AbortTheme{Reason: fmt.Sprintf("no %s match", label)}
	case PolicyWarn:
		log.Warn("action", fmt.Sprintf("no %s match", label))
	default:
		log.Debug("action", fmt.Sprintf("no %s match", label))
	}
	return nil
}

func (a *Action) resolveMany(mp ManyPolicy, label string, elems []*html.Node, log logger.EventSink) ([]*html.Node, error) {
	switch mp.Policy {
	case PolicyAbort:
		return nil, &AbortTheme{Reason: fmt.Sprintf("multiple %s matches and policy is abort", label)}
	case PolicyWarn:
		log.Warn("action", fmt.Sprintf("multiple %s matches, keeping %s", label, mp.Fallback))
	default:
		log.Debug("action", fmt.Sprintf("multiple %s matches, keeping %s", label, mp.Fallback))
	}
	if mp.Fallback == FallbackLast {
		return elems[len(elems)-1:], nil
	}
	return elems[:1], nil
}

func (a *Action) resolveSingleContent(celems []*html.Node, log logger.EventSink) (*html.Node, error) {
	elems := celems
	if len(elems) > 1 {
		kept, err := a.resolveMany(a.ManyContent, "content", elems, log)
		if err != nil {
			return nil, err
		}
		elems = kept
	}
	return elems[0], nil
}

func (a *Action) collectContent(ctype selector.Kind, celems []*html.Node) ([]*html.Node, error) {
	switch ctype {
	case selector.KindElements:
		return dom.CollectContentElements(celems, a.Move), nil
	case selector.KindChildren:
		return dom.CollectContentChildren(celems, a.Move), nil
	default:
		return nil, &SelectionError{Selector: a.Content.Raw, Reason: "content selector kind incompatible with theme kind"}
	}
}

func (a *Action) applyReplace(ctype, ttype selector.Kind, celems []*html.Node, themeEl *html.Node, log logger.EventSink) error {
	switch ttype {
	case selector.KindChildren:
		nodes, err := a.collectContent(ctype, celems)
		if err != nil {
			return err
		}
		dom.ClearChildren(themeEl)
		dom.AppendChildren(themeEl, nodes)
		dom.MarkAll(nodes)

	case selector.KindElements:
		nodes, err := a.collectContent(ctype, celems)
		if err != nil {
			return err
		}
		dom.ReplaceInParent(themeEl, nodes)
		dom.MarkAll(nodes)

	case selector.KindAttributes:
		src, err := a.resolveSingleContent(celems, log)
		if err != nil {
			return err
		}
		for _, name := range selector.ResolvedAttrNames(a.Content, src) {
			if v, ok := dom.Attr(src, name); ok {
				dom.SetAttr(themeEl, name, v)
				if a.Move {
					dom.DeleteAttr(src, name)
				}
			} else {
				dom.DeleteAttr(themeEl, name)
			}
		}

	case selector.KindTag:
		src, err := a.resolveSingleContent(celems, log)
		if err != nil {
			return err
		}
		themeEl.Data = src.Data
		themeEl.DataAtom = src.DataAtom
		themeEl.Attr = append([]html.Attribute(nil), src.Attr...)

	default:
		return &SelectionError{Selector: a.Theme.Raw, Reason: "unsupported theme kind for replace"}
	}
	return nil
}

func (a *Action) applyAppend(ctype, ttype selector.Kind, celems []*html.Node, themeEl *html.Node, log logger.EventSink) error {
	switch ttype {
	case selector.KindChildren:
		nodes, err := a.collectContent(ctype, celems)
		if err != nil {
			return err
		}
		dom.AppendChildren(themeEl, nodes)
		dom.MarkAll(nodes)

	case selector.KindElements:
		nodes, err := a.collectContent(ctype, celems)
		if err != nil {
			return err
		}
		dom.InsertAfter(themeEl, nodes)
		dom.MarkAll(nodes)

	case selector.KindAttributes:
		src, err := a.resolveSingleContent(celems, log)
		if err != nil {
			return err
		}
		for _, name := range selector.ResolvedAttrNames(a.Content, src) {
			if dom.HasAttr(themeEl, name) {
				continue
			}
			if v, ok := dom.Attr(src, name); ok {
				dom.SetAttr(themeEl, name, v)
				if a.Move {
					dom.DeleteAttr(src, name)
				}
			}
		}

	default:
		return &SelectionError{Selector: a.Theme.Raw, Reason: "unsupported theme kind for append"}
	}
	return nil
}

func (a *Action) applyPrepend(ctype, ttype selector.Kind, celems []*html.Node, themeEl *html.Node, log logger.EventSink) error {
	switch ttype {
	case selector.KindChildren:
		nodes, err := a.collectContent(ctype, celems)
		if err != nil {
			return err
		}
		dom.PrependChildren(themeEl, nodes)
		dom.MarkAll(nodes)

	case selector.KindElements:
		nodes, err := a.collectContent(ctype, celems)
		if err != nil {
			return err
		}
		dom.InsertBeforeNode(themeEl, nodes)
		dom.MarkAll(nodes)

	case selector.KindAttributes:
		src, err := a.resolveSingleContent(celems, log)
		if err != nil {
			return err
		}
		for _, name := range selector.ResolvedAttrNames(a.Content, src) {
			if v, ok := dom.Attr(src, name); ok {
				dom.SetAttr(themeEl, name, v)
				if a.Move {
					dom.DeleteAttr(src, name)
				}
			}
		}

	default:
		return &SelectionError{Selector: a.Theme.Raw, Reason: "unsupported theme kind for prepend"}
	}
	return nil
}

func (a *Action) applyDrop(celems []*html.Node, themeEl *html.Node, log logger.EventSink) error {
	if a.Content != nil {
		dropSide(a.Content, celems)
	}
	if a.Theme != nil && themeEl != nil {
		dropSide(a.Theme, []*html.Node{themeEl})
	}
	return nil
}

// dropSide implements the deletion for one side of a Drop action,
// independent of the other (spec §4.3.3).
func dropSide(sel *selector.Selector, elems []*html.Node) {
	switch sel.Kind {
	case selector.KindElements:
		dom.DetachAll(elems)
	case selector.KindChildren:
		for _, e := range elems {
			dom.ClearChildren(e)
		}
	case selector.KindAttributes:
		for _, e := range elems {
			for _, name := range selector.ResolvedAttrNames(sel, e) {
				dom.DeleteAttr(e, name)
			}
		}
	case selector.KindTag:
		// Unwrap: the children take the element's place, between its
		// leading text and its tail.
		for _, e := range elems {
			parent := e.Parent
			if parent == nil {
				continue
			}
			for _, c := range dom.ChildNodes(e) {
				e.RemoveChild(c)
				parent.InsertBefore(c, e)
			}
			parent.RemoveChild(e)
		}
	}
}
