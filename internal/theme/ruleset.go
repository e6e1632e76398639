package theme

import (
	"github.com/edgecomet/themeproxy/internal/common/logger"
	"github.com/edgecomet/themeproxy/internal/dom"
)

// Rule is a set of actions gated by class membership (spec §3).
type Rule struct {
	Classes          map[string]bool
	Actions          []*Action
	ThemeHref        string // overrides the RuleSet's default theme URL; empty means no override
	SuppressStandard bool
}

// Active reports whether this rule applies given the request's active
// classes (spec §3: "classes defaults to {default}... applies only when
// one of its classes is active").
func (r *Rule) Active(activeClasses map[string]bool) bool {
	for c := range r.Classes {
		if activeClasses[c] {
			return true
		}
	}
	return false
}

// RuleSet is an ordered collection of rules plus a resolved default theme
// URL (spec §3).
type RuleSet struct {
	Rules        []*Rule
	DefaultTheme string
}

// ResolveThemeURL walks the rules in order looking for a ThemeHref
// override. Per spec §4.2, only the first rule that sets one wins;
// subsequent attempts are a runtime warning, not an error.
func (rs *RuleSet) ResolveThemeURL(activeClasses map[string]bool, log logger.EventSink) string {
	resolved := rs.DefaultTheme
	set := false
	for _, r := range rs.Rules {
		if !r.Active(activeClasses) || r.ThemeHref == "" {
			continue
		}
		if set {
			log.Warn("ruleset", "multiple active rules set a theme override; first one wins", "ignored_href", r.ThemeHref)
			continue
		}
		resolved = r.ThemeHref
		set = true
	}
	return resolved
}

// Apply executes every active rule's actions in declaration order against
// contentDoc and themeDoc, then strips content-origin markers from the
// result (spec §4.2). If any action raises AbortTheme, Apply returns the
// original, unmutated theme document and logs a warning; it does not
// return an error, since the client must still receive a response (spec
// §7 "Propagation policy"). A SelectionError from an action is logged as
// a warning and that action alone is skipped; the rule set keeps running.
func (rs *RuleSet) Apply(contentDoc, themeDoc *dom.Document, fetch ResourceFetcher, log logger.EventSink, activeClasses map[string]bool) (*dom.Document, error) {
	original := themeDoc.Clone()

	for _, r := range rs.Rules {
		if !r.Active(activeClasses) {
			continue
		}
		for _, act := range r.Actions {
			err := act.Apply(contentDoc, themeDoc, fetch, log)
			if err == nil {
				continue
			}
			switch e := err.(type) {
			case *AbortTheme:
				log.Warn("ruleset", "theme aborted, reverting to original theme", "reason", e.Reason)
				return original, nil
			case *SelectionError:
				log.Warn("ruleset", "selection error, skipping action", "selector", e.Selector, "reason", e.Reason)
			default:
				return nil, err
			}
		}
	}

	dom.StripMarkers(themeDoc.Root)
	return themeDoc, nil
}
