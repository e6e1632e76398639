package theme

import "fmt"

// AbortTheme unwinds a RuleSet.Apply back to the unmodified theme document
// (spec §4.3 step 3, §7: raised by an action with abort policy, caught by
// the RuleSet driver).
type AbortTheme struct {
	Reason string
}

func (e *AbortTheme) Error() string {
	return fmt.Sprintf("theme aborted: %s", e.Reason)
}

// SelectionError reports that a selector compiled fine but its runtime
// evaluation produced a result impossible for its declared kind (spec §7).
// It is always handled by logging a warning and skipping the offending
// action; it never propagates out of RuleSet.Apply.
type SelectionError struct {
	Selector string
	Reason   string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selection error for %q: %s", e.Selector, e.Reason)
}

// Policy is one of the three error-handling dispositions an action can
// declare for nocontent/notheme/manycontent/manytheme (spec §3, §6).
type Policy string

const (
	PolicyIgnore Policy = "ignore"
	PolicyWarn   Policy = "warn"
	PolicyAbort  Policy = "abort"
)

// Fallback picks which of multiple matched elements survives when a
// manycontent/manytheme policy doesn't abort (spec §4.3 step 5).
type Fallback string

const (
	FallbackFirst Fallback = "first"
	FallbackLast  Fallback = "last"
)

// ManyPolicy bundles a Policy with its fallback selection, defaulting to
// warn:first per spec §6.
type ManyPolicy struct {
	Policy   Policy
	Fallback Fallback
}

// DefaultManyPolicy is the documented default for manycontent/manytheme.
func DefaultManyPolicy() ManyPolicy {
	return ManyPolicy{Policy: PolicyWarn, Fallback: FallbackFirst}
}
