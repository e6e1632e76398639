package proxy

import "errors"

// ErrAbortProxy is the "next" sentinel (spec §4.5 step 4, grounded on
// proxy.py's AbortProxy): a dest resolves to "fall through to the next
// route in the set" rather than to an actual backend. Request
// modifications already applied before the abort are not undone, matching
// the original's behavior of mutating the single in-flight request object
// as it walks the route list.
var ErrAbortProxy = errors.New("proxy: fall through to next route")
