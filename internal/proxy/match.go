package proxy

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/common/logger"
	"github.com/edgecomet/themeproxy/internal/common/urlutil"
	"github.com/edgecomet/themeproxy/internal/pyref"
	"github.com/edgecomet/themeproxy/pkg/pattern"
)

// Predicate is a single route match test (spec §4.5 step 1, grounded on
// proxy.py's ProxyMatch/AbstractMatch hierarchy: PathMatch, DomainMatch,
// HeaderMatch, and a pyref-backed predicate). A Route's overall match is
// the AND of its Predicates (AllPredicate below); routes are tried in
// configuration order and the first whose predicates all pass wins.
type Predicate interface {
	Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool
}

// AllPredicate ANDs a list of Predicates.
type AllPredicate struct {
	Predicates []Predicate
}

func (a AllPredicate) Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool {
	for _, p := range a.Predicates {
		if !p.Match(ctx, log) {
			return false
		}
	}
	return true
}

// PathPredicate matches when the request path starts with Prefix.
type PathPredicate struct {
	Prefix string
}

func (p PathPredicate) Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool {
	return strings.HasPrefix(string(ctx.Path()), p.Prefix)
}

// DomainPredicate matches the request's Host header against Domain, or any
// subdomain of it.
type DomainPredicate struct {
	Domain string
}

func (p DomainPredicate) Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool {
	host := urlutil.ExtractHostname(strings.ToLower(string(ctx.Host())))
	domain := strings.ToLower(p.Domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// HeaderPredicate matches request header Name against a compiled Pattern:
// a plain value is a case-insensitive exact match, but the "*"/"~"/"~*"
// prefixes documented by pkg/pattern let a rule match a whole family of
// header values (e.g. several bot User-Agent strings) with one <proxy
// header="User-Agent: ~*bot|crawler"> entry, the same wildcard/regexp
// vocabulary the teacher's device detector uses for User-Agent sniffing.
type HeaderPredicate struct {
	Name    string
	Pattern *pattern.Pattern
}

func (p HeaderPredicate) Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool {
	return p.Pattern.Match(string(ctx.Request.Header.Peek(p.Name)))
}

// RequestHeaderPredicate matches when request header Name is merely present
// (non-empty), regardless of value. In the config it comes from the
// request-header="Name" attribute, while header="Name: value" yields a
// HeaderPredicate (spec's "header/request-header" predicate pair).
type RequestHeaderPredicate struct {
	Name string
}

func (p RequestHeaderPredicate) Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool {
	return len(ctx.Request.Header.Peek(p.Name)) > 0
}

// PyrefPredicate delegates to a host-registered match callback.
type PyrefPredicate struct {
	Ref      pyref.Ref
	Registry *pyref.Registry
}

func (p PyrefPredicate) Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool {
	return p.Registry.Match(ctx, p.Ref, log)
}
