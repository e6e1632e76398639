// Package pyref implements the host-callback reference mechanism spec §6
// and §9 describe without fixing an implementation: a tagged
// {module, symbol} reference resolved against a dispatch table the
// embedder registers at startup, gated by a security predicate. The
// signature varies by call site, so each site gets its own capability
// interface rather than one dynamic callable (spec §9 "Host callbacks").
package pyref

import (
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/common/logger"
)

// Ref is a parsed "module:symbol" host-callback reference (spec §3 dest,
// §6, GLOSSARY).
type Ref struct {
	Module string
	Symbol string
}

// ParseRef parses a "module:symbol" reference string.
func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("invalid pyref reference %q, expected module:symbol", s)
	}
	return Ref{Module: parts[0], Symbol: parts[1]}, nil
}

func (r Ref) String() string {
	return r.Module + ":" + r.Symbol
}

// SecurityPredicate gates every pyref invocation (spec §6: "execute_pyref(request)").
type SecurityPredicate func(ctx *fasthttp.RequestCtx) bool

// MatchPredicate is the capability interface for a <pyref> used as a
// proxy match predicate (spec §6, §4.5 step 1).
type MatchPredicate interface {
	Match(ctx *fasthttp.RequestCtx, log logger.EventSink) bool
}

// DestResolver is the capability interface for a <dest pyref="..."> site:
// "(request, log) -> dest-URL" (spec §6).
type DestResolver interface {
	ResolveDest(ctx *fasthttp.RequestCtx, log logger.EventSink) (string, error)
}

// RequestRewriter is the capability interface for a <request pyref="..."/>
// modifier: "(request, log) -> request-or-environ-dict" (spec §6). It
// mutates ctx.Request in place, since fasthttp's RequestCtx already owns
// that object for the lifetime of the request.
type RequestRewriter interface {
	RewriteRequest(ctx *fasthttp.RequestCtx, log logger.EventSink) error
}

// ResponseRewriter is the capability interface for a <response pyref="..."/>
// modifier: "(request, response, orig_base, proxied_base, proxied_url,
// log) -> response" (spec §6). It mutates ctx.Response in place.
type ResponseRewriter interface {
	RewriteResponse(ctx *fasthttp.RequestCtx, origBase, proxiedBase, proxiedURL string, log logger.EventSink) error
}

// Registry is the dispatch table an embedder populates at startup,
// mapping each registered Ref to the capability it implements at its
// particular call site.
type Registry struct {
	security SecurityPredicate

	match    map[string]MatchPredicate
	dest     map[string]DestResolver
	request  map[string]RequestRewriter
	response map[string]ResponseRewriter
}

// NewRegistry creates an empty dispatch table gated by security.
// A nil security predicate allows every call (suitable for embedders that
// don't configure execute-pyref).
func NewRegistry(security SecurityPredicate) *Registry {
	return &Registry{
		security: security,
		match:    make(map[string]MatchPredicate),
		dest:     make(map[string]DestResolver),
		request:  make(map[string]RequestRewriter),
		response: make(map[string]ResponseRewriter),
	}
}

func (r *Registry) RegisterMatch(ref Ref, p MatchPredicate)       { r.match[ref.String()] = p }
func (r *Registry) RegisterDest(ref Ref, d DestResolver)          { r.dest[ref.String()] = d }
func (r *Registry) RegisterRequest(ref Ref, rw RequestRewriter)   { r.request[ref.String()] = rw }
func (r *Registry) RegisterResponse(ref Ref, rw ResponseRewriter) { r.response[ref.String()] = rw }

func (r *Registry) allowed(ctx *fasthttp.RequestCtx, ref Ref, log logger.EventSink) bool {
	if r.security == nil {
		return true
	}
	if r.security(ctx) {
		return true
	}
	log.Error("pyref", "security predicate denied pyref invocation", "ref", ref.String())
	return false
}

// Match evaluates a registered match predicate. An unregistered ref or a
// security denial both resolve to "no match," which is the conservative
// choice for a predicate gating proxy selection.
func (r *Registry) Match(ctx *fasthttp.RequestCtx, ref Ref, log logger.EventSink) bool {
	if !r.allowed(ctx, ref, log) {
		return false
	}
	p, ok := r.match[ref.String()]
	if !ok {
		log.Error("pyref", "no match predicate registered", "ref", ref.String())
		return false
	}
	return p.Match(ctx, log)
}

// ResolveDest invokes a registered dest resolver.
func (r *Registry) ResolveDest(ctx *fasthttp.RequestCtx, ref Ref, log logger.EventSink) (string, error) {
	if !r.allowed(ctx, ref, log) {
		return "", fmt.Errorf("pyref %s denied by security predicate", ref)
	}
	d, ok := r.dest[ref.String()]
	if !ok {
		return "", fmt.Errorf("no dest pyref registered for %s", ref)
	}
	return d.ResolveDest(ctx, log)
}

// ApplyRequest invokes a registered request rewriter. A security denial
// is logged and the call is skipped without error, matching spec §6's
// "the call is skipped and an error is logged."
func (r *Registry) ApplyRequest(ctx *fasthttp.RequestCtx, ref Ref, log logger.EventSink) error {
	if !r.allowed(ctx, ref, log) {
		return nil
	}
	rw, ok := r.request[ref.String()]
	if !ok {
		log.Error("pyref", "no request pyref registered", "ref", ref.String())
		return nil
	}
	return rw.RewriteRequest(ctx, log)
}

// ApplyResponse invokes a registered response rewriter.
func (r *Registry) ApplyResponse(ctx *fasthttp.RequestCtx, ref Ref, origBase, proxiedBase, proxiedURL string, log logger.EventSink) error {
	if !r.allowed(ctx, ref, log) {
		return nil
	}
	rw, ok := r.response[ref.String()]
	if !ok {
		log.Error("pyref", "no response pyref registered", "ref", ref.String())
		return nil
	}
	return rw.RewriteResponse(ctx, origBase, proxiedBase, proxiedURL, log)
}
