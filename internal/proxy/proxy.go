// Package proxy implements the reverse-proxy dispatch layer (spec §4.5),
// grounded directly on Deliverance's proxy.py: ordered route matching,
// strip_prefix rebasing, URI-template/pyref dest resolution, request/
// response modification, X-Forwarded-* header injection, file:// static
// serving, and 503 synthesis on backend transport failure.
package proxy

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/common/clientip"
	"github.com/edgecomet/themeproxy/internal/common/logger"
	"github.com/edgecomet/themeproxy/internal/common/requestid"
	"github.com/edgecomet/themeproxy/internal/driver"
	"github.com/edgecomet/themeproxy/internal/linkrewrite"
	"github.com/edgecomet/themeproxy/internal/pyref"
)

// RequestMod is a single <request> modification (spec §4.5 step 2):
// either a pyref rewriter, or a literal header=content assignment.
type RequestMod struct {
	Header   string
	Content  string
	PyrefRef *pyref.Ref
}

func (m *RequestMod) apply(ctx *fasthttp.RequestCtx, registry *pyref.Registry, log logger.EventSink) error {
	if m.PyrefRef != nil {
		return registry.ApplyRequest(ctx, *m.PyrefRef, log)
	}
	ctx.Request.Header.Set(m.Header, m.Content)
	return nil
}

// ResponseMod is a single <response> modification (spec §4.5 step 6).
// RewriteLinks is independent of, and combinable with, PyrefRef/Header
// (proxy.py's ProxyResponseModification.modify_response applies pyref-or-
// header first, then separately rewrites links if rewrite_links is set).
type ResponseMod struct {
	Header       string
	Content      string
	PyrefRef     *pyref.Ref
	RewriteLinks bool
}

// apply runs this modifier's pyref/header action, then its link rewriting
// if enabled, mirroring proxy.py's ordering within a single modifier.
func (m *ResponseMod) apply(ctx *fasthttp.RequestCtx, origBase, proxiedBase, proxiedURL string, registry *pyref.Registry, log logger.EventSink) error {
	var err error
	switch {
	case m.PyrefRef != nil:
		err = registry.ApplyResponse(ctx, *m.PyrefRef, origBase, proxiedBase, proxiedURL, log)
	case m.Header != "":
		ctx.Response.Header.Set(m.Header, m.Content)
	}

	if m.RewriteLinks {
		rewriteResponseLinks(ctx, origBase, proxiedBase, proxiedURL, log)
	}

	return err
}

// Route is one <proxy> entry (spec §4.5, grounded on proxy.py's Proxy
// class): a match predicate guarding a dest, plus request/response
// modifications and forwarding options.
type Route struct {
	Match       Predicate
	StripPrefix string
	Dest        *Dest

	RequestMods  []*RequestMod
	ResponseMods []*ResponseMod

	// KeepHost, if true, forwards the original Host header unchanged
	// instead of rewriting it to the backend's host:port.
	KeepHost bool

	// StripScriptName, if true, moves the stripped prefix into an
	// X-Forwarded-Path header instead of discarding it.
	StripScriptName bool

	// OrigBase is this route's public base URL, used as orig_base for
	// link rewriting.
	OrigBase string

	// Theme, if set, grafts the proxied HTML response into a themed
	// document before any response modification or link rewriting runs
	// (spec §4.4: theming operates on the backend's raw content, and
	// only the merged result gets the public link rewrite pass).
	Theme *driver.Engine
}

// hasRewriteLinks reports whether any response modifier on this route
// rewrites links, used to decide whether the backend body needs decoding
// even when no Theme is configured.
func (r *Route) hasRewriteLinks() bool {
	for _, mod := range r.ResponseMods {
		if mod.RewriteLinks {
			return true
		}
	}
	return false
}

// Metrics is the subset of internal/common/metrics.Collector this package
// needs, kept as a local interface so proxy doesn't import the metrics
// package directly. Nil is valid and disables recording.
type Metrics interface {
	RecordRouteMatch(domain string)
	RecordBackendFailure(backend string)
	RecordThemeApplied(outcome string)
	RecordThemeAborted()
}

// Set is an ordered collection of Routes tried in declaration order; the
// first whose Match passes (and whose Dest does not resolve to "next")
// handles the request (spec §4.5 step 1, proxy.py's ProxySet.proxy_app).
type Set struct {
	Routes   []*Route
	Registry *pyref.Registry
	Client   *fasthttp.Client
	Metrics  Metrics
}

// NewSet builds a Set with a default fasthttp client.
func NewSet(routes []*Route, registry *pyref.Registry) *Set {
	return &Set{Routes: routes, Registry: registry, Client: &fasthttp.Client{}}
}

// Handle dispatches ctx against the route list, falling through routes
// whose dest resolves to "next" or whose match fails, and responding 404
// if none apply.
func (s *Set) Handle(ctx *fasthttp.RequestCtx, log logger.EventSink) {
	customRequestID := string(ctx.Request.Header.Peek("X-Request-ID"))
	requestID := requestid.GenerateRequestID(customRequestID)
	ctx.Response.Header.Set("X-Request-ID", requestID)

	if s.isHealthCheck(ctx) {
		s.HandleHealth(ctx)
		return
	}

	for _, route := range s.Routes {
		if !route.Match.Match(ctx, log) {
			continue
		}
		if s.Metrics != nil {
			s.Metrics.RecordRouteMatch(string(ctx.Host()))
		}
		err := route.forward(ctx, s.Client, s.Registry, log, s.Metrics, requestID)
		if err == ErrAbortProxy {
			continue
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetContentType("text/plain; charset=utf-8")
			fmt.Fprintf(ctx, "could not resolve proxy destination: %s", err.Error())
			log.Error("proxy", "dest resolution failed", "request_id", requestID, "error", err.Error())
		}
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString("no proxy route matched this request")
}

// forward runs one route to completion: prefix stripping, request
// modification, dest resolution, and either file serving or backend
// forwarding with response modification and link rewriting.
func (r *Route) forward(ctx *fasthttp.RequestCtx, client *fasthttp.Client, registry *pyref.Registry, log logger.EventSink, m Metrics, requestID string) error {
	scriptName, pathInfo := r.splitPrefix(ctx, log)
	ctx.URI().SetPath(pathInfo)

	for _, mod := range r.RequestMods {
		if err := mod.apply(ctx, registry, log); err != nil {
			log.Error("proxy", "request modification failed", "request_id", requestID, "error", err.Error())
		}
	}

	if r.StripScriptName && scriptName != "" {
		ctx.Request.Header.Set("X-Forwarded-Path", scriptName)
	}

	destURL, err := r.Dest.Resolve(ctx, log)
	if err != nil {
		return err
	}

	if filePath, ok := IsFileDest(destURL); ok {
		r.serveFile(ctx, filePath, pathInfo, log)
		return nil
	}

	return r.proxyToBackend(ctx, client, destURL, registry, log, m, requestID)
}

// splitPrefix rebases script_name/path_info per spec §4.5 step 2 (proxy.py:
// Proxy.forward_request's strip_prefix handling). A non-matching prefix is
// logged as a warning and the request proceeds unstripped, rather than
// aborting.
func (r *Route) splitPrefix(ctx *fasthttp.RequestCtx, log logger.EventSink) (scriptName, pathInfo string) {
	full := string(ctx.Path())
	if r.StripPrefix == "" {
		return "", full
	}
	if !strings.HasPrefix(full, r.StripPrefix) {
		log.Warn("proxy", "strip_prefix does not match request path", "prefix", r.StripPrefix, "path", full)
		return "", full
	}
	rest := strings.TrimPrefix(full, r.StripPrefix)
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return r.StripPrefix, rest
}

// proxyToBackend forwards the (already rebased) request to destURL,
// injecting X-Forwarded-* headers, applying response modifications and
// optional link rewriting, and synthesizing a 503 on transport failure
// (proxy.py's Proxy.proxy_to_dest).
func (r *Route) proxyToBackend(ctx *fasthttp.RequestCtx, client *fasthttp.Client, destURL string, registry *pyref.Registry, log logger.EventSink, m Metrics, requestID string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	origQuery := string(ctx.QueryArgs().QueryString())

	ctx.Request.CopyTo(req)
	req.SetRequestURI(destURL)

	// proxy.py builds proxy_req from a copy of the original request (so its
	// query_string starts out as the original request's), then appends the
	// dest URL's own query with "&" if present: original query first, dest
	// query appended, not the other way around.
	if destQuery := string(req.URI().QueryArgs().QueryString()); destQuery != "" {
		merged := origQuery
		if merged != "" {
			merged += "&"
		}
		merged += destQuery
		req.URI().SetQueryString(merged)
	} else if origQuery != "" {
		req.URI().SetQueryString(origQuery)
	}

	backendHost := string(req.URI().Host())
	if !r.KeepHost {
		req.Header.SetHost(backendHost)
	}

	req.Header.Set("X-Forwarded-For", clientip.Extract(ctx, nil))
	req.Header.Set("X-Forwarded-Scheme", string(ctx.URI().Scheme()))
	req.Header.Set("X-Forwarded-Server", string(ctx.Host()))

	if err := client.Do(req, resp); err != nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("text/plain; charset=utf-8")
		fmt.Fprintf(ctx, "Service unavailable: could not connect to backend %s (%s)", backendHost, err.Error())
		log.Error("proxy", "backend transport failure", "request_id", requestID, "backend", backendHost, "error", err.Error())
		if m != nil {
			m.RecordBackendFailure(backendHost)
		}
		return nil
	}

	resp.CopyTo(&ctx.Response)

	touchesBody := (r.Theme != nil || r.hasRewriteLinks()) && linkrewrite.IsHTMLContentType(string(ctx.Response.Header.ContentType()))

	if touchesBody {
		if encoding := string(ctx.Response.Header.Peek("Content-Encoding")); encoding != "" {
			decoded, err := decodeBody(encoding, ctx.Response.Body())
			if err != nil {
				log.Warn("proxy", "failed to decode response body, skipping theming/link rewriting", "request_id", requestID, "encoding", encoding, "error", err.Error())
				touchesBody = false
			} else {
				ctx.Response.SetBody(decoded)
				ctx.Response.Header.Del("Content-Encoding")
			}
		}
	}

	if r.Theme != nil && linkrewrite.IsHTMLContentType(string(ctx.Response.Header.ContentType())) {
		themed, err := r.Theme.Theme(ctx, ctx.Response.Body())
		if err != nil {
			log.Warn("proxy", "theming failed, serving untouched content", "request_id", requestID, "error", err.Error())
			if m != nil {
				m.RecordThemeApplied("error")
			}
		} else {
			ctx.Response.SetBody(themed)
			if m != nil {
				m.RecordThemeApplied("ok")
			}
		}
	}

	for _, mod := range r.ResponseMods {
		if err := mod.apply(ctx, r.OrigBase, backendBase(destURL), destURL, registry, log); err != nil {
			log.Error("proxy", "response modification failed", "request_id", requestID, "error", err.Error())
		}
	}

	// Re-encode the rewritten body per spec §4.7 if the client advertised
	// support for it, using whichever encoding negotiateEncoding picks from
	// the client's Accept-Encoding; the backend's original encoding does not
	// enter into the choice.
	if touchesBody {
		if encoding := negotiateEncoding(string(ctx.Request.Header.Peek("Accept-Encoding"))); encoding != "" {
			encoded, err := encodeBody(encoding, ctx.Response.Body())
			if err != nil {
				log.Warn("proxy", "failed to re-encode response body", "request_id", requestID, "encoding", encoding, "error", err.Error())
			} else {
				ctx.Response.SetBody(encoded)
				ctx.Response.Header.Set("Content-Encoding", encoding)
				ctx.Response.Header.SetContentLength(len(encoded))
			}
		}
	}

	return nil
}

func backendBase(destURL string) string {
	if idx := strings.Index(destURL, "://"); idx != -1 {
		if slash := strings.Index(destURL[idx+3:], "/"); slash != -1 {
			return destURL[:idx+3+slash+1]
		}
	}
	return destURL
}

// rewriteResponseLinks applies internal/linkrewrite to the backend
// response's body, Location header, and Set-Cookie domain (spec §4.6),
// gated on the response actually being HTML for the body rewrite. Called
// per response modifier that opts into it (proxy.py's
// ProxyResponseModification.modify_response), not once per route.
func rewriteResponseLinks(ctx *fasthttp.RequestCtx, origBase, proxiedBase, proxiedURL string, log logger.EventSink) {
	rw := linkrewrite.New(origBase, proxiedBase, proxiedURL)

	if linkrewrite.IsHTMLContentType(string(ctx.Response.Header.ContentType())) {
		body, err := rw.RewriteBody(ctx.Response.Body())
		if err != nil {
			log.Warn("proxy", "failed to rewrite response body links", "error", err.Error())
		} else {
			ctx.Response.SetBody(body)
		}
	}

	if loc := string(ctx.Response.Header.Peek("Location")); loc != "" {
		ctx.Response.Header.Set("Location", rw.RewriteLocation(loc))
	}

	ctx.Response.Header.VisitAllCookie(func(key, value []byte) {
		rewritten := rw.RewriteSetCookie(string(value))
		ctx.Response.Header.SetBytesK(key, rewritten)
	})
}

// serveFile serves a file:// dest (proxy.py's Proxy.proxy_to_file),
// joining the dest's base path with the request's (possibly stripped)
// path and refusing any path that escapes the base after cleaning.
func (r *Route) serveFile(ctx *fasthttp.RequestCtx, basePath, requestPath string, log logger.EventSink) {
	joined := path.Join(basePath, path.Clean("/"+requestPath))
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil || !strings.HasPrefix(absJoined, absBase) {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString("path escapes configured file root")
		return
	}

	data, err := os.ReadFile(absJoined)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		log.Warn("proxy", "file dest not found", "path", absJoined, "error", err.Error())
		return
	}
	ctx.SetBody(data)
}
