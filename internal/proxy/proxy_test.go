package proxy

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/edgecomet/themeproxy/pkg/pattern"
)

func TestSplitPrefixStripsMatchingPrefix(t *testing.T) {
	r := &Route{StripPrefix: "/app"}
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://example.com/app/sub/page")

	scriptName, pathInfo := r.splitPrefix(ctx, nopSink{})
	assert.Equal(t, "/app", scriptName)
	assert.Equal(t, "/sub/page", pathInfo)
}

func TestSplitPrefixWarnsAndPassesThroughOnMismatch(t *testing.T) {
	r := &Route{StripPrefix: "/other"}
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://example.com/app/sub")

	scriptName, pathInfo := r.splitPrefix(ctx, nopSink{})
	assert.Equal(t, "", scriptName)
	assert.Equal(t, "/app/sub", pathInfo)
}

func TestSplitPrefixNoPrefixConfigured(t *testing.T) {
	r := &Route{}
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://example.com/app/sub")

	scriptName, pathInfo := r.splitPrefix(ctx, nopSink{})
	assert.Equal(t, "", scriptName)
	assert.Equal(t, "/app/sub", pathInfo)
}

func TestServeFileServesWithinBase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644))

	r := &Route{}
	ctx := &fasthttp.RequestCtx{}
	r.serveFile(ctx, dir, "/index.html", nopSink{})

	assert.Equal(t, "hello", string(ctx.Response.Body()))
}

func TestServeFileRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("top secret"), 0o644))

	r := &Route{}
	ctx := &fasthttp.RequestCtx{}
	r.serveFile(ctx, dir, "/../secret.txt", nopSink{})

	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestServeFileMissingReturns404(t *testing.T) {
	dir := t.TempDir()
	r := &Route{}
	ctx := &fasthttp.RequestCtx{}
	r.serveFile(ctx, dir, "/missing.html", nopSink{})

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestHeaderPredicateMatchesWildcardUserAgentFamily(t *testing.T) {
	compiled, err := pattern.Compile("~*bot|crawler")
	require.NoError(t, err)
	p := HeaderPredicate{Name: "User-Agent", Pattern: compiled}

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")
	assert.True(t, p.Match(ctx, nopSink{}))

	ctx2 := &fasthttp.RequestCtx{}
	ctx2.Request.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh)")
	assert.False(t, p.Match(ctx2, nopSink{}))
}

func TestHeaderPredicateNilPatternNeverMatches(t *testing.T) {
	p := HeaderPredicate{Name: "User-Agent", Pattern: nil}
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("User-Agent", "anything")
	assert.False(t, p.Match(ctx, nopSink{}))
}

func TestBackendBaseExtractsOriginPrefix(t *testing.T) {
	assert.Equal(t, "http://backend.internal/", backendBase("http://backend.internal/a/b"))
	assert.Equal(t, "http://backend.internal/", backendBase("http://backend.internal"))
}

func TestHandleServesHealthzBeforeRouteMatching(t *testing.T) {
	set := NewSet(nil, nil)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://example.com" + healthPath)
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"routes":0`)
}

func TestHandleReturns404WhenNoRouteMatches(t *testing.T) {
	set := NewSet(nil, nil)
	ctx := &fasthttp.RequestCtx{}
	set.Handle(ctx, nopSink{})
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestHandleProxiesToBackendAndRewritesLinks(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	go fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("text/html")
		ctx.SetBodyString(`<html><body><a href="/next">go</a></body></html>`)
	})

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	route := &Route{
		Match:        PathPredicate{Prefix: "/"},
		Dest:         &Dest{Href: "http://backend.internal/"},
		ResponseMods: []*ResponseMod{{RewriteLinks: true}},
		OrigBase:     "http://public.example/",
	}
	set := NewSet([]*Route{route}, nil)
	set.Client = client

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `href="http://public.example/next"`)
}

func TestHandleAppliesHeaderModifierIndependentlyOfRewriteLinksModifier(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	go fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("text/html")
		ctx.SetBodyString(`<html><body><a href="/next">go</a></body></html>`)
	})

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	route := &Route{
		Match: PathPredicate{Prefix: "/"},
		Dest:  &Dest{Href: "http://backend.internal/"},
		ResponseMods: []*ResponseMod{
			{Header: "X-Themed", Content: "yes"},
			{RewriteLinks: true},
		},
		OrigBase: "http://public.example/",
	}
	set := NewSet([]*Route{route}, nil)
	set.Client = client

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, "yes", string(ctx.Response.Header.Peek("X-Themed")))
	assert.Contains(t, string(ctx.Response.Body()), `href="http://public.example/next"`)
}

func TestProxyToBackendMergesQueryStringsOriginalFirst(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()

	var seenQuery string
	go fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
		seenQuery = string(ctx.QueryArgs().QueryString())
		ctx.SetBodyString("ok")
	})

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	route := &Route{
		Match: PathPredicate{Prefix: "/"},
		Dest:  &Dest{Href: "http://backend.internal/?q=dest"},
	}
	set := NewSet([]*Route{route}, nil)
	set.Client = client

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page?q=orig")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "q=orig&q=dest", seenQuery)

	var args fasthttp.Args
	args.Parse(seenQuery)
	assert.Equal(t, "orig", string(args.Peek("q")))
}

func TestProxyToBackendFallsBackToOriginalQueryWhenDestHasNone(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()

	var seenQuery string
	go fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
		seenQuery = string(ctx.QueryArgs().QueryString())
		ctx.SetBodyString("ok")
	})

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	route := &Route{
		Match: PathPredicate{Prefix: "/"},
		Dest:  &Dest{Href: "http://backend.internal/"},
	}
	set := NewSet([]*Route{route}, nil)
	set.Client = client

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page?q=orig")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "q=orig", seenQuery)
}

func TestHandleReencodesRewrittenBodyWhenClientAcceptsGzip(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	go fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("text/html")
		body, err := encodeBody("gzip", []byte(`<html><body><a href="/next">go</a></body></html>`))
		require.NoError(t, err)
		ctx.Response.Header.Set("Content-Encoding", "gzip")
		ctx.SetBody(body)
	})

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	route := &Route{
		Match:        PathPredicate{Prefix: "/"},
		Dest:         &Dest{Href: "http://backend.internal/"},
		ResponseMods: []*ResponseMod{{RewriteLinks: true}},
		OrigBase:     "http://public.example/",
	}
	set := NewSet([]*Route{route}, nil)
	set.Client = client

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page")
	ctx.Request.Header.Set("Accept-Encoding", "gzip")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "gzip", string(ctx.Response.Header.Peek("Content-Encoding")))

	decoded, err := decodeBody("gzip", ctx.Response.Body())
	require.NoError(t, err)
	assert.Contains(t, string(decoded), `href="http://public.example/next"`)
}

func TestProxyToBackendSetsForwardedForFromRemoteAddr(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()

	var seenForwardedFor string
	go fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
		seenForwardedFor = string(ctx.Request.Header.Peek("X-Forwarded-For"))
		ctx.SetBodyString("ok")
	})

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	route := &Route{
		Match: PathPredicate{Prefix: "/"},
		Dest:  &Dest{Href: "http://backend.internal/"},
	}
	set := NewSet([]*Route{route}, nil)
	set.Client = client

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.NotEmpty(t, seenForwardedFor)
}

func TestHandleSetsResponseRequestIDHeader(t *testing.T) {
	set := NewSet(nil, nil)
	ctx := &fasthttp.RequestCtx{}
	set.Handle(ctx, nopSink{})

	assert.NotEmpty(t, string(ctx.Response.Header.Peek("X-Request-ID")))
}

func TestHandleEchoesCustomRequestIDHeader(t *testing.T) {
	set := NewSet(nil, nil)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "caller-supplied-id")
	set.Handle(ctx, nopSink{})

	assert.Contains(t, string(ctx.Response.Header.Peek("X-Request-ID")), "caller-supplied-id")
}

func TestHandleSynthesizes500OnUndefinedDestTemplateVar(t *testing.T) {
	route := &Route{
		Match: PathPredicate{Prefix: "/"},
		Dest:  &Dest{Href: "http://backend.internal{undefined_var}"},
	}
	set := NewSet([]*Route{route}, nil)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
}

func TestHandleSynthesizes503OnBackendFailure(t *testing.T) {
	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return nil, assert.AnError },
	}
	route := &Route{
		Match: PathPredicate{Prefix: "/"},
		Dest:  &Dest{Href: "http://backend.internal/"},
	}
	set := NewSet([]*Route{route}, nil)
	set.Client = client

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://public.example/page")
	set.Handle(ctx, nopSink{})

	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}
