package proxy

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/common/logger"
	"github.com/edgecomet/themeproxy/internal/pyref"
)

// Dest resolves a route's backend target (spec §4.5 step 3, grounded on
// proxy.py's ProxyDest.__call__). Exactly one of Href, PyrefRef, or Next
// is set; config validation enforces that.
type Dest struct {
	// Href is a URI template substituted against the request (and an
	// optional "here" variable) to produce the backend URL, or a
	// "file://" URL to serve from the local filesystem.
	Href string

	// PyrefRef, if set, delegates resolution to a registered DestResolver.
	PyrefRef *pyref.Ref

	// Next, if true, is the sentinel meaning "this route does not apply;
	// fall through to the next route in the set."
	Next bool

	// SourceLocation is the path of the config file this dest was
	// declared in, used to compute the "here" template variable as its
	// directory (proxy.py: "dict(here=posixpath.dirname(self.source_location))").
	SourceLocation string

	Registry *pyref.Registry
}

// Resolve returns the backend URL for ctx, or ErrAbortProxy for a "next"
// dest.
func (d *Dest) Resolve(ctx *fasthttp.RequestCtx, log logger.EventSink) (string, error) {
	if d.Next {
		return "", ErrAbortProxy
	}
	if d.PyrefRef != nil {
		return d.Registry.ResolveDest(ctx, *d.PyrefRef, log)
	}
	vars := requestTemplateVars(ctx, d.SourceLocation)
	return substituteURITemplate(d.Href, vars)
}

// requestTemplateVars builds the variable set a dest href can reference
// (proxy.py's NestedDict over request.environ + request.headers + "here";
// fasthttp has no WSGI environ, so the equivalent fields are surfaced
// directly).
func requestTemplateVars(ctx *fasthttp.RequestCtx, sourceLocation string) map[string]string {
	vars := map[string]string{
		"scheme":    string(ctx.URI().Scheme()),
		"host":      string(ctx.Host()),
		"path":      string(ctx.Path()),
		"path_info": string(ctx.Path()),
		"query":     string(ctx.QueryArgs().QueryString()),
		"method":    string(ctx.Method()),
		"here":      path.Dir(sourceLocation),
	}
	ctx.Request.Header.VisitAll(func(key, value []byte) {
		vars["header_"+strings.ToLower(string(key))] = string(value)
	})
	return vars
}

var templateVarRe = regexp.MustCompile(`\{([a-zA-Z0-9_.:-]+)\}`)

// substituteURITemplate replaces every {name} placeholder in tmpl with the
// corresponding entry from vars (proxy.py's uri_template_substitute, ported
// without its Python-specific attribute/subscript accessor syntax since
// vars here is already flat). An undefined variable is an error at render
// time (spec §6) rather than a silent blank, since serving a mangled
// backend URL is worse than aborting the request.
func substituteURITemplate(tmpl string, vars map[string]string) (string, error) {
	var undefined []string
	out := templateVarRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		value, ok := vars[name]
		if !ok {
			undefined = append(undefined, name)
		}
		return value
	})
	if len(undefined) > 0 {
		return "", fmt.Errorf("undefined template variable(s): %s", strings.Join(undefined, ", "))
	}
	return out, nil
}

// IsFileDest reports whether a resolved dest URL is a local file:// target
// (proxy.py's proxy_to_file path), returning the filesystem base path with
// the scheme stripped.
func IsFileDest(destURL string) (string, bool) {
	const prefix = "file://"
	if !strings.HasPrefix(destURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(destURL, prefix), true
}

// ParseDestSpec builds a Dest from a config-declared href/pyref/next triple,
// validating exactly one is set.
func ParseDestSpec(href string, pyrefStr string, next bool, sourceLocation string, registry *pyref.Registry) (*Dest, error) {
	set := 0
	if href != "" {
		set++
	}
	if pyrefStr != "" {
		set++
	}
	if next {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("dest must specify exactly one of href, pyref, or next")
	}

	d := &Dest{SourceLocation: sourceLocation, Registry: registry, Next: next}
	if href != "" {
		d.Href = href
	}
	if pyrefStr != "" {
		ref, err := pyref.ParseRef(pyrefStr)
		if err != nil {
			return nil, err
		}
		d.PyrefRef = &ref
	}
	return d, nil
}
