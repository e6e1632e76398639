// Package driver ties together the parsed RuleSet, its theme-document
// fetcher, and a request's active classes into the single per-response
// operation the rest of the system needs: "theme this content" (spec §4.4,
// grounded on Deliverance's ThemeMiddleware wrapping a WSGI app).
package driver

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/common/logger"
	"github.com/edgecomet/themeproxy/internal/dom"
	"github.com/edgecomet/themeproxy/internal/theme"
)

// ClassResolver derives a request's active rule classes (spec §3's
// "classes defaults to {default}"). The default resolver below also
// recognizes an explicit override, mirroring Deliverance's support for a
// request-supplied theme class.
type ClassResolver func(ctx *fasthttp.RequestCtx) map[string]bool

// DefaultClassResolver always activates "default", plus any classes named
// in the X-Theme-Class request header (comma-separated) or a
// "theme-class" query parameter.
func DefaultClassResolver(ctx *fasthttp.RequestCtx) map[string]bool {
	classes := map[string]bool{"default": true}
	add := func(raw string) {
		for _, c := range strings.Split(raw, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				classes[c] = true
			}
		}
	}
	if h := string(ctx.Request.Header.Peek("X-Theme-Class")); h != "" {
		add(h)
	}
	if q := string(ctx.QueryArgs().Peek("theme-class")); q != "" {
		add(q)
	}
	return classes
}

// Engine applies one RuleSet to proxied content (spec §4.4: "given a
// content document and a theme document, the driver resolves the theme
// URL, fetches it, and applies the ruleset").
type Engine struct {
	RuleSet       *theme.RuleSet
	Fetch         theme.ResourceFetcher
	ClassResolver ClassResolver
	Log           logger.EventSink
}

// NewEngine builds an Engine with the default class resolver.
func NewEngine(rs *theme.RuleSet, fetch theme.ResourceFetcher, log logger.EventSink) *Engine {
	return &Engine{RuleSet: rs, Fetch: fetch, ClassResolver: DefaultClassResolver, Log: log}
}

// Theme parses contentHTML, fetches and applies the resolved theme
// document, and returns the merged, serialized result.
func (e *Engine) Theme(ctx *fasthttp.RequestCtx, contentHTML []byte) ([]byte, error) {
	classes := e.ClassResolver(ctx)
	themeHref := e.RuleSet.ResolveThemeURL(classes, e.Log)

	themeDoc, err := e.Fetch(themeHref)
	if err != nil {
		return nil, err
	}
	contentDoc, err := dom.Parse(contentHTML)
	if err != nil {
		return nil, err
	}

	result, err := e.RuleSet.Apply(contentDoc, themeDoc, e.Fetch, e.Log, classes)
	if err != nil {
		return nil, err
	}
	return result.Bytes()
}
