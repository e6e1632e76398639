package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/dom"
	"github.com/edgecomet/themeproxy/internal/selector"
	"github.com/edgecomet/themeproxy/internal/theme"
)

type nopSink struct{}

func (nopSink) Debug(source, message string, args ...any) {}
func (nopSink) Info(source, message string, args ...any)  {}
func (nopSink) Warn(source, message string, args ...any)  {}
func (nopSink) Error(source, message string, args ...any) {}
func (nopSink) Describe(text string)                       {}

func mustSelector(t *testing.T, expr string) *selector.Selector {
	t.Helper()
	sel, err := selector.Parse(expr)
	require.NoError(t, err)
	return sel
}

func TestDefaultClassResolverAlwaysIncludesDefault(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	classes := DefaultClassResolver(ctx)
	assert.True(t, classes["default"])
}

func TestDefaultClassResolverReadsHeaderAndQuery(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("http://example.com/?theme-class=promo")
	ctx.Request.Header.Set("X-Theme-Class", "mobile, dark")

	classes := DefaultClassResolver(ctx)
	assert.True(t, classes["default"])
	assert.True(t, classes["mobile"])
	assert.True(t, classes["dark"])
	assert.True(t, classes["promo"])
}

func TestEngineThemeAppliesRuleSet(t *testing.T) {
	themeHTML := []byte(`<html><body><div id="content"></div></body></html>`)
	fetch := func(href string) (*dom.Document, error) {
		return dom.Parse(themeHTML)
	}

	action := &theme.Action{
		Kind:    theme.Replace,
		Content: mustSelector(t, "children:body"),
		Theme:   mustSelector(t, "children:#content"),
	}
	rs := &theme.RuleSet{
		DefaultTheme: "http://theme.internal/theme.html",
		Rules: []*theme.Rule{
			{Classes: map[string]bool{"default": true}, Actions: []*theme.Action{action}},
		},
	}

	engine := NewEngine(rs, fetch, nopSink{})
	ctx := &fasthttp.RequestCtx{}

	out, err := engine.Theme(ctx, []byte(`<html><body><p>hello</p></body></html>`))
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
}
