package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/themeproxy/internal/theme"
)

const sampleConfig = `<?xml version="1.0"?>
<proxyconfig>
  <server-settings host="127.0.0.1" port="8080" execute-pyref="false"/>
  <proxy path="/app" strip-prefix="/app" orig-base="http://public.example/">
    <dest href="http://backend.internal{path}"/>
    <response rewrite-links="true"/>
  </proxy>
  <ruleset default-theme="http://theme.internal/theme.html">
    <rule class="default">
      <replace content="children:body" theme="children:body" move="true"/>
      <drop theme="tag:script"/>
    </rule>
  </ruleset>
</proxyconfig>`

func TestLoadParsesServerSettings(t *testing.T) {
	result, err := Load([]byte(sampleConfig), "test.xml")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", result.Server.Host)
	assert.Equal(t, "8080", result.Server.Port)
	assert.False(t, result.Server.ExecutePyref)
}

func TestLoadParsesRoutes(t *testing.T) {
	result, err := Load([]byte(sampleConfig), "test.xml")
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	route := result.Routes[0]
	assert.Equal(t, "/app", route.PathPrefix)
	assert.Equal(t, "/app", route.StripPrefix)
	assert.Equal(t, "http://backend.internal{path}", route.DestHref)
	require.Len(t, route.ResponseMods, 1)
	assert.True(t, route.ResponseMods[0].RewriteLinks)
}

func TestLoadParsesRuleSetActionsInOrder(t *testing.T) {
	result, err := Load([]byte(sampleConfig), "test.xml")
	require.NoError(t, err)
	require.Len(t, result.RuleSets, 1)
	rs := result.RuleSets[0]
	assert.Equal(t, "http://theme.internal/theme.html", rs.DefaultTheme)
	require.Len(t, rs.Rules, 1)
	require.Len(t, rs.Rules[0].Actions, 2)
	assert.Equal(t, theme.Replace, rs.Rules[0].Actions[0].Kind)
	assert.Equal(t, theme.Drop, rs.Rules[0].Actions[1].Kind)
}

func TestLoadRejectsIncompatibleSelectorKinds(t *testing.T) {
	bad := `<?xml version="1.0"?>
<proxyconfig>
  <ruleset>
    <rule class="default">
      <replace content="attributes(class):body" theme="children:body"/>
    </rule>
  </ruleset>
</proxyconfig>`
	_, err := Load([]byte(bad), "bad.xml")
	assert.Error(t, err)
}

func TestLoadRejectsDestWithoutExactlyOneTarget(t *testing.T) {
	bad := `<?xml version="1.0"?>
<proxyconfig>
  <proxy path="/">
    <dest/>
  </proxy>
</proxyconfig>`
	_, err := Load([]byte(bad), "bad.xml")
	assert.Error(t, err)
}

func TestLoadParsesHeaderMatchPattern(t *testing.T) {
	cfg := `<?xml version="1.0"?>
<proxyconfig>
  <proxy path="/" header="User-Agent: ~*bot|crawler">
    <dest href="http://backend.internal/"/>
  </proxy>
</proxyconfig>`
	result, err := Load([]byte(cfg), "test.xml")
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	assert.Equal(t, [2]string{"User-Agent", "~*bot|crawler"}, result.Routes[0].Header)
}

func TestLoadRejectsInvalidHeaderMatchRegexp(t *testing.T) {
	bad := `<?xml version="1.0"?>
<proxyconfig>
  <proxy path="/" header="User-Agent: ~*(unterminated">
    <dest href="http://backend.internal/"/>
  </proxy>
</proxyconfig>`
	_, err := Load([]byte(bad), "bad.xml")
	assert.Error(t, err)
}

func TestLoadRejectsResponseModifierWithNoAction(t *testing.T) {
	bad := `<?xml version="1.0"?>
<proxyconfig>
  <proxy path="/">
    <dest href="http://backend.internal/"/>
    <response/>
  </proxy>
</proxyconfig>`
	_, err := Load([]byte(bad), "bad.xml")
	assert.Error(t, err)
}

func TestLoadRejectsRewriteLinksOnRequestModifier(t *testing.T) {
	// rewrite-links only applies to <response> (spec §6); on <request> it
	// is simply not parsed, so a bare <request rewrite-links="true"/> has
	// no action and is rejected the same as any other empty modifier.
	bad := `<?xml version="1.0"?>
<proxyconfig>
  <proxy path="/">
    <dest href="http://backend.internal/"/>
    <request rewrite-links="true"/>
  </proxy>
</proxyconfig>`
	_, err := Load([]byte(bad), "bad.xml")
	assert.Error(t, err)
}

func TestLoadParsesRewriteLinksAloneOnResponse(t *testing.T) {
	cfg := `<?xml version="1.0"?>
<proxyconfig>
  <proxy path="/" orig-base="http://public.example/">
    <dest href="http://backend.internal/"/>
    <response rewrite-links="true"/>
  </proxy>
</proxyconfig>`
	result, err := Load([]byte(cfg), "test.xml")
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	require.Len(t, result.Routes[0].ResponseMods, 1)
	mod := result.Routes[0].ResponseMods[0]
	assert.True(t, mod.RewriteLinks)
	assert.Nil(t, mod.Pyref)
	assert.Empty(t, mod.Header)
}

func TestLoadCombinesRewriteLinksWithHeaderModifier(t *testing.T) {
	cfg := `<?xml version="1.0"?>
<proxyconfig>
  <proxy path="/" orig-base="http://public.example/">
    <dest href="http://backend.internal/"/>
    <response header="X-Themed" content="yes" rewrite-links="true"/>
  </proxy>
</proxyconfig>`
	result, err := Load([]byte(cfg), "test.xml")
	require.NoError(t, err)
	mod := result.Routes[0].ResponseMods[0]
	assert.True(t, mod.RewriteLinks)
	assert.Equal(t, "X-Themed", mod.Header)
	assert.Equal(t, "yes", mod.Content)
}

func TestParseManyPolicyDefaultsAndVariants(t *testing.T) {
	assert.Equal(t, theme.DefaultManyPolicy(), parseManyPolicy(""))
	assert.Equal(t, theme.ManyPolicy{Policy: theme.PolicyAbort, Fallback: theme.FallbackFirst}, parseManyPolicy("abort"))
	assert.Equal(t, theme.ManyPolicy{Policy: theme.PolicyWarn, Fallback: theme.FallbackLast}, parseManyPolicy("warn-last"))
}
