package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/themeproxy/internal/dom"
)

func mustParseDoc(t *testing.T, body string) *dom.Document {
	t.Helper()
	d, err := dom.Parse([]byte(body))
	require.NoError(t, err)
	return d
}

func TestParseKindPrefixes(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		wantKind   Kind
		wantNames  []string
		wantInvert bool
	}{
		{"bare element selector", "div.main", KindElements, nil, false},
		{"children prefix", "children:div.main", KindChildren, nil, false},
		{"attributes all", "attributes:a.link", KindAttributes, nil, false},
		{"attributes named", "attributes(href, title):a.link", KindAttributes, []string{"href", "title"}, false},
		{"tag prefix", "tag:h1", KindTag, nil, false},
		{"inverted", "!div.main", KindElements, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, s.Kind)
			assert.Equal(t, tt.wantNames, s.AttrNames)
			assert.Equal(t, tt.wantInvert, s.Inverted)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse("attributes(href:a.link")
	assert.Error(t, err)

	_, err = Parse("tag:")
	assert.Error(t, err)
}

func TestEvaluateTagClassID(t *testing.T) {
	d := mustParseDoc(t, `<html><body>
		<div id="hero" class="main featured"><p>one</p></div>
		<div class="main"><p>two</p></div>
	</body></html>`)

	s, err := Parse("div.main")
	require.NoError(t, err)
	els := s.Evaluate(d.Root)
	require.Len(t, els, 2)

	s, err = Parse("#hero")
	require.NoError(t, err)
	els = s.Evaluate(d.Root)
	require.Len(t, els, 1)
	val, _ := dom.Attr(els[0], "class")
	assert.Equal(t, "main featured", val)
}

func TestEvaluateDescendantAndChildCombinators(t *testing.T) {
	d := mustParseDoc(t, `<html><body>
		<div class="main"><ul><li>a</li></ul></div>
		<section><ul><li>b</li></ul></section>
	</body></html>`)

	s, err := Parse("div.main li")
	require.NoError(t, err)
	els := s.Evaluate(d.Root)
	require.Len(t, els, 1)
	assert.Equal(t, "a", dom.TextContent(els[0]))

	s, err = Parse("div.main > ul")
	require.NoError(t, err)
	els = s.Evaluate(d.Root)
	require.Len(t, els, 1)

	s, err = Parse("div.main > li")
	require.NoError(t, err)
	els = s.Evaluate(d.Root)
	assert.Len(t, els, 0)
}

func TestEvaluateAttributeTests(t *testing.T) {
	d := mustParseDoc(t, `<html><body>
		<a href="/one" data-kind="primary cta">One</a>
		<a href="/two" data-kind="secondary">Two</a>
		<a data-kind="primary">No href</a>
	</body></html>`)

	s, err := Parse(`a[href]`)
	require.NoError(t, err)
	assert.Len(t, s.Evaluate(d.Root), 2)

	s, err = Parse(`a[data-kind~=primary]`)
	require.NoError(t, err)
	assert.Len(t, s.Evaluate(d.Root), 2)

	s, err = Parse(`a[data-kind=secondary]`)
	require.NoError(t, err)
	assert.Len(t, s.Evaluate(d.Root), 1)
}

func TestMatchedHonorsInversion(t *testing.T) {
	d := mustParseDoc(t, `<html><body><div class="main"></div></body></html>`)

	s, err := Parse("div.main")
	require.NoError(t, err)
	els := s.Evaluate(d.Root)
	assert.True(t, s.Matched(els))

	s, err = Parse("!div.main")
	require.NoError(t, err)
	els = s.Evaluate(d.Root)
	assert.False(t, s.Matched(els))

	s, err = Parse("!section.missing")
	require.NoError(t, err)
	els = s.Evaluate(d.Root)
	assert.True(t, s.Matched(els))
}

func TestMatchedChildrenKindRequiresTextOrElementChildren(t *testing.T) {
	d := mustParseDoc(t, `<html><body>
		<div id="empty"></div>
		<div id="text">hello</div>
		<div id="nested"><span>x</span></div>
	</body></html>`)

	s, err := Parse("children:#empty")
	require.NoError(t, err)
	assert.False(t, s.Matched(s.Evaluate(d.Root)))

	s, err = Parse("children:#text")
	require.NoError(t, err)
	assert.True(t, s.Matched(s.Evaluate(d.Root)))

	s, err = Parse("children:#nested")
	require.NoError(t, err)
	assert.True(t, s.Matched(s.Evaluate(d.Root)))
}

func TestMatchedAttributesKindRequiresNamedOrAnyAttribute(t *testing.T) {
	d := mustParseDoc(t, `<html><body>
		<div id="bare"></div>
		<div id="tagged" data-kind="primary"></div>
		<span></span>
	</body></html>`)

	s, err := Parse("attributes:span")
	require.NoError(t, err)
	assert.False(t, s.Matched(s.Evaluate(d.Root)))

	s, err = Parse("attributes:#tagged")
	require.NoError(t, err)
	assert.True(t, s.Matched(s.Evaluate(d.Root)))

	s, err = Parse("attributes(data-kind):#bare")
	require.NoError(t, err)
	assert.False(t, s.Matched(s.Evaluate(d.Root)))

	s, err = Parse("attributes(data-kind):#tagged")
	require.NoError(t, err)
	assert.True(t, s.Matched(s.Evaluate(d.Root)))

	s, err = Parse("attributes(missing-attr):#tagged")
	require.NoError(t, err)
	assert.False(t, s.Matched(s.Evaluate(d.Root)))
}
