package selector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/edgecomet/themeproxy/internal/dom"
)

type combinator int

const (
	combDescendant combinator = iota
	combChild
)

// attrTest is a single [name], [name=value], [name~=value], [name*=value],
// [name^=value] or [name$=value] test within a compound selector.
type attrTest struct {
	name     string
	op       string // "", "=", "~=", "*=", "^=", "$="
	value    string
}

// compound is one tag.class#id[attr] unit (no combinators inside it).
type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTest
}

// chain is a sequence of compounds joined by combinators: steps[i] is
// related to steps[i+1] by combinators[i].
type chain struct {
	steps       []compound
	combinators []combinator
}

// compoundChains is an OR of chains, one per comma-separated group.
type compoundChains struct {
	groups []chain
}

func (cc compoundChains) matches(n *html.Node) bool {
	for _, c := range cc.groups {
		if chainMatches(n, c) {
			return true
		}
	}
	return false
}

func chainMatches(n *html.Node, c chain) bool {
	if len(c.steps) == 0 {
		return false
	}
	last := len(c.steps) - 1
	if !compoundMatches(n, c.steps[last]) {
		return false
	}
	cur := n
	for i := last - 1; i >= 0; i-- {
		comb := c.combinators[i]
		if comb == combChild {
			p := cur.Parent
			if p == nil || !compoundMatches(p, c.steps[i]) {
				return false
			}
			cur = p
		} else {
			p := cur.Parent
			found := false
			for p != nil {
				if compoundMatches(p, c.steps[i]) {
					found = true
					cur = p
					break
				}
				p = p.Parent
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func compoundMatches(n *html.Node, c compound) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && !strings.EqualFold(n.Data, c.tag) {
		return false
	}
	if c.id != "" {
		v, ok := dom.Attr(n, "id")
		if !ok || v != c.id {
			return false
		}
	}
	if len(c.classes) > 0 {
		classAttr, _ := dom.Attr(n, "class")
		for _, want := range c.classes {
			if !hasToken(classAttr, want) {
				return false
			}
		}
	}
	for _, at := range c.attrs {
		v, ok := dom.Attr(n, at.name)
		if !ok {
			return false
		}
		switch at.op {
		case "":
			// presence only
		case "=":
			if v != at.value {
				return false
			}
		case "~=":
			if !hasToken(v, at.value) {
				return false
			}
		case "*=":
			if !strings.Contains(v, at.value) {
				return false
			}
		case "^=":
			if !strings.HasPrefix(v, at.value) {
				return false
			}
		case "$=":
			if !strings.HasSuffix(v, at.value) {
				return false
			}
		}
	}
	return true
}

func hasToken(s, token string) bool {
	for _, f := range strings.Fields(s) {
		if f == token {
			return true
		}
	}
	return false
}

// parseGroups parses comma-separated combinator chains.
func parseGroups(expr string) (compoundChains, error) {
	var cc compoundChains
	for _, group := range splitTopLevel(expr, ',') {
		group = strings.TrimSpace(group)
		if group == "" {
			return cc, fmt.Errorf("empty selector group")
		}
		c, err := parseChain(group)
		if err != nil {
			return cc, err
		}
		cc.groups = append(cc.groups, c)
	}
	return cc, nil
}

// splitTopLevel splits s on sep, ignoring occurrences inside [...] brackets.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		default:
			if s[i] == sep && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// parseChain parses a single combinator chain like "div.main > ul li[data-x=1]".
func parseChain(s string) (chain, error) {
	var c chain
	tokens, combs, err := tokenizeChain(s)
	if err != nil {
		return c, err
	}
	for _, tok := range tokens {
		cp, err := parseCompound(tok)
		if err != nil {
			return c, err
		}
		c.steps = append(c.steps, cp)
	}
	c.combinators = combs
	return c, nil
}

// tokenizeChain splits a combinator chain into compound-selector tokens and
// the combinator following each one (len(combs) == len(tokens)-1).
func tokenizeChain(s string) ([]string, []combinator, error) {
	var tokens []string
	var combs []combinator

	fields := splitOnWhitespaceKeepingBrackets(s)
	var cur strings.Builder
	pendingCombinator := combDescendant
	haveToken := false

	flush := func() {
		if cur.Len() > 0 {
			if haveToken {
				combs = append(combs, pendingCombinator)
			}
			tokens = append(tokens, cur.String())
			cur.Reset()
			haveToken = true
			pendingCombinator = combDescendant
		}
	}

	for _, f := range fields {
		if f == ">" {
			flush()
			pendingCombinator = combChild
			continue
		}
		cur.WriteString(f)
	}
	flush()

	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("empty combinator chain")
	}
	return tokens, combs, nil
}

func splitOnWhitespaceKeepingBrackets(s string) []string {
	var out []string
	depth := 0
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '[':
			depth++
			cur.WriteByte(ch)
		case ch == ']':
			if depth > 0 {
				depth--
			}
			cur.WriteByte(ch)
		case ch == ' ' || ch == '\t' || ch == '\n':
			if depth > 0 {
				cur.WriteByte(ch)
			} else {
				flush()
			}
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return out
}

// parseCompound parses a single compound selector like
// "div.main#hero[data-x=1][data-y~=two]".
func parseCompound(tok string) (compound, error) {
	var c compound
	i := 0
	n := len(tok)

	readUntil := func(stops string) string {
		start := i
		for i < n && !strings.ContainsRune(stops, rune(tok[i])) {
			i++
		}
		return tok[start:i]
	}

	if i < n && tok[i] != '.' && tok[i] != '#' && tok[i] != '[' {
		c.tag = readUntil(".#[")
	}

	for i < n {
		switch tok[i] {
		case '.':
			i++
			c.classes = append(c.classes, readUntil(".#["))
		case '#':
			i++
			c.id = readUntil(".#[")
		case '[':
			i++
			body := readUntil("]")
			if i < n && tok[i] == ']' {
				i++
			}
			at, err := parseAttrTest(body)
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, at)
		default:
			return c, fmt.Errorf("unexpected character %q in selector token %q", tok[i], tok)
		}
	}

	if c.tag == "" && c.id == "" && len(c.classes) == 0 && len(c.attrs) == 0 {
		return c, fmt.Errorf("empty compound selector")
	}
	return c, nil
}

func parseAttrTest(body string) (attrTest, error) {
	ops := []string{"~=", "*=", "^=", "$=", "="}
	for _, op := range ops {
		if idx := strings.Index(body, op); idx >= 0 {
			name := strings.TrimSpace(body[:idx])
			value := strings.TrimSpace(body[idx+len(op):])
			value = strings.Trim(value, `"'`)
			if name == "" {
				return attrTest{}, fmt.Errorf("attribute test missing name in [%s]", body)
			}
			return attrTest{name: name, op: op, value: value}, nil
		}
	}
	name := strings.TrimSpace(body)
	if name == "" {
		return attrTest{}, fmt.Errorf("empty attribute test []")
	}
	return attrTest{name: name}, nil
}
