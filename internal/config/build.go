package config

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/edgecomet/themeproxy/internal/pyref"
	"github.com/edgecomet/themeproxy/internal/selector"
	"github.com/edgecomet/themeproxy/internal/theme"
	"github.com/edgecomet/themeproxy/pkg/pattern"
)

// ServerSettings is the decoded <server-settings> block (spec §7,
// grounded on proxy.py's ProxySettings).
type ServerSettings struct {
	Host              string
	Port              string
	ExecutePyref      bool
	DisplayLocalFiles bool
	DevAllow          []string
	DevDeny           []string
	DevHtpasswd       string
	DevUser           string
	DevExpiration     string
}

// Result is everything a parsed config document produces.
type Result struct {
	Server   ServerSettings
	RuleSets []*theme.RuleSet
	Routes   []*RouteSpec
}

// RouteSpec is a config-level description of one proxy route, kept
// independent of the internal/proxy package's types so this package need
// not import fasthttp; the embedder (cmd/themeproxy) binds it to a real
// proxy.Route.
type RouteSpec struct {
	PathPrefix    string
	Domain        string
	Header        [2]string // name, value; empty if unset
	RequestHeader string
	PyrefMatch    *pyref.Ref

	StripPrefix     string
	KeepHost        bool
	StripScriptName bool
	OrigBase        string

	DestHref  string
	DestPyref *pyref.Ref
	DestNext  bool

	RequestMods  []ModSpec
	ResponseMods []ModSpec
}

// ModSpec is a decoded <request>/<response> modifier. RewriteLinks is only
// ever set on a response modifier (spec §6: "rewrite-links on response
// only"); it can be combined with either Pyref or Header/Content, or stand
// alone on its own <response rewrite-links="true"/>.
type ModSpec struct {
	Pyref        *pyref.Ref
	Header       string
	Content      string
	RewriteLinks bool
}

// Load parses and validates a config document, returning every error found
// (aggregated via go-multierror) rather than stopping at the first one, so
// an operator sees every mistake in one pass (spec §7).
func Load(data []byte, file string) (*Result, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, newSyntaxError(file, 0, "%s", err.Error())
	}

	lf := NewLineFinder(data)
	var errs *multierror.Error

	result := &Result{Server: buildServerSettings(doc.ServerSettings)}

	for _, rsXML := range doc.RuleSets {
		rs, rerrs := buildRuleSet(rsXML, file, lf)
		for _, e := range rerrs {
			errs = multierror.Append(errs, e)
		}
		result.RuleSets = append(result.RuleSets, rs)
	}

	for _, pXML := range doc.Proxies {
		route, rerrs := buildRouteSpec(pXML, file, lf)
		for _, e := range rerrs {
			errs = multierror.Append(errs, e)
		}
		if route != nil {
			result.Routes = append(result.Routes, route)
		}
	}

	if errs != nil && errs.Len() > 0 {
		return nil, errs.ErrorOrNil()
	}
	return result, nil
}

func buildServerSettings(s ServerSettingsXML) ServerSettings {
	return ServerSettings{
		Host:              orDefault(s.Host, "0.0.0.0"),
		Port:              orDefault(s.Port, "8080"),
		ExecutePyref:      parseBool(s.ExecutePyref),
		DisplayLocalFiles: parseBool(s.DisplayLocalFiles),
		DevAllow:          splitList(s.DevAllow),
		DevDeny:           splitList(s.DevDeny),
		DevHtpasswd:       s.DevHtpasswd,
		DevUser:           s.DevUser,
		DevExpiration:     s.DevExpiration,
	}
}

func buildRuleSet(rsXML RuleSetXML, file string, lf *LineFinder) (*theme.RuleSet, []error) {
	var errs []error
	rs := &theme.RuleSet{DefaultTheme: rsXML.DefaultTheme}

	for _, ruleXML := range rsXML.Rules {
		line := lf.LineOf("rule")
		rule, rerrs := buildRule(ruleXML, file, line, lf)
		errs = append(errs, rerrs...)
		rs.Rules = append(rs.Rules, rule)
	}
	return rs, errs
}

func buildRule(ruleXML RuleXML, file string, line int, lf *LineFinder) (*theme.Rule, []error) {
	var errs []error
	rule := &theme.Rule{
		Classes:          parseClasses(ruleXML.Class),
		ThemeHref:        ruleXML.Theme,
		SuppressStandard: parseBool(ruleXML.SuppressStandard),
	}

	for _, actXML := range ruleXML.Actions {
		kind, ok := actionKindFor(actXML.XMLName.Local)
		if !ok {
			errs = append(errs, newSyntaxError(file, line, "unknown action element <%s>", actXML.XMLName.Local))
			continue
		}
		actLine := lf.LineOf(actXML.XMLName.Local)
		act, aerrs := buildAction(kind, actXML, file, actLine)
		for _, e := range aerrs {
			errs = append(errs, e)
		}
		if act != nil {
			rule.Actions = append(rule.Actions, act)
		}
	}
	return rule, errs
}

func actionKindFor(tag string) (theme.ActionKind, bool) {
	switch tag {
	case "replace":
		return theme.Replace, true
	case "append":
		return theme.Append, true
	case "prepend":
		return theme.Prepend, true
	case "drop":
		return theme.Drop, true
	default:
		return 0, false
	}
}

func buildAction(kind theme.ActionKind, x ActionXML, file string, line int) (*theme.Action, []error) {
	var errs []error

	act := &theme.Action{
		Kind:        kind,
		ContentHref: x.ContentHref,
		Move:        parseBool(x.Move),
		NoContent:   parsePolicy(x.NoContent, theme.PolicyWarn),
		NoTheme:     parsePolicy(x.NoTheme, theme.PolicyWarn),
		ManyContent: parseManyPolicy(x.ManyContent),
		ManyTheme:   parseManyPolicy(x.ManyTheme),
	}

	if x.Content != "" {
		sel, err := selector.Parse(x.Content)
		if err != nil {
			errs = append(errs, newSyntaxError(file, line, "content selector: %s", err))
		} else {
			act.Content = sel
		}
	}
	if x.Theme != "" {
		sel, err := selector.Parse(x.Theme)
		if err != nil {
			errs = append(errs, newSyntaxError(file, line, "theme selector: %s", err))
		} else {
			act.Theme = sel
		}
	} else if kind != theme.Drop {
		errs = append(errs, newSyntaxError(file, line, "<%s> requires a theme selector", kind))
	}
	if x.IfContent != "" {
		sel, err := selector.Parse(x.IfContent)
		if err != nil {
			errs = append(errs, newSyntaxError(file, line, "if-content selector: %s", err))
		} else {
			act.IfContent = sel
		}
	}

	if act.Content != nil && act.Theme != nil {
		if err := theme.ValidateCompatibility(kind, act.Content.Kind, act.Theme.Kind); err != nil {
			errs = append(errs, newSyntaxError(file, line, "%s", err.Error()))
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return act, nil
}

func buildRouteSpec(pXML ProxyXML, file string, lf *LineFinder) (*RouteSpec, []error) {
	var errs []error
	line := lf.LineOf("proxy")

	route := &RouteSpec{
		PathPrefix:      pXML.Path,
		Domain:          pXML.Domain,
		RequestHeader:   pXML.RequestHeader,
		StripPrefix:     pXML.StripPrefix,
		KeepHost:        parseBool(pXML.KeepHost),
		StripScriptName: parseBool(pXML.StripScriptName),
		OrigBase:        pXML.OrigBase,
	}

	if pXML.Header != "" {
		name, value, ok := strings.Cut(pXML.Header, ":")
		if !ok {
			errs = append(errs, newSyntaxError(file, line, "header match must be \"Name: value\""))
		} else {
			value = strings.TrimSpace(value)
			if _, err := pattern.Compile(value); err != nil {
				errs = append(errs, newSyntaxError(file, line, "header match value: %s", err))
			}
			route.Header = [2]string{strings.TrimSpace(name), value}
		}
	}
	if pXML.Pyref != "" {
		ref, err := pyref.ParseRef(pXML.Pyref)
		if err != nil {
			errs = append(errs, newSyntaxError(file, line, "%s", err.Error()))
		} else {
			route.PyrefMatch = &ref
		}
	}

	destSet := 0
	if pXML.Dest.Href != "" {
		destSet++
		route.DestHref = pXML.Dest.Href
	}
	if pXML.Dest.Pyref != "" {
		destSet++
		ref, err := pyref.ParseRef(pXML.Dest.Pyref)
		if err != nil {
			errs = append(errs, newSyntaxError(file, line, "%s", err.Error()))
		} else {
			route.DestPyref = &ref
		}
	}
	if parseBool(pXML.Dest.Next) {
		destSet++
		route.DestNext = true
	}
	if destSet != 1 {
		errs = append(errs, newSyntaxError(file, line, "dest must specify exactly one of href, pyref, or next"))
	}

	for _, m := range pXML.Requests {
		mod, err := buildModSpec(m, file, line, false)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		route.RequestMods = append(route.RequestMods, mod)
	}
	for _, m := range pXML.Responses {
		mod, err := buildModSpec(m, file, line, true)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		route.ResponseMods = append(route.ResponseMods, mod)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return route, nil
}

func buildModSpec(m ModXML, file string, line int, isResponse bool) (ModSpec, error) {
	var rewriteLinks bool
	if isResponse {
		rewriteLinks = parseBool(m.RewriteLinks)
	}

	if m.Pyref != "" {
		ref, err := pyref.ParseRef(m.Pyref)
		if err != nil {
			return ModSpec{}, newSyntaxError(file, line, "%s", err.Error())
		}
		return ModSpec{Pyref: &ref, RewriteLinks: rewriteLinks}, nil
	}
	if m.Header != "" && m.Content != "" {
		return ModSpec{Header: m.Header, Content: m.Content, RewriteLinks: rewriteLinks}, nil
	}
	if rewriteLinks {
		return ModSpec{RewriteLinks: true}, nil
	}
	return ModSpec{}, newSyntaxError(file, line, "request/response modifier needs pyref, header+content, or rewrite-links")
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

func parseClasses(s string) map[string]bool {
	out := map[string]bool{}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		out["default"] = true
		return out
	}
	for _, f := range fields {
		out[f] = true
	}
	return out
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parsePolicy(s string, def theme.Policy) theme.Policy {
	switch s {
	case "ignore":
		return theme.PolicyIgnore
	case "warn":
		return theme.PolicyWarn
	case "abort":
		return theme.PolicyAbort
	default:
		return def
	}
}

// parseManyPolicy accepts "abort", "ignore-first", "ignore-last",
// "warn-first", or "warn-last", defaulting to warn:first (spec §6).
func parseManyPolicy(s string) theme.ManyPolicy {
	if s == "" {
		return theme.DefaultManyPolicy()
	}
	policyPart, fallbackPart, hasFallback := strings.Cut(s, "-")
	p := parsePolicy(policyPart, theme.PolicyWarn)
	fb := theme.FallbackFirst
	if hasFallback && fallbackPart == "last" {
		fb = theme.FallbackLast
	}
	return theme.ManyPolicy{Policy: p, Fallback: fb}
}
