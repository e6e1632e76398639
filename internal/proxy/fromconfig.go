package proxy

import (
	"github.com/edgecomet/themeproxy/internal/config"
	"github.com/edgecomet/themeproxy/internal/driver"
	"github.com/edgecomet/themeproxy/internal/pyref"
	"github.com/edgecomet/themeproxy/pkg/pattern"
)

// FromSpec binds a config.RouteSpec (the config package's fasthttp-free
// description of a <proxy> element) to a live Route, wiring in the pyref
// registry, source location, and themeing engine the config package
// deliberately doesn't depend on. engine may be nil for routes that proxy
// without theming.
func FromSpec(spec *config.RouteSpec, registry *pyref.Registry, sourceLocation string, engine *driver.Engine) *Route {
	var predicates []Predicate
	if spec.PathPrefix != "" {
		predicates = append(predicates, PathPredicate{Prefix: spec.PathPrefix})
	}
	if spec.Domain != "" {
		predicates = append(predicates, DomainPredicate{Domain: spec.Domain})
	}
	if spec.Header[0] != "" {
		// spec.Header[1] already passed pattern.Compile validation in
		// config.Load; a second compile failure here can't happen in
		// practice, but falls back to a pattern that never matches rather
		// than panicking on a nil Pattern.
		compiled, _ := pattern.Compile(spec.Header[1])
		predicates = append(predicates, HeaderPredicate{Name: spec.Header[0], Pattern: compiled})
	}
	if spec.RequestHeader != "" {
		predicates = append(predicates, RequestHeaderPredicate{Name: spec.RequestHeader})
	}
	if spec.PyrefMatch != nil {
		predicates = append(predicates, PyrefPredicate{Ref: *spec.PyrefMatch, Registry: registry})
	}

	dest := &Dest{
		Href:           spec.DestHref,
		PyrefRef:       spec.DestPyref,
		Next:           spec.DestNext,
		SourceLocation: sourceLocation,
		Registry:       registry,
	}

	route := &Route{
		Match:           AllPredicate{Predicates: predicates},
		StripPrefix:     spec.StripPrefix,
		Dest:            dest,
		KeepHost:        spec.KeepHost,
		StripScriptName: spec.StripScriptName,
		OrigBase:        spec.OrigBase,
		Theme:           engine,
	}
	for _, m := range spec.RequestMods {
		route.RequestMods = append(route.RequestMods, &RequestMod{Header: m.Header, Content: m.Content, PyrefRef: m.Pyref})
	}
	for _, m := range spec.ResponseMods {
		route.ResponseMods = append(route.ResponseMods, &ResponseMod{Header: m.Header, Content: m.Content, PyrefRef: m.Pyref, RewriteLinks: m.RewriteLinks})
	}
	return route
}
