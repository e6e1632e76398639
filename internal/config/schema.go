// Package config parses the XML configuration format spec §7 describes:
// <server-settings>, a list of <proxy> routes, and one or more <ruleset>
// blocks of themeing <rule>s. Structure grounded on Deliverance's
// ProxySettings.parse_xml / RuleSet XML schema (original_source/deliverance).
package config

import "encoding/xml"

// Document is the top-level XML document.
type Document struct {
	XMLName       xml.Name          `xml:"proxyconfig"`
	ServerSettings ServerSettingsXML `xml:"server-settings"`
	Proxies       []ProxyXML        `xml:"proxy"`
	RuleSets      []RuleSetXML      `xml:"ruleset"`
}

// ServerSettingsXML mirrors Deliverance's <server-settings> element.
type ServerSettingsXML struct {
	Host              string `xml:"host,attr"`
	Port              string `xml:"port,attr"`
	ExecutePyref      string `xml:"execute-pyref,attr"`
	DisplayLocalFiles string `xml:"display-local-files,attr"`
	DevAllow          string `xml:"dev-allow,attr"`
	DevDeny           string `xml:"dev-deny,attr"`
	DevHtpasswd       string `xml:"dev-htpasswd,attr"`
	DevUser           string `xml:"dev-user,attr"`
	DevExpiration     string `xml:"dev-expiration,attr"`
}

// ProxyXML is one <proxy> route entry (proxy.py's Proxy/ProxyMatch).
type ProxyXML struct {
	Path            string   `xml:"path,attr"`
	Domain          string   `xml:"domain,attr"`
	Header          string   `xml:"header,attr"`          // "Name: value"
	RequestHeader   string   `xml:"request-header,attr"`  // "Name" presence-only
	Pyref           string   `xml:"pyref,attr"`
	StripPrefix     string   `xml:"strip-prefix,attr"`
	KeepHost        string   `xml:"keep-host,attr"`
	StripScriptName string   `xml:"strip-script-name,attr"`
	OrigBase        string   `xml:"orig-base,attr"`
	Dest            DestXML  `xml:"dest"`
	Requests        []ModXML `xml:"request"`
	Responses       []ModXML `xml:"response"`
}

// DestXML is a <dest> child of <proxy>: exactly one of href/pyref/next.
type DestXML struct {
	Href  string `xml:"href,attr"`
	Pyref string `xml:"pyref,attr"`
	Next  string `xml:"next,attr"`
}

// ModXML is a <request>/<response> modifier: either pyref, or header+content.
// RewriteLinks only applies on <response> elements (proxy.py's
// ProxyResponseModification.parse_xml parses it only when el.tag ==
// "response"); it is independent of, and combinable with, pyref/header.
type ModXML struct {
	Pyref        string `xml:"pyref,attr"`
	Header       string `xml:"header,attr"`
	Content      string `xml:"content,attr"`
	RewriteLinks string `xml:"rewrite-links,attr"`
}

// RuleSetXML is a <ruleset> block of themeing rules.
type RuleSetXML struct {
	DefaultTheme string    `xml:"default-theme,attr"`
	Rules        []RuleXML `xml:"rule"`
}

// RuleXML is a single <rule>, grounded on Deliverance's rules.py schema.
// Its actions are captured with xml:",any" rather than one slice per
// element name, so ActionXML.XMLName preserves the actions' true
// declaration order (spec §4.2: actions apply in document order) instead
// of being grouped by tag the way separate typed slices would.
type RuleXML struct {
	Class            string      `xml:"class,attr"`
	Theme            string      `xml:"theme,attr"`
	SuppressStandard string      `xml:"suppress-standard,attr"`
	Actions          []ActionXML `xml:",any"`
}

// ActionXML is one action element within a <rule>; XMLName.Local is one of
// "replace"/"append"/"prepend"/"drop".
type ActionXML struct {
	XMLName     xml.Name
	Content     string `xml:"content,attr"`
	Theme       string `xml:"theme,attr"`
	IfContent   string `xml:"if-content,attr"`
	ContentHref string `xml:"content-href,attr"`
	Move        string `xml:"move,attr"`
	NoContent   string `xml:"nocontent,attr"`
	NoTheme     string `xml:"notheme,attr"`
	ManyContent string `xml:"manycontent,attr"`
	ManyTheme   string `xml:"manytheme,attr"`
}

// ParseDocument unmarshals raw XML bytes into a Document. Structural XML
// errors (malformed tags, etc) surface as Go's xml.SyntaxError; semantic
// validation happens in Load.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
