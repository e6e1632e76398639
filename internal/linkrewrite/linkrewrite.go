// Package linkrewrite remaps absolute URLs in a proxied HTML response body,
// its Location header, and its Set-Cookie domain from the backend's URL
// space into the public application's URL space (spec §4.6).
package linkrewrite

import (
	"mime"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/edgecomet/themeproxy/internal/dom"
)

// urlAttrs lists the HTML attributes treated as carrying a URL (spec
// §4.6: "href/src/action-style links"). This is deliberately not
// tag-scoped: any element carrying one of these attributes gets it
// absolutized and remapped.
var urlAttrs = []string{"href", "src", "action"}

// Rewriter holds the three base URLs spec §4.6 requires, normalized to
// have a trailing slash.
type Rewriter struct {
	OrigBase    string // public application URL
	ProxiedBase string // backend URL the proxy config addresses
	ProxiedURL  string // the exact URL actually fetched for this request
}

// New builds a Rewriter, normalizing orig/proxied base to end with "/".
func New(origBase, proxiedBase, proxiedURL string) *Rewriter {
	return &Rewriter{
		OrigBase:    ensureTrailingSlash(origBase),
		ProxiedBase: ensureTrailingSlash(proxiedBase),
		ProxiedURL:  proxiedURL,
	}
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// IsHTMLContentType reports whether a Content-Type header value's media
// type is text/html, ignoring any parameters such as charset (spec §9
// Design Notes: "the source has an unreachable branch when content_type
// carries parameters... match on the media type only").
func IsHTMLContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.EqualFold(mediaType, "text/html")
}

// Remap applies spec §4.6's rewriting rule to a single absolute link: if
// it starts with ProxiedBase, rewrite it relative to OrigBase; otherwise
// pass it through unchanged (property 5 in spec §8).
func (r *Rewriter) Remap(link string) string {
	if strings.HasPrefix(link, r.ProxiedBase) {
		return r.OrigBase + link[len(r.ProxiedBase):]
	}
	return link
}

// RewriteBody parses body with base_url = ProxiedURL, absolutizes every
// href/src/action attribute, remaps those under ProxiedBase, and
// re-serializes.
func (r *Rewriter) RewriteBody(body []byte) ([]byte, error) {
	base, err := url.Parse(r.ProxiedURL)
	if err != nil {
		return nil, err
	}

	doc, err := dom.Parse(body)
	if err != nil {
		return nil, err
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attrName := range urlAttrs {
				v, ok := dom.Attr(n, attrName)
				if !ok || v == "" {
					continue
				}
				abs, err := absolutize(base, v)
				if err != nil {
					continue
				}
				dom.SetAttr(n, attrName, r.Remap(abs))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Root)

	return doc.Bytes()
}

func absolutize(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// RewriteLocation resolves a redirect Location header against ProxiedURL
// and applies the same remapping as body links.
func (r *Rewriter) RewriteLocation(location string) string {
	base, err := url.Parse(r.ProxiedURL)
	if err != nil {
		return location
	}
	abs, err := absolutize(base, location)
	if err != nil {
		return location
	}
	return r.Remap(abs)
}

var cookieDomainRe = regexp.MustCompile(`(?i)(domain="?)([a-zA-Z0-9._-]*)("?)`)

// RewriteSetCookie replaces a Domain=<old> attribute in a Set-Cookie value
// when <old> equals the backend host (ProxiedURL's host), replacing it with
// OrigBase's host. The original implementation referenced an undefined
// "req" variable here (spec §9 Open Question); OrigBase's host is used in
// its place.
// Wildcard domains (e.g. ".other.example") never match exactly and so
// pass through unchanged, a documented limitation carried from spec §4.6.
func (r *Rewriter) RewriteSetCookie(cookie string) string {
	oldDomain := hostOf(r.ProxiedURL)
	newDomain := hostOf(r.OrigBase)

	return cookieDomainRe.ReplaceAllStringFunc(cookie, func(m string) string {
		groups := cookieDomainRe.FindStringSubmatch(m)
		if strings.EqualFold(groups[2], oldDomain) {
			return groups[1] + newDomain + groups[3]
		}
		return m
	})
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
