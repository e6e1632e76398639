package driver

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/common/urlutil"
	"github.com/edgecomet/themeproxy/internal/dom"
	"github.com/edgecomet/themeproxy/internal/theme"
)

// NewFetcher builds a theme.ResourceFetcher for content_href/theme href
// resolution (spec §4.4 step 2), supporting http(s):// URLs over the
// proxy's own fasthttp client and file:// local paths. Every http(s)
// fetch is guarded by urlutil's SSRF IP-literal check before the request
// goes out, since a themeing engine fetching operator-configured URLs is
// exactly the kind of outbound call that check exists for.
func NewFetcher(client *fasthttp.Client) theme.ResourceFetcher {
	return func(href string) (*dom.Document, error) {
		if path, ok := strings.CutPrefix(href, "file://"); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return dom.Parse(data)
		}

		u, err := url.Parse(href)
		if err != nil {
			return nil, fmt.Errorf("parsing resource href %q: %w", href, err)
		}
		if err := urlutil.ValidateHostNotPrivateIP(u.Hostname()); err != nil {
			return nil, err
		}

		status, body, err := client.Get(nil, href)
		if err != nil {
			return nil, fmt.Errorf("fetching resource %q: %w", href, err)
		}
		if status != fasthttp.StatusOK {
			return nil, fmt.Errorf("fetching resource %q: status %d", href, status)
		}
		return dom.Parse(body)
	}
}
