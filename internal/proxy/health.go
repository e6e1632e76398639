package proxy

import (
	"github.com/valyala/fasthttp"

	"github.com/edgecomet/themeproxy/internal/common/httputil"
)

// healthPath is a fixed system endpoint handled ahead of route matching,
// mirroring the teacher's internal_server JSON status surface
// (internal/edge/internal_server) rather than this system's proxied-content
// responses.
const healthPath = "/_themeproxy/healthz"

// Status reports the in-memory shape of a Set for the health endpoint.
type Status struct {
	Routes int `json:"routes"`
}

// HandleHealth answers healthPath with a JSON status payload, reusing the
// teacher's unified JSONData response helper instead of a bare text body.
func (s *Set) HandleHealth(ctx *fasthttp.RequestCtx) {
	httputil.JSONData(ctx, Status{Routes: len(s.Routes)}, fasthttp.StatusOK)
}

// isHealthCheck reports whether ctx targets healthPath. Handle checks it
// before trying the configured route list, so an operator's health checks
// never depend on any <proxy> entry matching.
func (s *Set) isHealthCheck(ctx *fasthttp.RequestCtx) bool {
	return string(ctx.Path()) == healthPath
}
