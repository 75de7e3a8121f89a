package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/bytebites/bytebites-core/internal/httpio"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Router proxies requests to the upstream of the longest matching route.
type Router struct {
	routes  []Route
	proxies []*httputil.ReverseProxy
	logger  *slog.Logger
	metrics *Metrics
}

// NewRouter builds a router over routes, which must be ordered longest
// prefix first as returned by ParseRoutes. A nil transport uses
// http.DefaultTransport.
func NewRouter(routes []Route, transport http.RoundTripper, opts ...Option) *Router {
	o := buildOptions(opts)
	rt := &Router{routes: routes, logger: o.logger, metrics: o.metrics}
	for _, route := range routes {
		target := route.Target
		rt.proxies = append(rt.proxies, &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
			},
			Transport:    transport,
			ErrorHandler: rt.proxyError,
		})
	}
	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for i, route := range rt.routes {
		if !route.matches(r.URL.Path) {
			continue
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		rt.proxies[i].ServeHTTP(rec, r)
		rt.metrics.observeUpstream(route.Prefix, rec.status, time.Since(start))
		return
	}
	httpio.WriteError(w, sserr.NotFound("no route for path"))
}

func (rt *Router) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	code := sserr.CodeUnavailableDependency
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		status = http.StatusGatewayTimeout
		code = sserr.CodeTimeoutDependency
	}
	rt.logger.ErrorContext(r.Context(), "gateway: upstream request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	httpio.WriteJSON(w, status, httpio.ErrorBody{Code: string(code), Message: "upstream unavailable"})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
