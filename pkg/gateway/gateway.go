// Package gateway is the edge of the system: it authenticates inbound
// requests and proxies them to the backend services.
//
// The handler returned by New runs the Interceptor before anything else,
// so the Router and every upstream only ever see requests whose trusted
// identity headers were set by the gateway itself.
package gateway

import (
	"net/http"

	"github.com/bytebites/bytebites-core/pkg/auth"
)

// New returns the gateway handler for cfg. transport may be nil.
func New(cfg Config, v auth.TokenValidator, transport http.RoundTripper, opts ...Option) (http.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routes, err := ParseRoutes(cfg.Routes)
	if err != nil {
		return nil, err
	}
	return NewInterceptor(v, cfg.OpenEndpoints, NewRouter(routes, transport, opts...), opts...), nil
}

// NewTransport returns a clone of http.DefaultTransport bounded by the
// configured upstream timeout.
func NewTransport(cfg Config) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = cfg.UpstreamTimeout
	return t
}
