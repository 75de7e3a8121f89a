package downstream

import (
	"net/http"

	"github.com/bytebites/bytebites-core/pkg/auth"
)

// PropagatingRoundTripper forwards the identity on the request context to
// another service inside the trust boundary, as the same headers the
// gateway sets.
//
//	client := &http.Client{
//	    Transport: downstream.NewPropagatingRoundTripper("orders", nil),
//	}
type PropagatingRoundTripper struct {
	serviceName string
	wrapped     http.RoundTripper
}

// NewPropagatingRoundTripper wraps transport. A nil transport uses
// http.DefaultTransport.
func NewPropagatingRoundTripper(serviceName string, transport http.RoundTripper) *PropagatingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &PropagatingRoundTripper{serviceName: serviceName, wrapped: transport}
}

// RoundTrip implements http.RoundTripper. Requests whose context carries
// no identity are sent unchanged.
func (t *PropagatingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return t.wrapped.RoundTrip(r)
	}

	clone := r.Clone(r.Context())
	clone.Header.Del(auth.HeaderAuthRoles)
	for k, v := range auth.IdentityHeaders(id) {
		clone.Header.Set(k, v)
	}
	if t.serviceName != "" {
		clone.Header.Set(auth.HeaderCallerService, t.serviceName)
	}
	return t.wrapped.RoundTrip(clone)
}
