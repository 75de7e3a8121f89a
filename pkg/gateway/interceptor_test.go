package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebites/bytebites-core/internal/httpio"
	"github.com/bytebites/bytebites-core/internal/testutil/fixtures"
	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

const goodToken = "good.token.value"

// forwarded records what the next handler saw.
type forwarded struct {
	called   bool
	header   http.Header
	identity auth.Identity
	hasID    bool
}

func (f *forwarded) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.called = true
		f.header = r.Header.Clone()
		f.identity, f.hasID = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

// tokenTable accepts goodToken for the given identity and fails every
// other token with err.
func tokenTable(id auth.Identity, err error) auth.TokenValidator {
	return auth.TokenValidatorFunc(func(_ context.Context, token string) (*auth.Claims, error) {
		if token == goodToken {
			return &auth.Claims{Subject: id.Subject, Roles: id.Roles}, nil
		}
		return nil, err
	})
}

type interceptorHarness struct {
	fwd     *forwarded
	icpt    *Interceptor
	metrics *Metrics
	logs    *bytes.Buffer
}

func newInterceptorHarness(t *testing.T, v auth.TokenValidator) *interceptorHarness {
	t.Helper()
	fwd := &forwarded{}
	logs := &bytes.Buffer{}
	m := NewMetrics(prometheus.NewRegistry())
	icpt := NewInterceptor(v, DefaultOpenEndpoints, fwd.handler(),
		WithLogger(slog.New(slog.NewJSONHandler(logs, nil))),
		WithMetrics(m),
	)
	return &interceptorHarness{fwd: fwd, icpt: icpt, metrics: m, logs: logs}
}

func (h *interceptorHarness) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.icpt.ServeHTTP(rec, r)
	return rec
}

func customer() auth.Identity {
	return auth.Identity{Subject: fixtures.CustomerEmail, Roles: auth.RoleSet{auth.RoleCustomer}}
}

func TestInterceptor_AuthenticatedRequestIsRewritten(t *testing.T) {
	t.Parallel()
	id := auth.Identity{Subject: fixtures.AdminEmail, Roles: auth.RoleSet{auth.RoleAdmin, auth.RoleCustomer}}
	h := newInterceptorHarness(t, tokenTable(id, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/my-orders", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	rec := h.do(req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, h.fwd.called)
	assert.Equal(t, fixtures.AdminEmail, h.fwd.header.Get(auth.HeaderAuthUser))
	assert.Equal(t, "ADMIN,CUSTOMER", h.fwd.header.Get(auth.HeaderAuthRoles))
	assert.True(t, h.fwd.hasID)
	assert.Equal(t, id, h.fwd.identity)
	assert.Empty(t, req.Header.Get(auth.HeaderAuthUser), "the inbound request is not mutated")
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.decisions.WithLabelValues(OutcomeAllowed, "")))
}

func TestInterceptor_SpoofedHeadersAreReplaced(t *testing.T) {
	t.Parallel()
	h := newInterceptorHarness(t, tokenTable(customer(), nil))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/my-orders", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	req.Header.Set(auth.HeaderAuthUser, fixtures.AdminEmail)
	req.Header.Add(auth.HeaderAuthRoles, "ADMIN")
	req.Header.Add(auth.HeaderAuthRoles, "RESTAURANT_OWNER")
	req.Header.Set(auth.HeaderCallerService, "orders")
	h.do(req)

	require.True(t, h.fwd.called)
	assert.Equal(t, []string{fixtures.CustomerEmail}, h.fwd.header.Values(auth.HeaderAuthUser))
	assert.Equal(t, []string{"CUSTOMER"}, h.fwd.header.Values(auth.HeaderAuthRoles))
	assert.Empty(t, h.fwd.header.Values(auth.HeaderCallerService))
}

func TestInterceptor_EmptyRoleSetDropsRolesHeader(t *testing.T) {
	t.Parallel()
	h := newInterceptorHarness(t, tokenTable(auth.Identity{Subject: fixtures.CustomerEmail}, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/my-orders", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	req.Header.Set(auth.HeaderAuthRoles, "ADMIN")
	h.do(req)

	require.True(t, h.fwd.called)
	assert.Equal(t, fixtures.CustomerEmail, h.fwd.header.Get(auth.HeaderAuthUser))
	assert.Empty(t, h.fwd.header.Values(auth.HeaderAuthRoles))
}

func TestInterceptor_OpenEndpoints(t *testing.T) {
	t.Parallel()

	for _, path := range DefaultOpenEndpoints {
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			h := newInterceptorHarness(t, tokenTable(customer(), sserr.MalformedToken(nil)))

			req := httptest.NewRequest(http.MethodPost, path, nil)
			req.Header.Set("Authorization", "Bearer garbage")
			req.Header.Set(auth.HeaderAuthUser, fixtures.AdminEmail)
			req.Header.Set(auth.HeaderAuthRoles, "ADMIN")
			rec := h.do(req)

			require.Equal(t, http.StatusNoContent, rec.Code, "open endpoints ignore the token")
			assert.Empty(t, h.fwd.header.Values(auth.HeaderAuthUser))
			assert.Empty(t, h.fwd.header.Values(auth.HeaderAuthRoles))
			assert.False(t, h.fwd.hasID)
			assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.decisions.WithLabelValues(OutcomeOpen, "")))
		})
	}
}

func TestInterceptor_OpenEndpointMatchIsExact(t *testing.T) {
	t.Parallel()

	paths := []string{
		"/auth/login/",
		"/auth/login/extra",
		"/auth/loginx",
		"/AUTH/LOGIN",
		"/auth%2Flogin",
		"/auth",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			h := newInterceptorHarness(t, tokenTable(customer(), nil))
			rec := h.do(httptest.NewRequest(http.MethodPost, path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, h.fwd.called)
		})
	}
}

func TestInterceptor_RejectionsLookAlike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		err    error
		code   sserr.Code
	}{
		{name: "no header", header: "", code: sserr.CodeMissingAuthHeader},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", code: sserr.CodeMissingAuthHeader},
		{name: "blank bearer", header: "Bearer   ", code: sserr.CodeMissingAuthHeader},
		{name: "malformed", header: "Bearer x", err: sserr.MalformedToken(nil), code: sserr.CodeMalformedToken},
		{name: "bad signature", header: "Bearer x", err: sserr.SignatureInvalid(nil), code: sserr.CodeSignatureInvalid},
		{name: "expired", header: "Bearer x", err: sserr.TokenExpired(nil), code: sserr.CodeTokenExpired},
		{name: "unknown key", header: "Bearer x", err: sserr.UnknownKey("k1", nil), code: sserr.CodeUnknownKey},
		{name: "uncoded failure", header: "Bearer x", err: io.ErrUnexpectedEOF, code: sserr.CodeInternal},
	}

	var bodies []string
	for _, tt := range tests {
		h := newInterceptorHarness(t, tokenTable(customer(), tt.err))
		req := httptest.NewRequest(http.MethodGet, "/api/orders/o-1", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		req.Header.Set(auth.HeaderAuthRoles, "ADMIN")
		rec := h.do(req)

		require.Equal(t, http.StatusUnauthorized, rec.Code, tt.name)
		assert.False(t, h.fwd.called, tt.name)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer", tt.name)
		bodies = append(bodies, rec.Body.String())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(h.logs.Bytes(), &entry), tt.name)
		assert.Equal(t, "WARN", entry["level"], tt.name)
		assert.Equal(t, string(tt.code), entry["code"], tt.name)
		assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.decisions.WithLabelValues(OutcomeRejected, string(tt.code))), tt.name)
	}

	var body httpio.ErrorBody
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &body))
	assert.Equal(t, unauthenticated, body)
	for i, b := range bodies {
		assert.Equal(t, bodies[0], b, "body %d differs", i)
	}
}

func TestInterceptor_ClaimsWithoutSubjectAreRejected(t *testing.T) {
	t.Parallel()
	h := newInterceptorHarness(t, tokenTable(auth.Identity{Roles: auth.RoleSet{auth.RoleAdmin}}, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/o-1", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	rec := h.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, h.fwd.called)
}
