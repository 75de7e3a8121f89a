package issuer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebites/bytebites-core/internal/httpio"
	"github.com/bytebites/bytebites-core/internal/testutil/fixtures"
	"github.com/bytebites/bytebites-core/pkg/auth"
	"github.com/bytebites/bytebites-core/pkg/keys"
	"github.com/bytebites/bytebites-core/pkg/ratelimit"
)

func newTestServer(t *testing.T, limiter ratelimit.Limiter) (*httptest.Server, *harness) {
	t.Helper()
	h := newHarness(t, limiter)
	handler, err := NewHandler(h.svc, h.keys, testConfig(), h.registry)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, h
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	return postAs(t, srv, path, body, nil)
}

// postAs sends body with the identity headers the gateway would assert for
// id. A nil id sends none.
func postAs(t *testing.T, srv *httptest.Server, path, body string, id *auth.Identity) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		for k, v := range auth.IdentityHeaders(*id) {
			req.Header.Set(k, v)
		}
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func identity(subject string, roles ...string) *auth.Identity {
	return &auth.Identity{Subject: subject, Roles: auth.NewRoleSet(roles...)}
}

func credentials(email, password string) string {
	b, _ := json.Marshal(Credentials{Email: email, Password: password})
	return string(b)
}

func decodeError(t *testing.T, resp *http.Response) httpio.ErrorBody {
	t.Helper()
	var body httpio.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandler_Register(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	resp := post(t, srv, PathRegister, credentials(fixtures.CustomerEmail, fixtures.Password))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, RegisteredMessage, string(body))

	resp = post(t, srv, PathRegister, credentials(fixtures.CustomerEmail, fixtures.Password))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONF_002", decodeError(t, resp).Code)

	resp = post(t, srv, PathRegister, `{"email":"x@example.com","password":"longenough","role":"ADMIN"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown fields cannot smuggle a role")

	resp = post(t, srv, PathRegister, credentials("bad", fixtures.Password))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_RegisterOwnerThenLogin(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	resp := postAs(t, srv, PathRegisterOwner, credentials(fixtures.OwnerEmail, fixtures.Password),
		identity(fixtures.AdminEmail, "ADMIN"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post(t, srv, PathLogin, credentials(fixtures.OwnerEmail, fixtures.Password))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "Bearer", raw["tokenType"])
	assert.Equal(t, "ROLE_RESTAURANT_OWNER", raw["role"])
	assert.Equal(t, float64(3600), raw["expiresIn"])
	assert.Contains(t, raw, "refreshToken")
	assert.Nil(t, raw["refreshToken"])
	assert.Equal(t, 2, strings.Count(raw["token"].(string), "."))
}

func TestHandler_RegisterOwnerRequiresAdmin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		caller     *auth.Identity
		wantStatus int
		wantCode   string
	}{
		{name: "anonymous", caller: nil, wantStatus: http.StatusUnauthorized, wantCode: "AUTHZ_002"},
		{name: "customer", caller: identity(fixtures.CustomerEmail, "CUSTOMER"), wantStatus: http.StatusForbidden, wantCode: "AUTHZ_001"},
		{name: "owner", caller: identity(fixtures.OwnerEmail, "RESTAURANT_OWNER"), wantStatus: http.StatusForbidden, wantCode: "AUTHZ_001"},
		{name: "roles header without user", caller: identity("", "ADMIN"), wantStatus: http.StatusUnauthorized, wantCode: "AUTHZ_002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := newTestServer(t, nil)
			creds := credentials("mallory@example.com", fixtures.Password)

			resp := postAs(t, srv, PathRegisterOwner, creds, tt.caller)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Code)

			resp = post(t, srv, PathLogin, creds)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "no account may exist after a denied registration")
		})
	}
}

func TestHandler_LoginFailuresLookAlike(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	post(t, srv, PathRegister, credentials(fixtures.CustomerEmail, fixtures.Password))

	wrong := post(t, srv, PathLogin, credentials(fixtures.CustomerEmail, fixtures.WrongPassword))
	unknown := post(t, srv, PathLogin, credentials("ghost@example.com", fixtures.Password))

	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	assert.Equal(t, decodeError(t, wrong), decodeError(t, unknown))
}

func TestHandler_LoginRateLimited(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Limit: 1, Window: time.Minute}, nil)
	srv, _ := newTestServer(t, limiter)

	post(t, srv, PathLogin, credentials(fixtures.CustomerEmail, fixtures.WrongPassword))
	resp := post(t, srv, PathLogin, credentials(fixtures.CustomerEmail, fixtures.WrongPassword))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "RATE_001", decodeError(t, resp).Code)
}

func TestHandler_JWKS(t *testing.T) {
	t.Parallel()
	srv, h := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + keys.JWKSPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"))

	var set keys.KeySet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&set))
	require.Len(t, set.Keys, 1)
	jwk, ok := set.Find(fixtures.KeyID)
	require.True(t, ok)
	pub, err := jwk.RSAPublicKey()
	require.NoError(t, err)
	assert.True(t, pub.Equal(h.keys.PublicKey()))
}

func TestHandler_Metrics(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	post(t, srv, PathRegister, credentials(fixtures.CustomerEmail, fixtures.Password))
	post(t, srv, PathRegister, credentials(fixtures.CustomerEmail, fixtures.Password))
	post(t, srv, PathLogin, credentials(fixtures.CustomerEmail, fixtures.Password))

	resp, err := srv.Client().Get(srv.URL + PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), `auth_registrations_total{result="success"} 1`)
	assert.Contains(t, string(body), `auth_registrations_total{result="duplicate"} 1`)
	assert.Contains(t, string(body), `auth_logins_total{result="success"} 1`)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + PathLogin)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
