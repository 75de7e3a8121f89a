package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebites/bytebites-core/internal/httpio"
	"github.com/bytebites/bytebites-core/internal/testutil/fixtures"
	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

func TestMiddleware_AdoptsIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		user   string
		roles  string
		caller string
		want   *auth.Identity
	}{
		{
			name:  "both headers",
			user:  fixtures.CustomerEmail,
			roles: "CUSTOMER,ADMIN",
			want:  &auth.Identity{Subject: fixtures.CustomerEmail, Roles: auth.RoleSet{auth.RoleCustomer, auth.RoleAdmin}},
		},
		{
			name:  "authority prefixes and spaces are normalized",
			user:  fixtures.OwnerEmail,
			roles: " ROLE_RESTAURANT_OWNER , CUSTOMER,",
			want:  &auth.Identity{Subject: fixtures.OwnerEmail, Roles: auth.RoleSet{auth.RoleRestaurantOwner, auth.RoleCustomer}},
		},
		{name: "missing roles", user: fixtures.CustomerEmail},
		{name: "missing user", roles: "ADMIN"},
		{name: "blank user", user: "   ", roles: "ADMIN"},
		{name: "nothing"},
		{name: "caller only", caller: "restaurants"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				got    auth.Identity
				hasID  bool
				caller string
			)
			h := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, hasID = auth.IdentityFromContext(r.Context())
				caller, _ = auth.CallerServiceFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/orders/my-orders", nil)
			if tt.user != "" {
				req.Header.Set(auth.HeaderAuthUser, tt.user)
			}
			if tt.roles != "" {
				req.Header.Set(auth.HeaderAuthRoles, tt.roles)
			}
			if tt.caller != "" {
				req.Header.Set(auth.HeaderCallerService, tt.caller)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.want == nil {
				assert.False(t, hasID)
			} else {
				require.True(t, hasID)
				assert.Equal(t, *tt.want, got)
				assert.Equal(t, []string{"ROLE_" + string(tt.want.Roles[0])}, got.Roles.Authorities()[:1])
			}
			assert.Equal(t, tt.caller, caller)
		})
	}
}

func TestGuard_Require(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		id     *auth.Identity
		status int
		code   sserr.Code
	}{
		{name: "allowed", id: &auth.Identity{Subject: fixtures.CustomerEmail, Roles: auth.RoleSet{auth.RoleCustomer}}, status: http.StatusNoContent},
		{name: "admin also allowed", id: &auth.Identity{Subject: fixtures.AdminEmail, Roles: auth.RoleSet{auth.RoleAdmin}}, status: http.StatusNoContent},
		{name: "wrong role", id: &auth.Identity{Subject: fixtures.OwnerEmail, Roles: auth.RoleSet{auth.RoleRestaurantOwner}}, status: http.StatusForbidden, code: sserr.CodeUnauthorized},
		{name: "no identity", status: http.StatusUnauthorized, code: sserr.CodeNoIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logs := &bytes.Buffer{}
			g := NewGuard(slog.New(slog.NewJSONHandler(logs, nil)), nil)
			h := g.Require(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}, auth.RoleCustomer, auth.RoleAdmin)

			req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			if tt.id != nil {
				req = req.WithContext(auth.ContextWithIdentity(context.Background(), *tt.id))
			}
			rec := httptest.NewRecorder()
			h(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.code == "" {
				assert.Empty(t, logs.String())
				return
			}
			var body httpio.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tt.code), body.Code)
			assert.Contains(t, logs.String(), `"level":"WARN"`)
			assert.Contains(t, logs.String(), string(tt.code))
		})
	}
}

func TestGuard_CustomErrorWriter(t *testing.T) {
	t.Parallel()

	var written error
	g := NewGuard(nil, func(w http.ResponseWriter, err error) {
		written = err
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	g.Require(func(http.ResponseWriter, *http.Request) { t.Error("handler must not run") }, auth.RoleAdmin)(
		rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, sserr.HasCode(written, sserr.CodeNoIdentity))
}

func TestPropagatingRoundTripper(t *testing.T) {
	t.Parallel()

	seen := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
	}))
	t.Cleanup(srv.Close)
	client := &http.Client{Transport: NewPropagatingRoundTripper("orders", nil)}

	id := auth.Identity{Subject: fixtures.OwnerEmail, Roles: auth.RoleSet{auth.RoleRestaurantOwner}}
	req, err := http.NewRequestWithContext(auth.ContextWithIdentity(context.Background(), id), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(auth.HeaderAuthRoles, "ADMIN")
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	got := <-seen
	assert.Equal(t, fixtures.OwnerEmail, got.Get(auth.HeaderAuthUser))
	assert.Equal(t, []string{"RESTAURANT_OWNER"}, got.Values(auth.HeaderAuthRoles))
	assert.Equal(t, "orders", got.Get(auth.HeaderCallerService))
	assert.Equal(t, []string{"ADMIN"}, req.Header.Values(auth.HeaderAuthRoles), "caller's request is not mutated")

	// Without an identity the request goes out untouched.
	req, err = http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	got = <-seen
	assert.Empty(t, got.Get(auth.HeaderAuthUser))
	assert.Empty(t, got.Get(auth.HeaderCallerService))
}
