package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"BEARER abc", "abc"},
		{"Bearer   abc  ", "abc"},
		{"Bearer ", ""},
		{"Bearer", ""},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"abc.def.ghi", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractBearerToken(tt.in))
		})
	}
}

func TestIdentityFromHeaders(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		user   string
		roles  string
		wantOK bool
		want   Identity
	}{
		{
			name:   "both present",
			user:   "alice@example.com",
			roles:  "CUSTOMER,ADMIN",
			wantOK: true,
			want:   Identity{Subject: "alice@example.com", Roles: RoleSet{RoleCustomer, RoleAdmin}},
		},
		{name: "user missing", roles: "CUSTOMER"},
		{name: "roles missing", user: "alice@example.com"},
		{name: "blank user", user: "  ", roles: "CUSTOMER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tt.user != "" {
				h.Set(HeaderAuthUser, tt.user)
			}
			if tt.roles != "" {
				h.Set(HeaderAuthRoles, tt.roles)
			}
			got, ok := IdentityFromHeaders(h.Get)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIdentityHeaders(t *testing.T) {
	t.Parallel()
	h := IdentityHeaders(Identity{Subject: "bob@example.com", Roles: RoleSet{RoleRestaurantOwner}})
	assert.Equal(t, map[string]string{
		HeaderAuthUser:  "bob@example.com",
		HeaderAuthRoles: "RESTAURANT_OWNER",
	}, h)

	h = IdentityHeaders(Identity{Subject: "bob@example.com"})
	assert.NotContains(t, h, HeaderAuthRoles)
}
