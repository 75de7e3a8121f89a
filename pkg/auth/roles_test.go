package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoles(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want RoleSet
	}{
		{"empty", "", RoleSet{}},
		{"blank", "  ", RoleSet{}},
		{"single", "CUSTOMER", RoleSet{RoleCustomer}},
		{"two", "CUSTOMER,ADMIN", RoleSet{RoleCustomer, RoleAdmin}},
		{"whitespace and empties", " CUSTOMER , ,ADMIN,", RoleSet{RoleCustomer, RoleAdmin}},
		{"duplicates", "ADMIN,ADMIN,CUSTOMER,ADMIN", RoleSet{RoleAdmin, RoleCustomer}},
		{"authority prefix", "ROLE_CUSTOMER,RESTAURANT_OWNER", RoleSet{RoleCustomer, RoleRestaurantOwner}},
		{"mixed forms dedupe", "ROLE_ADMIN,ADMIN", RoleSet{RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseRoles(tt.in))
		})
	}
}

func TestFormatRoles_RoundTrips(t *testing.T) {
	t.Parallel()
	set := RoleSet{RoleCustomer, RoleAdmin}

	wire := FormatRoles(set)
	assert.Equal(t, "CUSTOMER,ADMIN", wire)
	assert.Equal(t, set, ParseRoles(wire))
	assert.Equal(t, "", FormatRoles(nil))
}

func TestNormalizeAuthority(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ROLE_CUSTOMER", NormalizeAuthority("CUSTOMER"))
	assert.Equal(t, "ROLE_CUSTOMER", NormalizeAuthority("ROLE_CUSTOMER"))
	assert.Equal(t, "ROLE_ADMIN", NormalizeAuthority(" ADMIN "))
}

func TestRoleSet(t *testing.T) {
	t.Parallel()
	set := NewRoleSet("RESTAURANT_OWNER", "ROLE_ADMIN", "")

	assert.Equal(t, []string{"ROLE_RESTAURANT_OWNER", "ROLE_ADMIN"}, set.Authorities())
	assert.Equal(t, []string{"RESTAURANT_OWNER", "ADMIN"}, set.Names())
	assert.Equal(t, RoleRestaurantOwner, set.Primary())
	assert.True(t, set.Has(RoleAdmin))
	assert.False(t, set.Has(RoleCustomer))
	assert.True(t, set.HasAny(RoleCustomer, RoleAdmin))
	assert.False(t, set.HasAny())
	assert.Equal(t, Role(""), RoleSet{}.Primary())

	assert.True(t, set.Equal(RoleSet{RoleAdmin, RoleRestaurantOwner}))
	assert.False(t, set.Equal(RoleSet{RoleAdmin}))
	assert.False(t, set.Equal(RoleSet{RoleAdmin, RoleCustomer}))
}
