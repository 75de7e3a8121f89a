package auth

import (
	"slices"
	"strings"
)

// RolePrefix marks the authority form of a role name.
const RolePrefix = "ROLE_"

// Role is a bare role name such as "CUSTOMER".
type Role string

const (
	RoleCustomer        Role = "CUSTOMER"
	RoleRestaurantOwner Role = "RESTAURANT_OWNER"
	RoleAdmin           Role = "ADMIN"
)

// DefaultRole is assigned by self-service registration.
const DefaultRole = RoleCustomer

// Authority returns the prefixed form, e.g. "ROLE_CUSTOMER".
func (r Role) Authority() string {
	return RolePrefix + string(r)
}

// RoleSet is an ordered set of roles without duplicates. The first role is
// the identity's primary role.
type RoleSet []Role

// NewRoleSet builds a set from names in either form, keeping first-seen
// order and dropping blanks and duplicates.
func NewRoleSet(names ...string) RoleSet {
	set := make(RoleSet, 0, len(names))
	for _, name := range names {
		r := Role(strings.TrimPrefix(strings.TrimSpace(name), RolePrefix))
		if r == "" || slices.Contains(set, r) {
			continue
		}
		set = append(set, r)
	}
	return set
}

// ParseRoles parses a comma-joined role string. Items are trimmed, the
// authority prefix is removed, and empty items and duplicates are dropped.
// An empty string yields an empty set.
func ParseRoles(s string) RoleSet {
	if strings.TrimSpace(s) == "" {
		return RoleSet{}
	}
	return NewRoleSet(strings.Split(s, ",")...)
}

// FormatRoles joins bare role names with "," and no whitespace.
func FormatRoles(roles RoleSet) string {
	return strings.Join(roles.Names(), ",")
}

// NormalizeAuthority returns the authority form of a role name given in
// either form.
func NormalizeAuthority(name string) string {
	return RolePrefix + strings.TrimPrefix(strings.TrimSpace(name), RolePrefix)
}

// Names returns the bare names.
func (rs RoleSet) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = string(r)
	}
	return names
}

// Authorities returns the authority forms.
func (rs RoleSet) Authorities() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Authority()
	}
	return out
}

// Has reports whether r is in the set.
func (rs RoleSet) Has(r Role) bool {
	return slices.Contains(rs, r)
}

// HasAny reports whether any of roles is in the set.
func (rs RoleSet) HasAny(roles ...Role) bool {
	return slices.ContainsFunc(roles, rs.Has)
}

// Primary returns the first role, or "" for an empty set.
func (rs RoleSet) Primary() Role {
	if len(rs) == 0 {
		return ""
	}
	return rs[0]
}

// Equal reports whether both sets hold the same roles in any order.
func (rs RoleSet) Equal(other RoleSet) bool {
	if len(rs) != len(other) {
		return false
	}
	for _, r := range rs {
		if !other.Has(r) {
			return false
		}
	}
	return true
}
