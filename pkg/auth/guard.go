package auth

import (
	"context"
	"strings"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// RequireRole returns the identity in ctx if it holds any of roles. It
// fails with AUTHZ_002 when ctx has no identity and AUTHZ_001 when the
// identity lacks every listed role. With no roles, any identity passes.
func RequireRole(ctx context.Context, roles ...Role) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok || !id.Valid() {
		return Identity{}, sserr.NoIdentity()
	}
	if len(roles) == 0 || id.Roles.HasAny(roles...) {
		return id, nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return Identity{}, sserr.Unauthorized("requires one of roles: " + strings.Join(names, ", ")).
		WithDetail("subject", id.Subject)
}
