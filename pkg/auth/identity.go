package auth

import (
	"context"
	"time"
)

// Identity is an authenticated principal as seen by a service handling a
// request. At the gateway it is derived from validated token claims; in a
// backend service it is adopted from the X-Auth-User and X-Auth-Roles
// headers the gateway wrote.
//
// The zero Identity is anonymous. Handlers obtain the current identity
// with [IdentityFromContext] and gate on it with [RequireRole].
type Identity struct {
	// Subject identifies the principal. For users it is the lower-cased
	// email address, which doubles as the login name.
	Subject string

	// Roles is the ordered, duplicate-free set of roles the principal
	// holds, in bare form (CUSTOMER, not ROLE_CUSTOMER).
	Roles RoleSet
}

// Valid reports whether the identity has a subject.
func (i Identity) Valid() bool {
	return i.Subject != ""
}

// Claims are the fields read from a validated token. Validators return
// Claims only after every check has passed:
//   - the token is a well-formed three-part JWS
//   - its signature verifies with an allowed algorithm
//   - exp is present and after the validator's clock
//   - sub is present and non-blank
type Claims struct {
	// Subject is the sub claim.
	Subject string

	// Roles is parsed from the configured roles claim, which may be a JSON
	// array or a comma-joined string. A missing claim yields no roles.
	Roles RoleSet

	// IssuedAt is the iat claim, or zero when absent.
	IssuedAt time.Time

	// ExpiresAt is the exp claim. It has second precision.
	ExpiresAt time.Time

	// KeyID is the kid header the token was verified with, if any.
	KeyID string
}

// Identity returns the identity carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{Subject: c.Subject, Roles: c.Roles}
}

// TokenValidator verifies a bearer token and returns its claims. Failures
// carry one of AUTH_003 (malformed), AUTH_004 (signature), AUTH_005
// (expired) or AUTH_006 (unknown key).
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// TokenValidatorFunc adapts a function to [TokenValidator].
type TokenValidatorFunc func(ctx context.Context, token string) (*Claims, error)

// Validate calls f.
func (f TokenValidatorFunc) Validate(ctx context.Context, token string) (*Claims, error) {
	return f(ctx, token)
}
