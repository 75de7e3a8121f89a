// Package errors defines the coded error type shared by every ByteBites
// service: the auth service, the edge gateway and the downstream services.
//
// # Error Codes
//
// Each error carries a machine-readable [Code] of the form CATEGORY_NNN
// (for example "AUTH_004"). The category prefix decides the HTTP status the
// error maps to; a few codes override the category default (see
// [Error.HTTPStatus]).
//
// The trust-propagation failures have dedicated codes so that they can be
// logged precisely while still collapsing to a uniform response at the
// gateway boundary:
//
//	KEY_001   key material could not be loaded (fatal at startup)
//	AUTH_002  Authorization header missing or not a bearer credential
//	AUTH_003  token is not a well-formed signed structure
//	AUTH_004  token signature does not verify
//	AUTH_005  token expired
//	AUTH_006  no published key matches the token's key identifier
//	AUTH_007  email/password pair rejected
//	AUTHZ_001 authenticated identity lacks the required role
//	AUTHZ_002 no identity on a role-gated request
//	CONF_002  identity already registered
//
// # Usage
//
//	if err := validator.Validate(ctx, token); err != nil {
//	    if errors.IsTokenRejection(err) {
//	        logger.WarnContext(ctx, "token rejected", "code", errors.GetCode(err))
//	    }
//	}
package errors
