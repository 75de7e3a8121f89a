package auth

import (
	"strings"
)

// Trusted identity headers. Only the gateway sets them on inbound requests;
// services set them again on calls to other services.
const (
	HeaderAuthUser      = "X-Auth-User"
	HeaderAuthRoles     = "X-Auth-Roles"
	HeaderCallerService = "X-Caller-Service"
	HeaderAuthorization = "Authorization"
)

// TrustedHeaders lists the headers the gateway must remove from client
// requests.
var TrustedHeaders = []string{HeaderAuthUser, HeaderAuthRoles, HeaderCallerService}

const bearerPrefix = "Bearer "

// ExtractBearerToken returns the token from an Authorization value. The
// scheme is matched case-insensitively. It returns "" when the value is
// not a bearer credential or the token is blank.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// IdentityFromHeaders rebuilds an identity from the trusted headers read by
// get. Both headers must be non-empty. No signature is checked.
func IdentityFromHeaders(get func(key string) string) (Identity, bool) {
	user := strings.TrimSpace(get(HeaderAuthUser))
	roles := strings.TrimSpace(get(HeaderAuthRoles))
	if user == "" || roles == "" {
		return Identity{}, false
	}
	return Identity{Subject: user, Roles: ParseRoles(roles)}, true
}

// IdentityHeaders returns the trusted headers for id. The roles header is
// omitted when the set is empty.
func IdentityHeaders(id Identity) map[string]string {
	h := map[string]string{HeaderAuthUser: id.Subject}
	if len(id.Roles) > 0 {
		h[HeaderAuthRoles] = FormatRoles(id.Roles)
	}
	return h
}
