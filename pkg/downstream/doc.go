// Package downstream adopts the identity asserted by the gateway inside a
// backend service.
//
// Backend services never see a bearer token. The gateway has already
// verified it and replaced it with two plain headers:
//
//	X-Auth-User:  customer@example.com
//	X-Auth-Roles: CUSTOMER,ADMIN
//
// [Middleware] turns those headers into an [auth.Identity] on the request
// context and [Guard] enforces role requirements on top of it. Nothing in
// this package verifies a signature. The headers are trusted only because
// backend listeners must be reachable from the gateway alone: bind them to
// a private network or put them behind mutual TLS. A service exposed
// directly to clients would accept any identity they care to send.
//
// For calls between services, [PropagatingRoundTripper] and the gRPC
// client interceptors forward the identity, and the gRPC server
// interceptors read it back from metadata.
package downstream
