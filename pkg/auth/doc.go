// Package auth holds the identity vocabulary shared by the ByteBites auth
// service, the edge gateway and the downstream services: the [Identity] and
// [Claims] types, the role model, the trusted-identity header names and the
// [TokenValidator] contract.
//
// # Role strings
//
// Roles travel as bare names ("CUSTOMER") in tokens and in the
// X-Auth-Roles header. Downstream authorization code may also see the
// authority form ("ROLE_CUSTOMER"). [ParseRoles] and [FormatRoles] are the
// only conversions between a role set and its wire form, and both sides of
// the trust boundary use them:
//
//	FormatRoles(RoleSet{RoleCustomer, RoleAdmin})   // "CUSTOMER,ADMIN"
//	ParseRoles(" ROLE_CUSTOMER,,ADMIN,CUSTOMER ")   // {CUSTOMER, ADMIN}
//	ParseRoles("")                                  // {}
//
// # Trust boundary
//
// X-Auth-User and X-Auth-Roles are trusted only because the gateway strips
// any client-supplied copies and only the gateway can reach backend
// services. Nothing here verifies that a request really came through the
// gateway.
package auth
