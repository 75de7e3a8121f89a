package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once published: clients, dashboards and alerts key on them.
type Code string

// Categories and the HTTP status they map to:
//
//	VAL     400 Bad Request
//	AUTH    401 Unauthorized
//	AUTHZ   403 Forbidden
//	NF      404 Not Found
//	CONF    409 Conflict
//	RATE    429 Too Many Requests
//	KEY     500 Internal Server Error
//	INT     500 Internal Server Error
//	UNAVAIL 503 Service Unavailable
//	TIMEOUT 504 Gateway Timeout
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeMissingAuthHeader indicates the request carried no bearer
	// credential in its Authorization header.
	CodeMissingAuthHeader Code = "AUTH_002"

	// CodeMalformedToken indicates the token is not a well-formed signed
	// structure or lacks required claims.
	CodeMalformedToken Code = "AUTH_003"

	// CodeSignatureInvalid indicates the token signature does not verify
	// against the resolved key, or was produced with a disallowed algorithm.
	CodeSignatureInvalid Code = "AUTH_004"

	// CodeTokenExpired indicates the token's expires-at is not after now.
	CodeTokenExpired Code = "AUTH_005"

	// CodeUnknownKey indicates no verification key could be resolved for
	// the token, including when the key-set endpoint is unreachable.
	CodeUnknownKey Code = "AUTH_006"

	// CodeInvalidCredentials indicates an email/password pair was rejected.
	// The same code is used for unknown emails and wrong passwords.
	CodeInvalidCredentials Code = "AUTH_007"

	// CodeUnauthorized indicates the identity lacks a required role.
	CodeUnauthorized Code = "AUTHZ_001"

	// CodeNoIdentity indicates a role-gated operation was reached without
	// any authenticated identity.
	CodeNoIdentity Code = "AUTHZ_002"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user does not exist.
	CodeNotFoundUser Code = "NF_002"

	// CodeNotFoundOrder indicates the requested order does not exist.
	CodeNotFoundOrder Code = "NF_003"

	// CodeConflict indicates a general conflict with current state.
	CodeConflict Code = "CONF_001"

	// CodeDuplicateIdentity indicates an email is already registered.
	CodeDuplicateIdentity Code = "CONF_002"

	// CodeInvalidTransition indicates a state change that the entity's
	// lifecycle does not allow.
	CodeInvalidTransition Code = "CONF_003"

	// CodeRateLimited indicates the caller exceeded an attempt budget.
	CodeRateLimited Code = "RATE_001"

	// CodeKeyLoad indicates the signing or verification key material is
	// malformed. Services must refuse to start on this error.
	CodeKeyLoad Code = "KEY_001"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependency (database, cache,
	// key-set endpoint) could not be reached.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates a call to a dependency timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the string form of the code.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_004"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			return s[:i]
		}
	}
	return s
}
