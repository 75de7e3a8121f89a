package errors

import (
	"errors"
	"fmt"
)

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. Wrap(nil, ...) returns nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and formatted message. Wrapf(nil, ...)
// returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation creates a VAL_001 error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// NotFound creates an NF_001 error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Conflict creates a CONF_001 error.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// Internal creates an INT_001 error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Unavailable creates an UNAVAIL_001 error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Timeout creates a TIMEOUT_001 error.
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// ---------------------------------------------------------------------------
// Trust-propagation errors
// ---------------------------------------------------------------------------

// KeyLoad reports malformed key material. The caller must treat it as fatal.
func KeyLoad(cause error, message string) *Error {
	return &Error{Code: CodeKeyLoad, Message: message, Cause: cause}
}

// invalidCredentialsMessage is identical for unknown emails and wrong
// passwords.
const invalidCredentialsMessage = "Invalid Email or Password"

// InvalidCredentials reports a rejected email/password pair. It takes no
// arguments so that callers cannot leak which half of the pair was wrong.
func InvalidCredentials() *Error {
	return New(CodeInvalidCredentials, invalidCredentialsMessage)
}

// DuplicateIdentity reports that email is already registered.
func DuplicateIdentity(email string) *Error {
	return New(CodeDuplicateIdentity, "User with this email already exists.").
		WithDetail("email", email)
}

// MissingAuthHeader reports an absent or non-bearer Authorization header.
func MissingAuthHeader() *Error {
	return New(CodeMissingAuthHeader, "missing or invalid Authorization header")
}

// MalformedToken reports a token that failed structural parsing.
func MalformedToken(cause error) *Error {
	return &Error{Code: CodeMalformedToken, Message: "token is malformed", Cause: cause}
}

// SignatureInvalid reports a token whose signature did not verify.
func SignatureInvalid(cause error) *Error {
	return &Error{Code: CodeSignatureInvalid, Message: "token signature is invalid", Cause: cause}
}

// TokenExpired reports a token whose expiry has passed.
func TokenExpired(cause error) *Error {
	return &Error{Code: CodeTokenExpired, Message: "token has expired", Cause: cause}
}

// UnknownKey reports that no key could be resolved for kid.
func UnknownKey(kid string, cause error) *Error {
	return (&Error{Code: CodeUnknownKey, Message: "no verification key for token", Cause: cause}).
		WithDetail("kid", kid)
}

// Unauthorized reports an identity that lacks a required role.
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

// NoIdentity reports a role-gated request without an identity.
func NoIdentity() *Error {
	return New(CodeNoIdentity, "authentication required")
}

// RateLimited reports an exhausted attempt budget.
func RateLimited(message string) *Error {
	return New(CodeRateLimited, message)
}

// FromError converts any error into an *Error. Existing *Error values in the
// chain are returned as-is; anything else becomes INT_001.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "internal error")
}
