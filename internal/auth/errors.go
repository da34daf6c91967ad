package auth

import "errors"

// Authentication failures. The HTTP layer surfaces all of them as one
// opaque 401; the distinct kind is only logged and counted internally.
var (
	ErrMissingAuthorization = errors.New("auth: missing authorization header")
	ErrMalformedToken       = errors.New("auth: malformed token payload")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrExpiredToken         = errors.New("auth: expired token")
	ErrTokenRevoked         = errors.New("auth: token revoked")
	ErrStaleCredentials     = errors.New("auth: credentials changed after token issuance")
	ErrSubjectNotFound      = errors.New("auth: subject not found")
	ErrUnauthorized         = errors.New("auth: unauthorized")
)

// Store-level sentinels.
var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
)

// IsAuthFailure reports whether err belongs to the authentication failure
// taxonomy, as opposed to a transient store error worth surfacing as a
// service error.
func IsAuthFailure(err error) bool {
	for _, target := range []error{
		ErrMissingAuthorization,
		ErrMalformedToken,
		ErrInvalidToken,
		ErrExpiredToken,
		ErrTokenRevoked,
		ErrStaleCredentials,
		ErrSubjectNotFound,
		ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FailureReason returns a short stable label for metrics and audit logs.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingAuthorization):
		return "missing_authorization"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrStaleCredentials):
		return "stale_credentials"
	case errors.Is(err, ErrSubjectNotFound):
		return "subject_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "store_error"
	}
}
