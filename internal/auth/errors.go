package auth

import "errors"

var (
	// ErrUnauthenticated covers missing, malformed, expired and revoked
	// tokens. It is the only error that should force clients to drop
	// their session.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden means the caller is authenticated but the role or
	// ownership check failed.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrInvalidCredentials is returned by Authenticate only. It never
	// distinguishes an unknown username from a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
