package auth

import "errors"

var (
	// ErrUnauthorized is the single outcome for every authentication failure:
	// missing or malformed credential, bad signature, expired token, wrong
	// token type, unknown account. Callers must not leak which one it was.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrForbidden means the principal is authenticated but lacks the role or
	// ownership an operation requires.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrInvalidToken indicates the token failed validation. The resolver
	// collapses it into ErrUnauthorized before it reaches a client boundary.
	ErrInvalidToken = errors.New("auth: invalid token")
)
