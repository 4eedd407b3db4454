// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Error kinds returned by the auth service. Callers match them with errors.Is;
// the HTTP layer maps each kind to a status code.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest indicates malformed or invalid input, including
	// "password reset required" and "invalid reset code".
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInternal indicates a downstream failure: hashing, encryption, persistence or cache.
	ErrInternal = errors.New("internal error")

	// ErrDecryption indicates a session blob that cannot be opened under the configured key.
	ErrDecryption = errors.New("decryption failed")
)
