package secrets

import (
	"errors"
	"fmt"
)

var (
	// Authentication failures. These never propagate past the route
	// boundary: handlers turn them into a redirect with a generic message.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUsername  = errors.New("username already registered")
	ErrMissingField       = errors.New("username and password required")

	// ErrSessionInvalid means the session holds no user, or holds a user id
	// that no longer resolves. Callers treat it as "not logged in".
	ErrSessionInvalid = errors.New("session invalid")

	// Infrastructure failures. Not recoverable locally.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrStoreUnavailable    = errors.New("store unavailable")

	// Store level results.
	ErrUserNotFound     = errors.New("user not found")
	ErrIdentityConflict = errors.New("identity already claimed")
	ErrNoSecrets        = errors.New("no secrets stored")
)

// StoreError wraps an unexpected persistence failure so callers can match it
// with errors.Is(err, ErrStoreUnavailable) while keeping the cause.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsAuthFailure reports whether err is one of the errors a handler recovers
// from by redirecting back to a form.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrDuplicateUsername) ||
		errors.Is(err, ErrMissingField)
}
