package session

import "errors"

var (
	// ErrInvalidToken is returned when a token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when a token does not name a known session.
	ErrSessionNotFound = errors.New("session not found")

	ErrSessionExpired = errors.New("session expired")
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRefreshReuseDetected is returned when a rotated refresh token is
	// presented again. Every session of the account has been revoked by then.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	ErrConfig = errors.New("invalid session config")
)

// IsUnauthenticated reports whether err means "no valid session".
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrRefreshReuseDetected)
}
