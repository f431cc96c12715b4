package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation = errors.New("session: validation failed")
	ErrAuth       = errors.New("session: auth gateway error")

	// ErrSuperseded is returned when a newer attempt was issued before this one resolved.
	ErrSuperseded = errors.New("session: superseded by a newer attempt")

	ErrProfileIncomplete = errors.New("account created, profile setup incomplete")
)

// ValidationError reports caller input rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthError wraps a failure reported by, or while reaching, the auth gateway.
//
// Code and Reason carry the gateway's own classification when it gave one.
// Err is the underlying cause (transport error, context deadline, ...).
type AuthError struct {
	Op     string
	Code   string
	Reason string
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("session: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Reason != "":
		b.WriteString(e.Reason)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString("auth gateway error")
	}
	return b.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// ProfileIncompleteError is the non-blocking warning attached to a successful sign-up.
type ProfileIncompleteError struct {
	PrincipalID string
	Err         error
}

func (e *ProfileIncompleteError) Error() string {
	if e.Err == nil {
		return ErrProfileIncomplete.Error()
	}
	return ErrProfileIncomplete.Error() + ": " + e.Err.Error()
}

func (e *ProfileIncompleteError) Unwrap() []error { return []error{ErrProfileIncomplete, e.Err} }

// asAuthError keeps an existing *AuthError and wraps anything else.
func asAuthError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return &AuthError{Op: op, Err: err}
}
