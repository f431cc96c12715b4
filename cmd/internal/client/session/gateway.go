package session

import (
	"context"
	"time"
)

// Scope selects which sessions a sign-out invalidates.
type Scope string

const (
	// ScopeLocal ends the session of this client only.
	ScopeLocal Scope = "local"
	// ScopeGlobal ends every session of the principal on every device.
	ScopeGlobal Scope = "global"
)

func (s Scope) Valid() bool { return s == ScopeLocal || s == ScopeGlobal }

// Session is a live authentication returned by the gateway.
// Token is opaque to this package.
type Session struct {
	Principal Principal
	Token     string
	ExpiresAt time.Time
}

// SignUpResponse is the gateway's answer to CreateAccount.
// Session is nil when the gateway did not sign the new account in.
type SignUpResponse struct {
	Principal Principal
	Session   *Session
}

// ChangeKind classifies a session change pushed by the gateway.
type ChangeKind uint8

const (
	ChangeSignedIn ChangeKind = iota + 1
	ChangeTokenRefreshed
	ChangeSignedOut
	ChangeExpired
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSignedIn:
		return "signed_in"
	case ChangeTokenRefreshed:
		return "token_refreshed"
	case ChangeSignedOut:
		return "signed_out"
	case ChangeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ChangeEvent is a session change the client did not initiate itself.
type ChangeEvent struct {
	Kind      ChangeKind
	Principal Principal
}

// Gateway is the auth service the Controller talks to.
//
// Implementations hold the session token themselves. OnSessionChange reports
// changes not caused by this Gateway's own calls, such as expiry or a sign-out
// from another device; the returned func removes the callback and is idempotent.
type Gateway interface {
	CreateAccount(ctx context.Context, email, password string) (SignUpResponse, error)
	Authenticate(ctx context.Context, email, password string) (Session, error)
	ActiveSession(ctx context.Context) (Principal, bool, error)
	InvalidateSession(ctx context.Context, scope Scope) error
	OnSessionChange(fn func(ChangeEvent)) (release func())
}

// ProfileEnsurer creates the profile record of a new account.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, principalID, displayName string) error
}
