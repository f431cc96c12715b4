package session

import (
	"context"
	"net"
	"strings"
	"time"
)

// Platform is the client kind that owns a session.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformDesktop Platform = "desktop"
	PlatformCLI     Platform = "cli"
	PlatformUnknown Platform = "unknown"
)

// ParsePlatform maps free-form client input to a known Platform.
func ParsePlatform(s string) Platform {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformWeb, PlatformIOS, PlatformAndroid, PlatformDesktop, PlatformCLI:
		return p
	default:
		return PlatformUnknown
	}
}

// DeviceContext describes the client device that owns a session.
type DeviceContext struct {
	Platform   Platform
	RememberMe bool
	UserAgent  string
	IP         net.IP
}

// Row mirrors a sessions row.
type Row struct {
	ID                  string
	UserID              string
	RefreshTokenHash    string
	CreatedAt           time.Time
	LastUsedAt          *time.Time
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	ReplacedBySessionID *string
	RevocationReason    *string
	Platform            Platform
}

// Active reports whether the row backs a usable session at now.
func (r Row) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ReplacedBySessionID == nil && r.ExpiresAt.After(now)
}

type CreateInput struct {
	Now         time.Time
	UserID      string
	Device      DeviceContext
	RefreshHash string
	ExpiresAt   time.Time
}

// RotateInput swaps the session holding RefreshHash for a new row.
type RotateInput struct {
	Now            time.Time
	RefreshHash    string
	NewRefreshHash string
	NewExpiresAt   time.Time
	Device         DeviceContext
}

// RotateOutcome carries the presented row and, on success, its replacement.
// Old is set for ErrRefreshReuseDetected too, so callers can tell the user.
type RotateOutcome struct {
	Old Row
	New Row
}

// Store persists sessions.
//
// Rotate must be atomic: two concurrent rotations of one refresh token yield
// one new session and one ErrRefreshReuseDetected, never two sessions.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Row, error)
	GetByID(ctx context.Context, sessionID string) (Row, error)
	Rotate(ctx context.Context, in RotateInput) (RotateOutcome, error)
	Touch(ctx context.Context, now time.Time, sessionID string) error
	Revoke(ctx context.Context, now time.Time, sessionID, reason string) error
	RevokeAll(ctx context.Context, now time.Time, userID, reason string) error
}

// decideRotation classifies the row a refresh token resolved to.
func decideRotation(row Row, now time.Time) error {
	switch {
	case !row.ExpiresAt.After(now):
		return ErrSessionExpired
	case row.RevokedAt != nil && row.ReplacedBySessionID != nil:
		return ErrRefreshReuseDetected
	case row.RevokedAt != nil:
		return ErrSessionRevoked
	}
	return nil
}

const (
	reasonLogout   = "logout"
	reasonRotation = "rotation"
	reasonReuse    = "reuse_detected"
)
