package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"hearth/cmd/security/token"
)

// Revocation scopes as they appear on the events wire.
const (
	ScopeLocal  = "local"
	ScopeGlobal = "global"
)

// Revocation describes sessions that just stopped being valid. SessionID is
// empty for ScopeGlobal.
type Revocation struct {
	UserID    string
	SessionID string
	Scope     string
	Reason    string
}

// Notifier learns about revocations after they are persisted.
type Notifier interface {
	SessionRevoked(Revocation)
}

// Service issues, validates, rotates and revokes sessions.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
	hasher token.Hasher
	notify Notifier
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	UserID       string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

type Option func(*Service)

// WithHasher sets the refresh-token hasher. The default is plain SHA-256.
func WithHasher(h token.Hasher) Option { return func(s *Service) { s.hasher = h } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notify = n } }

func NewService(cfg Config, store Store, tokens AccessTokenManager, opts ...Option) *Service {
	s := &Service{cfg: cfg, store: store, tokens: tokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier attaches n after construction; the events hub is built later
// than the service because it validates tokens through it.
func (s *Service) SetNotifier(n Notifier) { s.notify = n }

func (s *Service) refreshTTL(dev DeviceContext) time.Duration {
	if dev.RememberMe {
		return s.cfg.RefreshTTLRemember
	}
	return s.cfg.RefreshTTL
}

// IssueSession stores a new session and returns its tokens. Only the hash of
// the refresh token is persisted.
func (s *Service) IssueSession(ctx context.Context, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	plain, hash, err := s.newRefreshToken()
	if err != nil {
		return Issued{}, err
	}
	refreshExp := now.Add(s.refreshTTL(dev))

	row, err := s.store.Create(ctx, CreateInput{
		Now:         now,
		UserID:      userID,
		Device:      dev,
		RefreshHash: hash,
		ExpiresAt:   refreshExp,
	})
	if err != nil {
		return Issued{}, err
	}

	access, accessExp, err := s.tokens.Issue(userID, row.ID, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		SessionID:    row.ID,
		UserID:       userID,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: plain,
		RefreshExp:   refreshExp,
	}, nil
}

// IssueProvisioningToken mints the short-lived profile-setup token of a new account.
func (s *Service) IssueProvisioningToken(userID string, now time.Time) (string, time.Time, error) {
	return s.tokens.IssueProvisioning(userID, now)
}

// ValidateAccessToken verifies token and checks the backing row, so that
// revocations apply immediately.
func (s *Service) ValidateAccessToken(ctx context.Context, tok string, now time.Time) (AccessClaims, Row, error) {
	claims, err := s.tokens.Verify(tok, now)
	if err != nil {
		return AccessClaims{}, Row{}, err
	}

	row, err := s.store.GetByID(ctx, claims.SessionID)
	if err != nil {
		return AccessClaims{}, Row{}, err
	}
	switch {
	case row.UserID != claims.UserID:
		return AccessClaims{}, Row{}, ErrInvalidToken
	case row.RevokedAt != nil || row.ReplacedBySessionID != nil:
		return AccessClaims{}, Row{}, ErrSessionRevoked
	case !row.ExpiresAt.After(now):
		return AccessClaims{}, Row{}, ErrSessionExpired
	}
	return claims, row, nil
}

// ValidateProvisioningToken verifies a provisioning token. No row backs it.
func (s *Service) ValidateProvisioningToken(tok string, now time.Time) (ProvisioningClaims, error) {
	return s.tokens.VerifyProvisioning(tok, now)
}

// RevokeSession ends one session and notifies listeners.
func (s *Service) RevokeSession(ctx context.Context, now time.Time, userID, sessionID string) error {
	if err := s.store.Revoke(ctx, now, sessionID, reasonLogout); err != nil {
		return err
	}
	s.emit(Revocation{UserID: userID, SessionID: sessionID, Scope: ScopeLocal, Reason: reasonLogout})
	return nil
}

// RevokeAll ends every session of userID and notifies listeners.
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string) error {
	if err := s.store.RevokeAll(ctx, now, userID, reasonLogout); err != nil {
		return err
	}
	s.emit(Revocation{UserID: userID, Scope: ScopeGlobal, Reason: reasonLogout})
	return nil
}

// TouchSession updates last_used_at. Callers treat failures as best-effort.
func (s *Service) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}

// RotateRefresh exchanges a refresh token for a new session.
//
// A rotated token presented again is reuse: the store revokes every session
// of the user, listeners get a global revocation and the call returns
// ErrRefreshReuseDetected.
func (s *Service) RotateRefresh(ctx context.Context, now time.Time, refreshPlain string, dev DeviceContext) (Issued, error) {
	refreshPlain = strings.TrimSpace(refreshPlain)
	if refreshPlain == "" || len(refreshPlain) > 4096 {
		return Issued{}, ErrSessionNotFound
	}

	plain, hash, err := s.newRefreshToken()
	if err != nil {
		return Issued{}, err
	}
	refreshExp := now.Add(s.refreshTTL(dev))

	out, err := s.store.Rotate(ctx, RotateInput{
		Now:            now,
		RefreshHash:    s.hasher.Hash(refreshPlain),
		NewRefreshHash: hash,
		NewExpiresAt:   refreshExp,
		Device:         dev,
	})
	if errors.Is(err, ErrRefreshReuseDetected) {
		s.emit(Revocation{UserID: out.Old.UserID, Scope: ScopeGlobal, Reason: reasonReuse})
		return Issued{}, err
	}
	if err != nil {
		return Issued{}, err
	}

	access, accessExp, err := s.tokens.Issue(out.New.UserID, out.New.ID, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		SessionID:    out.New.ID,
		UserID:       out.New.UserID,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: plain,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *Service) newRefreshToken() (plain, hash string, err error) {
	plain, err = token.Generate(s.cfg.RefreshTokenBytes)
	if err != nil {
		return "", "", err
	}
	return plain, s.hasher.Hash(plain), nil
}

func (s *Service) emit(r Revocation) {
	if s.notify != nil && r.UserID != "" {
		s.notify.SessionRevoked(r)
	}
}
