package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"hearth/cmd/identity/ids"
)

// MemoryStore is a process-local Store. Rotation runs under one mutex.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Row
	byHash map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Row),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(in)
}

func (s *MemoryStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.byID[sessionID]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return *row, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, in RotateInput) (RotateOutcome, error) {
	if err := ctx.Err(); err != nil {
		return RotateOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[in.RefreshHash]
	if !ok {
		return RotateOutcome{}, ErrSessionNotFound
	}
	old := s.byID[id]

	switch err := decideRotation(*old, in.Now); {
	case errors.Is(err, ErrRefreshReuseDetected):
		s.revokeAllLocked(in.Now, old.UserID, reasonReuse)
		return RotateOutcome{Old: *old}, err
	case err != nil:
		return RotateOutcome{Old: *old}, err
	}

	dev := in.Device
	if dev.Platform == "" {
		dev.Platform = old.Platform
	}
	presented := *old
	fresh, err := s.createLocked(CreateInput{
		Now:         in.Now,
		UserID:      old.UserID,
		Device:      dev,
		RefreshHash: in.NewRefreshHash,
		ExpiresAt:   in.NewExpiresAt,
	})
	if err != nil {
		return RotateOutcome{}, err
	}

	now := in.Now
	reason := reasonRotation
	old.LastUsedAt = &now
	old.RevokedAt = &now
	old.ReplacedBySessionID = &fresh.ID
	old.RevocationReason = &reason
	return RotateOutcome{Old: presented, New: fresh}, nil
}

func (s *MemoryStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.byID[sessionID]; ok {
		row.LastUsedAt = &now
	}
	return nil
}

func (s *MemoryStore) Revoke(ctx context.Context, now time.Time, sessionID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.byID[sessionID]; ok {
		revoke(row, now, reason)
	}
	return nil
}

func (s *MemoryStore) RevokeAll(ctx context.Context, now time.Time, userID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllLocked(now, userID, reason)
	return nil
}

func (s *MemoryStore) createLocked(in CreateInput) (Row, error) {
	if _, dup := s.byHash[in.RefreshHash]; dup {
		return Row{}, errors.New("session: duplicate refresh token hash")
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Row{}, err
	}
	platform := in.Device.Platform
	if platform == "" {
		platform = PlatformUnknown
	}
	now := in.Now
	row := &Row{
		ID:               id,
		UserID:           in.UserID,
		RefreshTokenHash: in.RefreshHash,
		CreatedAt:        now,
		LastUsedAt:       &now,
		ExpiresAt:        in.ExpiresAt,
		Platform:         platform,
	}
	s.byID[id] = row
	s.byHash[in.RefreshHash] = id
	return *row, nil
}

func (s *MemoryStore) revokeAllLocked(now time.Time, userID, reason string) {
	for _, row := range s.byID {
		if row.UserID == userID {
			revoke(row, now, reason)
		}
	}
}

func revoke(row *Row, now time.Time, reason string) {
	if row.RevokedAt == nil {
		row.RevokedAt = &now
	}
	if row.RevocationReason == nil {
		row.RevocationReason = &reason
	}
}
