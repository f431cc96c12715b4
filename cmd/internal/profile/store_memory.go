package profile

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-process Store. Exists, when set, reports whether an
// account id is known; Create returns ErrUnknownUser otherwise.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]Profile
	Exists func(ctx context.Context, id string) bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Profile)}
}

func (s *MemoryStore) Create(ctx context.Context, id, name string, now time.Time) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, ErrInvalidInput
	}
	name, err := cleanName(name)
	if err != nil {
		return Profile{}, err
	}
	if s.Exists != nil && !s.Exists(ctx, id) {
		return Profile{}, ErrUnknownUser
	}

	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; ok {
		return Profile{}, ErrDuplicateKey
	}
	p := Profile{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	s.byID[id] = p
	return p, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patch Patch, now time.Time) (Profile, error) {
	patch, err := normalizePatch(patch)
	if err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if patch.empty() {
		return p, nil
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.AvatarURL != nil {
		if *patch.AvatarURL == "" {
			p.AvatarURL = nil
		} else {
			a := *patch.AvatarURL
			p.AvatarURL = &a
		}
	}
	p.UpdatedAt = now.UTC()
	s.byID[p.ID] = p
	return p, nil
}
