// Package profile serves the per-account profile record.
//
// A profile is keyed by the account id. Creating it twice is a conflict the
// client treats as success, so Create reports ErrDuplicateKey distinctly.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrDuplicateKey = errors.New("profile: duplicate key")
	ErrNotFound     = errors.New("profile: not found")
	// ErrUnknownUser is returned when no account backs the profile id.
	ErrUnknownUser  = errors.New("profile: unknown user")
	ErrInvalidInput = errors.New("profile: invalid input")
)

const (
	maxNameRunes   = 120
	maxAvatarBytes = 2048
)

type Profile struct {
	ID        string
	Name      string
	AvatarURL *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch carries the fields of an update. Nil fields are left unchanged.
type Patch struct {
	Name      *string
	AvatarURL *string
}

func (p Patch) empty() bool { return p.Name == nil && p.AvatarURL == nil }

type Store interface {
	Create(ctx context.Context, id, name string, now time.Time) (Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	Update(ctx context.Context, id string, p Patch, now time.Time) (Profile, error)
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameRunes {
		return "", ErrInvalidInput
	}
	return name, nil
}

// normalizePatch trims fields. An empty AvatarURL clears the avatar.
func normalizePatch(p Patch) (Patch, error) {
	if p.Name != nil {
		n, err := cleanName(*p.Name)
		if err != nil {
			return Patch{}, err
		}
		p.Name = &n
	}
	if p.AvatarURL != nil {
		a := strings.TrimSpace(*p.AvatarURL)
		if len(a) > maxAvatarBytes {
			return Patch{}, ErrInvalidInput
		}
		p.AvatarURL = &a
	}
	return p, nil
}
