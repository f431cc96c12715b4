package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"hearth/cmd/internal/client/session"
)

// Tokens is the persisted session of one signed-in account.
type Tokens struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	UserCreatedAt    time.Time `json:"user_created_at"`
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (t Tokens) Principal() session.Principal {
	return session.Principal{ID: t.UserID, Email: t.Email, CreatedAt: t.UserCreatedAt}
}

// TokenStore persists one Tokens value. Load reports false when nothing is stored.
type TokenStore interface {
	Load() (Tokens, bool, error)
	Save(Tokens) error
	Clear() error
}

// FileTokenStore keeps Tokens as JSON in a file only its owner can read.
type FileTokenStore struct {
	Path string
}

var _ TokenStore = FileTokenStore{}

func (s FileTokenStore) Load() (Tokens, bool, error) {
	raw, err := os.ReadFile(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Tokens{}, false, nil
	case err != nil:
		return Tokens{}, false, fmt.Errorf("token file: %w", err)
	}
	var t Tokens
	if err := json.Unmarshal(raw, &t); err != nil {
		return Tokens{}, false, fmt.Errorf("token file %s: %w", s.Path, err)
	}
	if t.AccessToken == "" {
		return Tokens{}, false, nil
	}
	return t, true, nil
}

// Save replaces the file atomically with mode 0600.
func (s FileTokenStore) Save(t Tokens) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("token file: %w", err)
	}
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("token file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return fmt.Errorf("token file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return fmt.Errorf("token file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("token file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("token file: %w", err)
	}
	return nil
}

func (s FileTokenStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("token file: %w", err)
	}
	return nil
}
