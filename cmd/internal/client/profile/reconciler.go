// Package profile keeps exactly one profile record per account.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrDuplicateKey = errors.New("profile: duplicate key")
	ErrNotFound     = errors.New("profile: not found")
)

// DuplicateKeyError reports that a profile keyed by PrincipalID already exists.
type DuplicateKeyError struct {
	PrincipalID string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("profile: duplicate key %q", e.PrincipalID)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// Profile is the per-account display record.
type Profile struct {
	ID        string
	Name      string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the remote profile table.
//
// CreateProfile must return an error matching ErrDuplicateKey when a row with
// that key exists. Every other failure is returned as is.
type Store interface {
	CreateProfile(ctx context.Context, principalID, name string) error
	UpdateProfileName(ctx context.Context, principalID, name string) error
	GetProfile(ctx context.Context, principalID string) (Profile, error)
}

// Reconciler implements session.ProfileEnsurer on top of a Store.
type Reconciler struct {
	store Store
	log   *slog.Logger
}

func NewReconciler(store Store, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{store: store, log: log}
}

// EnsureProfile creates the profile of principalID.
//
// An existing row counts as success. If that row has an empty name it is filled
// with displayName; a failure of that fill is logged and not returned.
func (r *Reconciler) EnsureProfile(ctx context.Context, principalID, displayName string) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return errors.New("profile: principal id is required")
	}
	name := strings.TrimSpace(displayName)

	err := r.store.CreateProfile(ctx, principalID, name)
	if err == nil {
		r.log.Debug("profile.create.ok", "principal_id", principalID)
		return nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return fmt.Errorf("profile: create %s: %w", principalID, err)
	}

	r.log.Debug("profile.create.duplicate", "principal_id", principalID)
	if name == "" {
		return nil
	}

	existing, gerr := r.store.GetProfile(ctx, principalID)
	if gerr != nil {
		r.log.Warn("profile.reconcile.get.fail", "principal_id", principalID, "err", gerr)
		return nil
	}
	if strings.TrimSpace(existing.Name) != "" {
		return nil
	}
	if uerr := r.store.UpdateProfileName(ctx, principalID, name); uerr != nil {
		r.log.Warn("profile.reconcile.update.fail", "principal_id", principalID, "err", uerr)
	}
	return nil
}
