package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	u, err := s.CreateUser(ctx, CreateUserInput{Email: " Aye@Example.com ", PasswordHash: "$argon2id$stub", Now: now})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "Aye@Example.com" || u.EmailNorm != "aye@example.com" {
		t.Fatalf("email = %q / %q", u.Email, u.EmailNorm)
	}
	if len(u.ID) != 26 || !u.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user: %+v", u)
	}

	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil || got != u {
		t.Fatalf("GetUserByID = %+v, %v", got, err)
	}

	ua, err := s.GetUserAuthByEmail(ctx, "AYE@example.COM")
	if err != nil {
		t.Fatalf("GetUserAuthByEmail: %v", err)
	}
	if ua.User.ID != u.ID || ua.PasswordHash != "$argon2id$stub" {
		t.Fatalf("unexpected auth row: %+v", ua)
	}
}

func TestMemoryStore_EmailConflictIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, CreateUserInput{Email: "user@example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	_, err := s.CreateUser(ctx, CreateUserInput{Email: "USER@example.com", PasswordHash: "h"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var ce ConflictError
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("conflict field = %q", ce.Field)
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	tests := []CreateUserInput{
		{Email: "", PasswordHash: "h"},
		{Email: "not-an-email", PasswordHash: "h"},
		{Email: "Name <a@example.com>", PasswordHash: "h"},
		{Email: "a@example.com", PasswordHash: " "},
	}
	for _, in := range tests {
		if _, err := s.CreateUser(ctx, in); !IsInvalidInput(err) {
			t.Fatalf("CreateUser(%+v) = %v, want invalid input", in, err)
		}
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetUserByID(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetUserAuthByEmail(ctx, "nobody@example.com"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"a@example.com":         true,
		"first.last@family.mm":  true,
		"":                      false,
		"plain":                 false,
		"a@localhost":           false,
		"Name <a@example.com>":  false,
		"a@example.com, b@c.de": false,
	}
	for in, want := range tests {
		if got := ValidEmail(in); got != want {
			t.Fatalf("ValidEmail(%q) = %v, want %v", in, got, want)
		}
	}
}
