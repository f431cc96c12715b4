package identity

import (
	"context"
	"testing"
	"time"

	"hearth/cmd/internal/pgtest"
)

func TestPostgresStore_CreateUser_EmailConflictCaseInsensitive(t *testing.T) {
	t.Parallel()

	pool, schema := pgtest.Open(t)
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "Aye@Example.com", PasswordHash: "$argon2id$x", Now: time.Now()})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	_, err = s.CreateUser(ctx, CreateUserInput{Email: "aye@example.COM", PasswordHash: "$argon2id$y", Now: time.Now()})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}

	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.EmailNorm != "aye@example.com" {
		t.Fatalf("email_norm = %q", got.EmailNorm)
	}

	ua, err := s.GetUserAuthByEmail(ctx, "AYE@example.com")
	if err != nil {
		t.Fatalf("get auth: %v", err)
	}
	if ua.PasswordHash != "$argon2id$x" {
		t.Fatalf("password hash = %q", ua.PasswordHash)
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	t.Parallel()

	pool, schema := pgtest.Open(t)
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	if _, err := s.GetUserByID(ctx, "01J00000000000000000000000"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetUserAuthByEmail(ctx, "ghost@example.com"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWithSchema_RejectsBadIdentifier(t *testing.T) {
	t.Parallel()
	st := &PostgresStore{}
	for _, bad := range []string{"", "1abc", "a-b", `x"; drop`} {
		if err := WithSchema(bad)(st); err == nil {
			t.Fatalf("WithSchema(%q) accepted", bad)
		}
	}
}
