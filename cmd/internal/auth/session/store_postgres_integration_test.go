package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hearth/cmd/identity/ids"
	"hearth/cmd/internal/pgtest"
	"hearth/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newPostgresService(t *testing.T) (*Service, *pgxpool.Pool, string) {
	t.Helper()
	pool, schema := pgtest.Open(t)
	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	mgr, cfg := newTestManager(t)
	return NewService(cfg, store, mgr, WithHasher(token.NewHasher(nil))), pool, schema
}

func mustCreateUser(t *testing.T, pool *pgxpool.Pool, schema string) string {
	t.Helper()
	id := ids.MustNewULID(time.Now())
	pgtest.Exec(t, pool,
		`INSERT INTO `+pgx.Identifier{schema, "users"}.Sanitize()+` (id, email, email_norm) VALUES ($1, $2, $2)`,
		id, id+"@example.com",
	)
	return id
}

func TestPostgresSession_IssueRotateRevoke(t *testing.T) {
	t.Parallel()
	svc, pool, schema := newPostgresService(t)
	userID := mustCreateUser(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first, err := svc.IssueSession(ctx, now, userID, DeviceContext{Platform: PlatformWeb, UserAgent: "hearth-test/1.0"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, _, err := svc.ValidateAccessToken(ctx, first.AccessToken, now); err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}

	second, err := svc.RotateRefresh(ctx, now.Add(time.Second), first.RefreshToken, DeviceContext{})
	if err != nil {
		t.Fatalf("RotateRefresh: %v", err)
	}
	if _, _, err := svc.ValidateAccessToken(ctx, first.AccessToken, now.Add(time.Second)); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("rotated session still valid: %v", err)
	}

	if err := svc.RevokeSession(ctx, now.Add(2*time.Second), userID, second.SessionID); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, _, err := svc.ValidateAccessToken(ctx, second.AccessToken, now.Add(2*time.Second)); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("revoked session still valid: %v", err)
	}
}

func TestPostgresSession_ConcurrentReuse(t *testing.T) {
	t.Parallel()
	svc, pool, schema := newPostgresService(t)
	userID := mustCreateUser(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now().UTC()

	first, err := svc.IssueSession(ctx, now, userID, DeviceContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RotateRefresh(ctx, now, first.RefreshToken, DeviceContext{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrRefreshReuseDetected):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful rotations = %d, want 1", ok)
	}

	var live int
	err = pool.QueryRow(ctx,
		`SELECT count(*) FROM `+pgx.Identifier{schema, "sessions"}.Sanitize()+` WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	).Scan(&live)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if live != 0 {
		t.Fatalf("live sessions after reuse = %d, want 0", live)
	}
}
