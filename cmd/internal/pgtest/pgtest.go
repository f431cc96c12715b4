// Package pgtest opens a throwaway Postgres schema for integration tests.
//
// Tests are opt-in through HEARTH_TEST_DATABASE_URL. Outside CI an unreachable
// server skips the test instead of failing it.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"hearth/cmd/identity/ids"
	"hearth/cmd/internal/app/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const EnvURL = "HEARTH_TEST_DATABASE_URL"

// Open returns a pool and a freshly migrated schema. Both are dropped when
// the test ends.
func Open(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvURL))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", EnvURL)
	}

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvURL, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}

	schema := "hearth_it_" + strings.ToLower(ids.MustNewULID(time.Now()))
	if _, err := migrations.Up(ctx, pool, schema); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		pool.Close()
	})
	return pool, schema
}

// Exec runs sql and fails the test on error.
func Exec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func shouldSkip(err error) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
