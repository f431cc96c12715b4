// Package migrations embeds the hearth schema and applies it with goose.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Up creates schema if needed and applies every pending migration inside it.
// The tables are unqualified in the SQL files; the migration connection runs
// with search_path set to schema, so one set of files serves production and
// per-test schemas alike.
func Up(ctx context.Context, pool *pgxpool.Pool, schema string) ([]*goose.MigrationResult, error) {
	if pool == nil {
		return nil, errors.New("migrations: nil pool")
	}
	if !schemaRe.MatchString(schema) {
		return nil, fmt.Errorf("migrations: invalid schema %q", schema)
	}

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return nil, fmt.Errorf("migrations: create schema: %w", err)
	}

	cfg := pool.Config()
	cfg.MaxConns = 1
	cfg.MinConns = 0
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	scoped, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("migrations: open: %w", err)
	}
	defer scoped.Close()

	db := stdlib.OpenDBFromPool(scoped)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	if err != nil {
		return nil, fmt.Errorf("migrations: provider: %w", err)
	}
	res, err := provider.Up(ctx)
	if err != nil {
		return res, fmt.Errorf("migrations: up: %w", err)
	}
	return res, nil
}
