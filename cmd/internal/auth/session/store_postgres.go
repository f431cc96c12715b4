package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on <schema>.sessions.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

type PostgresOption func(*PostgresStore) error

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		if !schemaRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.table = pgx.Identifier{schema, "sessions"}.Sanitize()
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	s := &PostgresStore{pool: pool, table: pgx.Identifier{"hearth", "sessions"}.Sanitize()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Row, error) {
	return createRow(ctx, s.pool, s.table, in)
}

func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM `+s.table+` WHERE id = $1`, sessionID))
}

// Rotate locks the presented row and decides inside one transaction.
// Reuse revokes every session of the user and commits before returning.
func (s *PostgresStore) Rotate(ctx context.Context, in RotateInput) (RotateOutcome, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return RotateOutcome{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := getByRefreshHashForUpdateTx(ctx, tx, s.table, in.RefreshHash)
	if err != nil {
		return RotateOutcome{}, err
	}

	switch err := decideRotation(old, in.Now); {
	case errors.Is(err, ErrRefreshReuseDetected):
		if err := revokeAllTx(ctx, tx, s.table, in.Now, old.UserID, reasonReuse); err != nil {
			return RotateOutcome{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return RotateOutcome{}, err
		}
		return RotateOutcome{Old: old}, ErrRefreshReuseDetected
	case err != nil:
		return RotateOutcome{Old: old}, err
	}

	dev := in.Device
	if dev.Platform == "" {
		dev.Platform = old.Platform
	}
	fresh, err := createRow(ctx, tx, s.table, CreateInput{
		Now:         in.Now,
		UserID:      old.UserID,
		Device:      dev,
		RefreshHash: in.NewRefreshHash,
		ExpiresAt:   in.NewExpiresAt,
	})
	if err != nil {
		return RotateOutcome{}, err
	}
	if err := markRotatedTx(ctx, tx, s.table, in.Now, old.ID, fresh.ID); err != nil {
		return RotateOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return RotateOutcome{}, err
	}
	return RotateOutcome{Old: old, New: fresh}, nil
}

func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE `+s.table+` SET last_used_at = $2 WHERE id = $1`, sessionID, now)
	return err
}

// Revoke is idempotent; the first reason sticks.
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID, reason string) error {
	return revokeAllTx(ctx, s.pool, s.table, now, userID, reason)
}
