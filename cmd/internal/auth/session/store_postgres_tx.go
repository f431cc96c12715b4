package session

import (
	"context"
	"errors"
	"time"

	"hearth/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const rowColumns = `id, user_id, refresh_token_hash, created_at, last_used_at, expires_at,
	revoked_at, replaced_by_session_id, revocation_reason, platform`

func scanRow(r pgx.Row) (Row, error) {
	var row Row
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.RefreshTokenHash,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.ReplacedBySessionID,
		&row.RevocationReason,
		&row.Platform,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

func getByRefreshHashForUpdateTx(ctx context.Context, tx pgx.Tx, table, refreshHash string) (Row, error) {
	return scanRow(tx.QueryRow(ctx,
		`SELECT `+rowColumns+` FROM `+table+` WHERE refresh_token_hash = $1 FOR UPDATE`,
		refreshHash,
	))
}

func createRow(ctx context.Context, q querier, table string, in CreateInput) (Row, error) {
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Row{}, err
	}
	platform := in.Device.Platform
	if platform == "" {
		platform = PlatformUnknown
	}

	var ip any
	if in.Device.IP != nil {
		ip = in.Device.IP.String()
	}

	_, err = q.Exec(ctx, `
		INSERT INTO `+table+` (
			id, user_id, refresh_token_hash,
			created_at, last_used_at, expires_at,
			user_agent, ip, platform
		) VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $8)
	`, id, in.UserID, in.RefreshHash, in.Now, in.ExpiresAt, nullIfEmpty(in.Device.UserAgent), ip, string(platform))
	if err != nil {
		return Row{}, err
	}

	now := in.Now
	return Row{
		ID:               id,
		UserID:           in.UserID,
		RefreshTokenHash: in.RefreshHash,
		CreatedAt:        now,
		LastUsedAt:       &now,
		ExpiresAt:        in.ExpiresAt,
		Platform:         platform,
	}, nil
}

func markRotatedTx(ctx context.Context, tx pgx.Tx, table string, now time.Time, oldID, newID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE `+table+`
		SET last_used_at = $2,
		    revoked_at = $2,
		    replaced_by_session_id = $3,
		    revocation_reason = '`+reasonRotation+`'
		WHERE id = $1
	`, oldID, now, newID)
	return err
}

func revokeAllTx(ctx context.Context, q querier, table string, now time.Time, userID, reason string) error {
	_, err := q.Exec(ctx, `
		UPDATE `+table+`
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, reason)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
