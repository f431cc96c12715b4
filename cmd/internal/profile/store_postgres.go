package profile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("profile: invalid schema identifier %q", schema)
		}
		s.table = pgx.Identifier{schema, "profiles"}.Sanitize()
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("profile: nil pool")
	}
	s := &PostgresStore{pool: pool, table: pgx.Identifier{"hearth", "profiles"}.Sanitize()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

const profileColumns = `id, name, avatar_url, created_at, updated_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) Create(ctx context.Context, id, name string, now time.Time) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, ErrInvalidInput
	}
	name, err := cleanName(name)
	if err != nil {
		return Profile{}, err
	}

	p, err := scanProfile(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table+` (id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 RETURNING `+profileColumns,
		id, name, now.UTC(),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Profile{}, ErrDuplicateKey
			case "23503":
				return Profile{}, ErrUnknownUser
			}
		}
		return Profile{}, err
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Profile, error) {
	return scanProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM `+s.table+` WHERE id = $1`,
		strings.TrimSpace(id),
	))
}

// Update applies patch with COALESCE so absent fields keep their value. An
// empty avatar_url is stored as NULL.
func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch, now time.Time) (Profile, error) {
	patch, err := normalizePatch(patch)
	if err != nil {
		return Profile{}, err
	}
	if patch.empty() {
		return s.Get(ctx, id)
	}

	return scanProfile(s.pool.QueryRow(ctx,
		`UPDATE `+s.table+`
		    SET name = COALESCE($2, name),
		        avatar_url = CASE WHEN $3::text IS NULL THEN avatar_url ELSE NULLIF($3::text, '') END,
		        updated_at = $4
		  WHERE id = $1
		RETURNING `+profileColumns,
		strings.TrimSpace(id), patch.Name, patch.AvatarURL, now.UTC(),
	))
}
