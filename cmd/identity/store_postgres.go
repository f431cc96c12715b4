package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hearth/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps accounts in <schema>.users and <schema>.user_credentials.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema overrides the default "hearth" schema.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	st := &PostgresStore{pool: pool, schema: "hearth"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// CreateUser inserts the user and its credentials in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	u, err := newUser(op, in)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.ident("users")+` (id, email, email_norm, created_at)
		 VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.EmailNorm, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.ident("user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		u.ID, in.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, created_at FROM `+s.ident("users")+` WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return UserAuth{}, invalid(op, "missing email")
	}

	var out UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.email_norm, u.created_at, c.password_hash
		   FROM `+s.ident("users")+` u
		   JOIN `+s.ident("user_credentials")+` c ON c.user_id = u.id
		  WHERE u.email_norm = $1`,
		norm,
	).Scan(&out.User.ID, &out.User.Email, &out.User.EmailNorm, &out.User.CreatedAt, &out.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return UserAuth{}, err
	}
	return out, nil
}

func (s *PostgresStore) ident(table string) string {
	return pgx.Identifier{s.schema, table}.Sanitize()
}

// newUser validates input and mints the row shared by both stores.
func newUser(op string, in CreateUserInput) (User, error) {
	email := strings.TrimSpace(in.Email)
	if !ValidEmail(email) {
		return User{}, invalid(op, "invalid email")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "missing password hash")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Email: email, EmailNorm: NormalizeEmail(email), CreatedAt: now}, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}

	c := strings.ToLower(pgErr.ConstraintName)
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "unique", true
	}
}
