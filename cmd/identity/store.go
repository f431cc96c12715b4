package identity

import (
	"context"
	"time"
)

// User is a hearth account.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	CreatedAt time.Time
}

// UserAuth is a User together with its stored password hash.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput registers an account. PasswordHash is an already encoded hash.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Now          time.Time
}

// Store is the account persistence boundary.
//
// CreateUser returns a ConflictError{Field: "email"} when the normalized email
// is taken. Lookups return ErrNotFound for missing rows.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
}
