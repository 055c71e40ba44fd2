package identity

import (
	"context"
	"time"
)

// Role is the coarse authorization level baked into access tokens.
type Role string

const (
	// RoleUser is the default role assigned at registration.
	RoleUser Role = "USER"
	// RoleAdmin is granted by out-of-scope role management.
	RoleAdmin Role = "ADMIN"
)

// User is Cortex's canonical security principal.
// It is the "public view": it never carries the password hash.
type User struct {
	ID        string
	Email     string
	Name      *string
	Role      Role
	CreatedAt time.Time
}

// UserWithPassword is the login-path projection of a user.
// The hash must never be logged or serialized outward.
type UserWithPassword struct {
	ID           string
	Email        string
	Name         *string
	Role         Role
	CreatedAt    time.Time
	PasswordHash string
}

// CreateUserInput describes a user registration request.
// The caller hashes the password; stores only ever see the digest.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Name         *string
	Now          time.Time
}

// Store is the user persistence boundary consumed by the auth use cases.
//
// Implementations must classify unique-constraint violations on email as
// ConflictError{Field: "email"} and missing rows as NotFoundError.
type Store interface {
	// CreateUser creates a new user with RoleUser.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserByEmailWithPassword loads the login projection by canonical email.
	GetUserByEmailWithPassword(ctx context.Context, email string) (UserWithPassword, error)

	// GetUserByID loads the public view by ID.
	GetUserByID(ctx context.Context, id string) (User, error)
}
