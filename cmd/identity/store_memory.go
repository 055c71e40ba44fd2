package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used when no database is configured
// (dev mode) and by unit tests. It mirrors PostgresStore's error contract.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]memUser
	byEmail map[string]string // email_norm -> id
}

type memUser struct {
	user         User
	passwordHash string
}

// NewMemoryStore constructs an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]memUser),
		byEmail: make(map[string]string),
	}
}

// CreateUser creates a new user with RoleUser.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[norm]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:        id,
		Email:     email,
		Name:      pgTrimPtr(in.Name),
		Role:      RoleUser,
		CreatedAt: now,
	}
	s.byID[id] = memUser{user: u, passwordHash: in.PasswordHash}
	s.byEmail[norm] = id

	return u, nil
}

// GetUserByEmailWithPassword loads the login projection by canonical email.
func (s *MemoryStore) GetUserByEmailWithPassword(ctx context.Context, email string) (UserWithPassword, error) {
	const op = "identity.GetUserByEmailWithPassword"

	if err := ctx.Err(); err != nil {
		return UserWithPassword{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserWithPassword{}, NotFoundError{Op: op, Resource: "user"}
	}
	m := s.byID[id]

	return UserWithPassword{
		ID:           m.user.ID,
		Email:        m.user.Email,
		Name:         m.user.Name,
		Role:         m.user.Role,
		CreatedAt:    m.user.CreatedAt,
		PasswordHash: m.passwordHash,
	}, nil
}

// GetUserByID loads the public view by ID.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return m.user, nil
}

// SetRole updates a user's role in place. It exists for role management
// wiring and tests (role freshness across rotation); registration always
// starts at RoleUser.
func (s *MemoryStore) SetRole(ctx context.Context, id string, role Role) error {
	const op = "identity.SetRole"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	m.user.Role = role
	s.byID[id] = m
	return nil
}

// DeleteUser removes a user entirely (account deletion is out-of-scope
// elsewhere; the session layer still needs to observe "identity gone").
func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	const op = "identity.DeleteUser"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	delete(s.byEmail, NormalizeEmail(m.user.Email))
	delete(s.byID, id)
	return nil
}
