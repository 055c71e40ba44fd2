package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used when no database is configured
// (dev mode) and by unit tests. It keeps the same error contract and the
// same revoke-once semantics as PostgresStore: all state transitions
// happen under one lock, so RevokeActive is a true compare-and-set.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]RefreshTokenRecord
	byHash map[string]string // token_hash -> id
}

// NewMemoryStore constructs an empty in-memory refresh-token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]RefreshTokenRecord),
		byHash: make(map[string]string),
	}
}

// SaveRefreshToken inserts a new active record.
func (s *MemoryStore) SaveRefreshToken(ctx context.Context, rec RefreshTokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.TokenHash) == "" {
		return fmt.Errorf("session: refresh token record missing id or hash")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.IsRevoked = false
	rec.RevokedAt = nil
	rec.RevocationReason = nil
	rec.ReplacedByHash = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.ID]; exists {
		return fmt.Errorf("session: duplicate refresh token id %s", rec.ID)
	}
	if _, exists := s.byHash[rec.TokenHash]; exists {
		return fmt.Errorf("session: duplicate refresh token hash")
	}
	s.byID[rec.ID] = rec
	s.byHash[rec.TokenHash] = rec.ID
	return nil
}

// FindRefreshToken loads a record by digest.
func (s *MemoryStore) FindRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshTokenRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return RefreshTokenRecord{}, ErrTokenNotFound
	}
	return s.byID[id], nil
}

// RevokeActive revokes the record if and only if it is still active.
func (s *MemoryStore) RevokeActive(ctx context.Context, now time.Time, id, reason string, replacedByHash *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrTokenNotFound
	}
	if rec.IsRevoked {
		return ErrTokenRevoked
	}

	t := now.UTC()
	r := reason
	rec.IsRevoked = true
	rec.RevokedAt = &t
	rec.RevocationReason = &r
	rec.ReplacedByHash = replacedByHash
	s.byID[id] = rec
	return nil
}

// RevokeAllUserTokens revokes every active record owned by userID.
func (s *MemoryStore) RevokeAllUserTokens(ctx context.Context, now time.Time, userID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := now.UTC()
	for id, rec := range s.byID {
		if rec.UserID != userID || rec.IsRevoked {
			continue
		}
		r := reason
		rec.IsRevoked = true
		rec.RevokedAt = &t
		rec.RevocationReason = &r
		s.byID[id] = rec
	}
	return nil
}

// Snapshot returns a copy of every stored record. Test helper.
func (s *MemoryStore) Snapshot() []RefreshTokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RefreshTokenRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec)
	}
	return out
}
