package session

import (
	"context"
	"time"
)

// Revocation reasons recorded on refresh-token records.
const (
	ReasonRotation = "rotation"
	ReasonLogout   = "logout"
	ReasonExpired  = "expired"
	ReasonReuse    = "reuse_detected"
)

// RefreshTokenRecord is the stored shape of a refresh token. TokenHash is
// the only representation of the token value that ever reaches a store.
type RefreshTokenRecord struct {
	ID               string
	TokenHash        string
	UserID           string
	ExpiresAt        time.Time
	IsRevoked        bool
	RevokedAt        *time.Time
	RevocationReason *string
	ReplacedByHash   *string
	CreatedAt        time.Time
}

// Store persists refresh-token records.
//
// RevokeActive is the concurrency hinge of rotation: it must flip a
// record from active to revoked exactly once, atomically, and report
// ErrTokenRevoked when another caller won the race. Callers rely on that
// to turn concurrent rotations of the same token into a replay signal.
type Store interface {
	// SaveRefreshToken inserts a new active record.
	SaveRefreshToken(ctx context.Context, rec RefreshTokenRecord) error

	// FindRefreshToken loads a record by its digest, revoked or not.
	// Returns ErrTokenNotFound when no record matches.
	FindRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error)

	// RevokeActive conditionally revokes the record with the given id,
	// recording reason and, for rotation, the successor's digest. It
	// returns ErrTokenRevoked if the record was already revoked and
	// ErrTokenNotFound if it does not exist.
	RevokeActive(ctx context.Context, now time.Time, id, reason string, replacedByHash *string) error

	// RevokeAllUserTokens revokes every active record owned by userID.
	// Revoking a user with no active tokens is not an error.
	RevokeAllUserTokens(ctx context.Context, now time.Time, userID, reason string) error
}
