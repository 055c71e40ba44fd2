package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists refresh-token records in PostgreSQL.
//
// The pool is owned by the caller and must not be closed here. Schema
// identifiers are quoted through pgx to keep identifier injection out.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "cortex").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("session: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "cortex",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "refresh_tokens"}.Sanitize()
}

// SaveRefreshToken inserts a new active record.
func (s *PostgresStore) SaveRefreshToken(ctx context.Context, rec RefreshTokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.TokenHash) == "" {
		return fmt.Errorf("session: refresh token record missing id or hash")
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     id, token_hash, user_id, expires_at, is_revoked, created_at
		   ) VALUES ($1, $2, $3, $4, FALSE, $5)`,
		rec.ID,
		rec.TokenHash,
		rec.UserID,
		rec.ExpiresAt.UTC(),
		created,
	)
	if err != nil {
		return fmt.Errorf("session: save refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken loads a record by digest.
func (s *PostgresStore) FindRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshTokenRecord{}, err
	}

	var rec RefreshTokenRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, token_hash, user_id, expires_at, is_revoked,
		        revoked_at, revocation_reason, replaced_by_hash, created_at
		   FROM `+s.table()+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&rec.ID, &rec.TokenHash, &rec.UserID, &rec.ExpiresAt, &rec.IsRevoked,
		&rec.RevokedAt, &rec.RevocationReason, &rec.ReplacedByHash, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshTokenRecord{}, ErrTokenNotFound
	}
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("session: find refresh token: %w", err)
	}
	return rec, nil
}

// RevokeActive flips the record from active to revoked with a single
// conditional update. Zero rows affected means the record is either gone
// or was revoked by a concurrent caller; a follow-up read distinguishes
// the two.
func (s *PostgresStore) RevokeActive(ctx context.Context, now time.Time, id, reason string, replacedByHash *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET is_revoked = TRUE,
		        revoked_at = $2,
		        revocation_reason = $3,
		        replaced_by_hash = $4
		  WHERE id = $1
		    AND is_revoked = FALSE`,
		id,
		now.UTC(),
		reason,
		replacedByHash,
	)
	if err != nil {
		return fmt.Errorf("session: revoke refresh token: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var revoked bool
	err = s.pool.QueryRow(ctx,
		`SELECT is_revoked FROM `+s.table()+` WHERE id = $1`,
		id,
	).Scan(&revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("session: revoke refresh token: %w", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	return fmt.Errorf("session: revoke refresh token: record %s active but not updated", id)
}

// RevokeAllUserTokens revokes every active record owned by userID.
func (s *PostgresStore) RevokeAllUserTokens(ctx context.Context, now time.Time, userID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET is_revoked = TRUE,
		        revoked_at = $2,
		        revocation_reason = $3
		  WHERE user_id = $1
		    AND is_revoked = FALSE`,
		userID,
		now.UTC(),
		reason,
	)
	if err != nil {
		return fmt.Errorf("session: revoke all user tokens: %w", err)
	}
	return nil
}
