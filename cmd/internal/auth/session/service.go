package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cortex/cmd/identity"
	"cortex/cmd/security/password"
)

// maxRefreshTokenLen bounds presented refresh tokens before hashing.
const maxRefreshTokenLen = 4096

// TokenPair is the result of every successful issuance: a signed access
// token and the raw refresh token, with their expiries.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult pairs the public user view with freshly issued tokens.
type AuthResult struct {
	User   identity.User
	Tokens TokenPair
}

// Service implements the session use cases on top of an identity store,
// a refresh-token store, and a token issuer.
type Service struct {
	cfg    Config
	pw     password.Config
	users  identity.Store
	tokens Store
	issuer TokenIssuer
}

// NewService wires a Service. cfg must already be validated.
func NewService(cfg Config, pw password.Config, users identity.Store, tokens Store, issuer TokenIssuer) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if users == nil || tokens == nil || issuer == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrConfig)
	}
	return &Service{cfg: cfg, pw: pw, users: users, tokens: tokens, issuer: issuer}, nil
}

// Register creates a user from an email and plaintext password and logs
// them in, returning the new user with a fresh token pair. A taken email
// surfaces as DuplicateEmailError.
func (s *Service) Register(ctx context.Context, now time.Time, email, plaintext string, name *string) (AuthResult, error) {
	hash, err := s.pw.Hash(plaintext)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Name:         name,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			return AuthResult{}, DuplicateEmailError{Email: strings.TrimSpace(email)}
		}
		return AuthResult{}, err
	}

	pair, err := s.issuePair(ctx, now, user)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Tokens: pair}, nil
}

// Login verifies credentials and issues a fresh token pair. Both failure
// modes unwrap to ErrInvalidCredentials; the typed errors exist for
// server-side logs only and must never reach clients verbatim.
func (s *Service) Login(ctx context.Context, now time.Time, email, plaintext string) (AuthResult, error) {
	email = strings.TrimSpace(email)

	rec, err := s.users.GetUserByEmailWithPassword(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			s.pw.VerifyDummy(plaintext)
			return AuthResult{}, UserNotFoundForLoginError{Email: email}
		}
		return AuthResult{}, err
	}

	if !s.pw.Verify(rec.PasswordHash, plaintext) {
		return AuthResult{}, InvalidPasswordForLoginError{UserID: rec.ID}
	}

	user := identity.User{
		ID:        rec.ID,
		Email:     rec.Email,
		Name:      rec.Name,
		Role:      rec.Role,
		CreatedAt: rec.CreatedAt,
	}

	pair, err := s.issuePair(ctx, now, user)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Tokens: pair}, nil
}

// Refresh rotates a refresh token: it validates the presented token,
// issues a replacement pair, and only then retires the old record. A
// revoked token, or losing the retire race to a concurrent rotation, is
// treated as replay and revokes every token the user holds.
func (s *Service) Refresh(ctx context.Context, now time.Time, raw string) (TokenPair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRefreshTokenLen {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	rec, err := s.tokens.FindRefreshToken(ctx, s.issuer.HashToken(raw))
	if errors.Is(err, ErrTokenNotFound) {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return TokenPair{}, err
	}

	// Re-verify the loaded digest with the standard comparator rather
	// than trusting the lookup path alone.
	if !s.issuer.CompareTokenHash(raw, rec.TokenHash) {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	if rec.IsRevoked {
		if err := s.tokens.RevokeAllUserTokens(ctx, now, rec.UserID, ReasonReuse); err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, RefreshReuseDetectedError{UserID: rec.UserID}
	}

	if !rec.ExpiresAt.After(now) {
		err := s.tokens.RevokeActive(ctx, now, rec.ID, ReasonExpired, nil)
		if err != nil && !errors.Is(err, ErrTokenRevoked) && !errors.Is(err, ErrTokenNotFound) {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetUserByID(ctx, rec.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return TokenPair{}, UserNotFoundForSessionError{UserID: rec.UserID}
		}
		return TokenPair{}, err
	}

	// Issue the successor before retiring the predecessor: a failure
	// here leaves the old token usable instead of stranding the client.
	pair, err := s.issuePair(ctx, now, user)
	if err != nil {
		return TokenPair{}, err
	}

	newHash := s.issuer.HashToken(pair.RefreshToken)
	err = s.tokens.RevokeActive(ctx, now, rec.ID, ReasonRotation, &newHash)
	if errors.Is(err, ErrTokenRevoked) {
		// A concurrent caller retired this token first. Only one
		// rotation per token may succeed, so fold this one into the
		// replay path, taking the pair just issued down with the rest.
		if revErr := s.tokens.RevokeAllUserTokens(ctx, now, rec.UserID, ReasonReuse); revErr != nil {
			return TokenPair{}, revErr
		}
		return TokenPair{}, RefreshReuseDetectedError{UserID: rec.UserID}
	}
	if err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

// Logout revokes the presented refresh token. It is idempotent: unknown,
// malformed, and already-revoked tokens all succeed silently.
func (s *Service) Logout(ctx context.Context, now time.Time, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRefreshTokenLen {
		return nil
	}

	rec, err := s.tokens.FindRefreshToken(ctx, s.issuer.HashToken(raw))
	if errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.issuer.CompareTokenHash(raw, rec.TokenHash) {
		return nil
	}
	if rec.IsRevoked {
		return nil
	}

	err = s.tokens.RevokeActive(ctx, now, rec.ID, ReasonLogout, nil)
	if errors.Is(err, ErrTokenRevoked) || errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	return err
}

// LogoutAll revokes every refresh token the user holds.
func (s *Service) LogoutAll(ctx context.Context, now time.Time, userID string) error {
	return s.tokens.RevokeAllUserTokens(ctx, now, userID, ReasonLogout)
}

// CurrentUser resolves the public user view for an authenticated subject.
func (s *Service) CurrentUser(ctx context.Context, userID string) (identity.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, UserNotFoundForSessionError{UserID: userID}
		}
		return identity.User{}, err
	}
	return user, nil
}

// VerifyAccess validates a signed access token and returns its claims.
func (s *Service) VerifyAccess(now time.Time, signed string) (AccessClaims, error) {
	return s.issuer.VerifyAccessToken(now, signed)
}

// issuePair mints an access token and persists a new refresh record,
// returning the raw refresh token to hand to the client.
func (s *Service) issuePair(ctx context.Context, now time.Time, user identity.User) (TokenPair, error) {
	access, accessExp, err := s.issuer.GenerateAccessToken(now, user)
	if err != nil {
		return TokenPair{}, err
	}

	plain, digest, err := s.issuer.GenerateRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return TokenPair{}, err
	}

	refreshExp := now.UTC().Add(s.cfg.RefreshTokenTTL)
	err = s.tokens.SaveRefreshToken(ctx, RefreshTokenRecord{
		ID:        id,
		TokenHash: digest,
		UserID:    user.ID,
		ExpiresAt: refreshExp,
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     plain,
		RefreshExpiresAt: refreshExp,
	}, nil
}
