package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cortex/cmd/identity"
	"cortex/cmd/security/token"
)

// TokenIssuer mints and verifies the two token kinds of a session:
// short-lived signed access tokens, and opaque single-use refresh tokens
// handled only through digests.
type TokenIssuer interface {
	GenerateAccessToken(now time.Time, user identity.User) (signed string, expiresAt time.Time, err error)
	VerifyAccessToken(now time.Time, signed string) (AccessClaims, error)
	GenerateRefreshToken() (plain string, digest string, err error)
	HashToken(raw string) string
	CompareTokenHash(raw string, digest string) bool
}

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTIssuer implements TokenIssuer with HS256-signed JWTs for access
// tokens and hex-encoded random tokens for refresh.
type JWTIssuer struct {
	issuer            string
	secret            []byte
	accessTTL         time.Duration
	clockSkew         time.Duration
	refreshTokenBytes int
}

// NewJWTIssuer validates cfg and constructs a JWTIssuer from it.
func NewJWTIssuer(cfg Config) (*JWTIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JWTIssuer{
		issuer:            cfg.Issuer,
		secret:            []byte(cfg.JWTSecret),
		accessTTL:         cfg.AccessTokenTTL,
		clockSkew:         cfg.ClockSkew,
		refreshTokenBytes: cfg.RefreshTokenBytes,
	}, nil
}

// GenerateAccessToken signs a short-lived token for user. Claims carry
// the user's id (sub), email, and role as of issuance; role changes only
// take effect on the next issuance.
func (j *JWTIssuer) GenerateAccessToken(now time.Time, user identity.User) (string, time.Time, error) {
	now = now.UTC()
	exp := now.Add(j.accessTTL)

	claims := AccessClaims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken parses and validates a signed access token. Only
// HS256 is accepted; issuer, expiry, and subject presence are enforced.
func (j *JWTIssuer) VerifyAccessToken(now time.Time, signed string) (AccessClaims, error) {
	signed = strings.TrimSpace(signed)
	if signed == "" {
		return AccessClaims{}, ErrInvalidAccessToken
	}

	var claims AccessClaims
	_, err := jwt.ParseWithClaims(signed, &claims,
		func(t *jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now.UTC() }),
	)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return AccessClaims{}, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}
	return claims, nil
}

// GenerateRefreshToken returns a fresh opaque token and its storage
// digest. The plain value goes to the client and is never persisted.
func (j *JWTIssuer) GenerateRefreshToken() (string, string, error) {
	plain, err := token.NewOpaqueTokenHex(j.refreshTokenBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	return plain, j.HashToken(plain), nil
}

// HashToken maps a raw refresh token to its storage digest.
func (j *JWTIssuer) HashToken(raw string) string {
	return token.HashRefreshTokenHex(raw)
}

// CompareTokenHash reports in constant time whether raw hashes to digest.
func (j *JWTIssuer) CompareTokenHash(raw, digest string) bool {
	return token.CompareDigestHex(j.HashToken(raw), digest)
}
