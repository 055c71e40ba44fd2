package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvJWTSecret         = "CORTEX_JWT_SECRET"
	EnvIssuer            = "CORTEX_AUTH_ISSUER"
	EnvAccessTTL         = "CORTEX_AUTH_ACCESS_TTL"
	EnvRefreshTTL        = "CORTEX_AUTH_REFRESH_TTL"
	EnvRefreshTokenBytes = "CORTEX_AUTH_REFRESH_TOKEN_BYTES"
	EnvClockSkew         = "CORTEX_AUTH_CLOCK_SKEW"
)

const (
	defaultIssuer            = "cortex"
	defaultAccessTTL         = 15 * time.Minute
	defaultRefreshTTL        = 7 * 24 * time.Hour
	defaultRefreshTokenBytes = 32
	defaultClockSkew         = 30 * time.Second

	minJWTSecretBytes = 32
)

// Config holds session issuance parameters.
type Config struct {
	// Issuer is stamped into the iss claim of access tokens.
	Issuer string

	// JWTSecret signs access tokens (HS256). At least 32 bytes.
	JWTSecret string

	// AccessTokenTTL bounds access-token validity.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL bounds refresh-token validity.
	RefreshTokenTTL time.Duration

	// RefreshTokenBytes is the entropy of raw refresh tokens before hex
	// encoding. Between 32 and 64.
	RefreshTokenBytes int

	// ClockSkew is the leeway granted when validating token timestamps.
	ClockSkew time.Duration
}

// Validate checks the configuration and wraps failures in ErrConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("%w: %s is required", ErrConfig, EnvJWTSecret)
	}
	if len(c.JWTSecret) < minJWTSecretBytes {
		return fmt.Errorf("%w: %s must be at least %d bytes", ErrConfig, EnvJWTSecret, minJWTSecretBytes)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("%w: access token TTL must be positive", ErrConfig)
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("%w: refresh token TTL must be positive", ErrConfig)
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("%w: refresh token TTL must exceed access token TTL", ErrConfig)
	}
	if c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 64 {
		return fmt.Errorf("%w: refresh token bytes must be in [32, 64]", ErrConfig)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	}
	return nil
}

// LoadConfigFromEnv builds a Config from environment variables, applying
// defaults for everything except the signing secret.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Issuer:            defaultIssuer,
		JWTSecret:         os.Getenv(EnvJWTSecret),
		AccessTokenTTL:    defaultAccessTTL,
		RefreshTokenTTL:   defaultRefreshTTL,
		RefreshTokenBytes: defaultRefreshTokenBytes,
		ClockSkew:         defaultClockSkew,
	}

	if v := strings.TrimSpace(os.Getenv(EnvIssuer)); v != "" {
		cfg.Issuer = v
	}

	var err error
	if cfg.AccessTokenTTL, err = envDuration(EnvAccessTTL, cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = envDuration(EnvRefreshTTL, cfg.RefreshTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.ClockSkew, err = envDuration(EnvClockSkew, cfg.ClockSkew); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(os.Getenv(EnvRefreshTokenBytes)); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, EnvRefreshTokenBytes, convErr)
		}
		cfg.RefreshTokenBytes = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrConfig, key, err)
	}
	return d, nil
}
