// Package authapi exposes the session lifecycle over HTTP.
//
// All login failures surface as one 401 invalid_credentials and all
// refresh failures as one 401 invalid_refresh_token; the distinguishing
// detail goes to the audit log only. The single deliberate exception is
// registration against a taken email, which returns 409 email_exists.
package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP parsing.
	TrustProxy bool

	// MaxBodyBytes caps request bodies before JSON decoding.
	MaxBodyBytes int64
}

// LoadConfigFromEnv loads API config from environment variables with safe
// defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:   envBool("CORTEX_AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("CORTEX_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
