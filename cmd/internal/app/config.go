package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the database is configured and
	// reachable.
	ReadinessRequireDB bool

	// If true, CORTEX_TOKEN_HMAC_KEY must be set (>= 32 bytes) and
	// refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("CORTEX_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("CORTEX_LOG_LEVEL", "info"),
		LogFormat: EnvString("CORTEX_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("CORTEX_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CORTEX_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CORTEX_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CORTEX_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CORTEX_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("CORTEX_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("CORTEX_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("CORTEX_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("CORTEX_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("CORTEX_REQUIRE_TOKEN_HMAC", false),

		MetricsEnabled: EnvBool("CORTEX_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvStrings("CORTEX_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("CORTEX_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("CORTEX_CORS_MAX_AGE_SECONDS", 600),
	}
}
