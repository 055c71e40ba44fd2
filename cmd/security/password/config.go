package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used at hash time.
// 12 is the service-wide baseline; raising it is an ops decision.
const DefaultCost = 12

// Policy controls password validation boundaries.
type Policy struct {
	MinLength int
	// MaxLength defaults to bcrypt's 72-byte input limit; bytes beyond it
	// would be silently ignored by bcrypt, so we reject instead.
	MaxLength int
}

// Config is the single configuration surface for this package.
type Config struct {
	Cost   int
	Policy Policy
}

// DefaultConfig returns the baseline hashing configuration.
func DefaultConfig() Config {
	return Config{
		Cost: DefaultCost,
		Policy: Policy{
			MinLength: 8,
			MaxLength: 72,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - CORTEX_BCRYPT_COST (valid bcrypt range, 10..31 accepted here)
// - CORTEX_PASSWORD_MIN_LEN
// - CORTEX_PASSWORD_MAX_LEN (capped at 72)
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("CORTEX_BCRYPT_COST"); ok {
		n, err := atoiInRange(v, 10, bcrypt.MaxCost)
		if err != nil {
			return Config{}, fmt.Errorf("CORTEX_BCRYPT_COST: %w", ErrInvalidCost)
		}
		cfg.Cost = n
	}

	if v, ok := os.LookupEnv("CORTEX_PASSWORD_MIN_LEN"); ok {
		n, err := atoiInRange(v, 1, 72)
		if err != nil {
			return Config{}, fmt.Errorf("CORTEX_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("CORTEX_PASSWORD_MAX_LEN"); ok {
		n, err := atoiInRange(v, 1, 72)
		if err != nil {
			return Config{}, fmt.Errorf("CORTEX_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}
