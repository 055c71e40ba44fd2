package password

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hash hashes a password with bcrypt at the configured cost and returns the
// encoded hash string ($2a$12$...).
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	cost := c.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify checks whether password matches the given encoded hash.
// It returns false for a mismatch AND for a malformed hash: the caller must
// not be able to distinguish the two (no oracle for corrupted records).
func (c Config) Verify(encodedHash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
}

// Validate applies the length policy without hashing.
func (c Config) Validate(password string) error {
	if len(password) < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if c.Policy.MaxLength > 0 && len(password) > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	return nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// VerifyDummy burns one bcrypt comparison against a throwaway hash at the
// configured cost. Login paths call it when no user exists so that unknown
// emails cost the same as wrong passwords.
func (c Config) VerifyDummy(password string) {
	dummyOnce.Do(func() {
		cost := c.Cost
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			cost = DefaultCost
		}
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cortex-timing-equalizer"), cost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Hash hashes with the default configuration (bcrypt cost 12).
func Hash(password string) (string, error) {
	return DefaultConfig().Hash(password)
}

// Verify checks a password against a hash with the default configuration.
func Verify(encodedHash, password string) bool {
	return DefaultConfig().Verify(encodedHash, password)
}
