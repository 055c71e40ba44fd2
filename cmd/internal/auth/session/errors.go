package session

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Typed errors below unwrap to one of these so callers
// can classify with errors.Is while logs keep the richer context.
var (
	// ErrConfig reports invalid or missing session configuration.
	ErrConfig = errors.New("invalid session config")

	// ErrInvalidCredentials is the single kind surfaced for every login
	// failure; boundaries must not distinguish unknown email from wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is the single kind surfaced for malformed,
	// unknown, or expired refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrRefreshReuseDetected reports that an already-revoked refresh
	// token was presented. The whole token family has been revoked.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrDuplicateEmail reports a registration against a taken email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrSessionUserNotFound reports a valid token whose user no longer
	// exists.
	ErrSessionUserNotFound = errors.New("session user not found")

	// ErrInvalidAccessToken reports a failed access-token verification.
	ErrInvalidAccessToken = errors.New("invalid access token")
)

// Store-level sentinels.
var (
	// ErrTokenNotFound reports that no refresh-token record matches the
	// presented digest.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked reports a conditional revoke that found the record
	// already revoked. The service treats this as a lost race and enters
	// the reuse path.
	ErrTokenRevoked = errors.New("refresh token already revoked")
)

// DuplicateEmailError carries the email that collided during registration.
type DuplicateEmailError struct {
	Email string
}

func (e DuplicateEmailError) Error() string {
	return fmt.Sprintf("email %q already registered", e.Email)
}

func (e DuplicateEmailError) Unwrap() error { return ErrDuplicateEmail }

// UserNotFoundForLoginError is an internal login failure: no user exists
// for the email. Boundaries collapse it to ErrInvalidCredentials.
type UserNotFoundForLoginError struct {
	Email string
}

func (e UserNotFoundForLoginError) Error() string {
	return fmt.Sprintf("login failed: no user for email %q", e.Email)
}

func (e UserNotFoundForLoginError) Unwrap() error { return ErrInvalidCredentials }

// InvalidPasswordForLoginError is an internal login failure: the password
// did not verify. Boundaries collapse it to ErrInvalidCredentials.
type InvalidPasswordForLoginError struct {
	UserID string
}

func (e InvalidPasswordForLoginError) Error() string {
	return fmt.Sprintf("login failed: bad password for user %s", e.UserID)
}

func (e InvalidPasswordForLoginError) Unwrap() error { return ErrInvalidCredentials }

// RefreshReuseDetectedError carries the user whose token family was
// revoked after a replayed refresh token.
type RefreshReuseDetectedError struct {
	UserID string
}

func (e RefreshReuseDetectedError) Error() string {
	return fmt.Sprintf("refresh token reuse detected for user %s; all tokens revoked", e.UserID)
}

func (e RefreshReuseDetectedError) Unwrap() error { return ErrRefreshReuseDetected }

// UserNotFoundForSessionError reports a session operation whose token was
// valid but whose user record is gone.
type UserNotFoundForSessionError struct {
	UserID string
}

func (e UserNotFoundForSessionError) Error() string {
	return fmt.Sprintf("session user %s not found", e.UserID)
}

func (e UserNotFoundForSessionError) Unwrap() error { return ErrSessionUserNotFound }
