// Package session implements the authenticated session lifecycle:
// registration, credential login, stateless access-token issuance, and
// opaque refresh-token rotation with replay detection.
//
// Refresh tokens are single-use. Each refresh-token record moves through
// a one-way state machine:
//
//	ACTIVE -> ROTATED     (revoked, replaced_by_hash set to the successor)
//	ACTIVE -> LOGGED_OUT  (revoked by an explicit logout)
//	ACTIVE -> EXPIRED     (revoked when presented past expires_at)
//	ACTIVE -> REPLAYED    (revoked alongside every other token of the user)
//
// Presenting a token that is already revoked is treated as replay: every
// refresh token belonging to that user is revoked and the caller gets a
// reuse error. The raw token value never touches storage; stores only
// ever see its digest.
package session
