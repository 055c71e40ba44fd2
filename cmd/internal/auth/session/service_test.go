package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cortex/cmd/identity"
	"cortex/cmd/security/password"
)

// testPasswordConfig hashes at bcrypt.MinCost to keep the suite fast;
// production cost is covered in the password package tests.
func testPasswordConfig() password.Config {
	return password.Config{
		Cost:   bcrypt.MinCost,
		Policy: password.Policy{MinLength: 8, MaxLength: 72},
	}
}

// newTestService wires a Service over in-memory stores.
func newTestService(t *testing.T) (*Service, *identity.MemoryStore, *MemoryStore) {
	t.Helper()

	iss, err := NewJWTIssuer(testIssuerConfig())
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	users := identity.NewMemoryStore()
	tokens := NewMemoryStore()

	svc, err := NewService(testIssuerConfig(), testPasswordConfig(), users, tokens, iss)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, users, tokens
}

func mustRegister(t *testing.T, svc *Service, now time.Time, email string) AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), now, email, "correct horse battery", nil)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res
}

func findByRawToken(t *testing.T, svc *Service, tokens *MemoryStore, raw string) RefreshTokenRecord {
	t.Helper()
	rec, err := tokens.FindRefreshToken(context.Background(), svc.issuer.HashToken(raw))
	if err != nil {
		t.Fatalf("FindRefreshToken: %v", err)
	}
	return rec
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Register(ctx, now, "alice@example.com", "correct horse battery", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := svc.Register(ctx, now, "Alice@Example.com", "another password!!", nil)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	var dup DuplicateEmailError
	if !errors.As(err, &dup) || dup.Email != "Alice@Example.com" {
		t.Fatalf("expected DuplicateEmailError with email, got %#v", err)
	}
}

func TestRegister_PasswordPolicy(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestService(t)

	_, err := svc.Register(context.Background(), time.Now().UTC(), "a@b.c", "short", nil)
	if !errors.Is(err, password.ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if n := len(tokens.Snapshot()); n != 0 {
		t.Fatalf("no tokens should be issued on failed registration, got %d", n)
	}
}

func TestLogin_FailuresCollapseToInvalidCredentials(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")

	_, err := svc.Login(ctx, now, "nobody@example.com", "correct horse battery")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	var notFound UserNotFoundForLoginError
	if !errors.As(err, &notFound) {
		t.Fatalf("unknown email should carry UserNotFoundForLoginError, got %#v", err)
	}

	_, err = svc.Login(ctx, now, "alice@example.com", "wrong password!!")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	var badPw InvalidPasswordForLoginError
	if !errors.As(err, &badPw) || badPw.UserID != res.User.ID {
		t.Fatalf("wrong password should carry InvalidPasswordForLoginError, got %#v", err)
	}
}

func TestLogin_IssuesVerifiableTokens(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mustRegister(t, svc, now, "alice@example.com")

	res, err := svc.Login(ctx, now, "Alice@Example.COM", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := svc.VerifyAccess(now, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != res.User.ID || claims.Email != "alice@example.com" || claims.Role != "USER" {
		t.Fatalf("claims = %+v", claims)
	}

	me, err := svc.CurrentUser(ctx, claims.Subject)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if me.Email != "alice@example.com" {
		t.Fatalf("CurrentUser email = %q", me.Email)
	}
}

func TestRefresh_RotatesAndLinksSuccessor(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")
	old := res.Tokens.RefreshToken

	later := now.Add(10 * time.Minute)
	pair, err := svc.Refresh(ctx, later, old)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.RefreshToken == old {
		t.Fatalf("rotation must mint a new refresh token")
	}
	if pair.AccessToken == res.Tokens.AccessToken {
		t.Fatalf("rotation must mint a new access token")
	}

	oldRec := findByRawToken(t, svc, tokens, old)
	if !oldRec.IsRevoked {
		t.Fatalf("predecessor must be revoked after rotation")
	}
	if oldRec.RevocationReason == nil || *oldRec.RevocationReason != ReasonRotation {
		t.Fatalf("revocation reason = %v", oldRec.RevocationReason)
	}
	if oldRec.ReplacedByHash == nil || *oldRec.ReplacedByHash != svc.issuer.HashToken(pair.RefreshToken) {
		t.Fatalf("predecessor must link to successor digest")
	}

	newRec := findByRawToken(t, svc, tokens, pair.RefreshToken)
	if newRec.IsRevoked {
		t.Fatalf("successor must be active")
	}
}

func TestRefresh_ReuseRevokesAllUserTokens(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")
	tokenA := res.Tokens.RefreshToken

	// A second, independent session for the same user.
	sessionB, err := svc.Login(ctx, now, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	tokenB := sessionB.Tokens.RefreshToken

	// Rotate A, then replay it.
	pair, err := svc.Refresh(ctx, now.Add(time.Minute), tokenA)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	_, err = svc.Refresh(ctx, now.Add(2*time.Minute), tokenA)
	if !errors.Is(err, ErrRefreshReuseDetected) {
		t.Fatalf("replay: expected ErrRefreshReuseDetected, got %v", err)
	}
	var reuse RefreshReuseDetectedError
	if !errors.As(err, &reuse) || reuse.UserID != res.User.ID {
		t.Fatalf("expected RefreshReuseDetectedError for user, got %#v", err)
	}

	// The cascade takes down the rotated successor AND the unrelated
	// session B.
	for _, rec := range tokens.Snapshot() {
		if !rec.IsRevoked {
			t.Fatalf("record %s still active after reuse cascade", rec.ID)
		}
	}
	if _, err := svc.Refresh(ctx, now.Add(3*time.Minute), pair.RefreshToken); !errors.Is(err, ErrRefreshReuseDetected) {
		t.Fatalf("successor after cascade: expected ErrRefreshReuseDetected, got %v", err)
	}
	if _, err := svc.Refresh(ctx, now.Add(3*time.Minute), tokenB); !errors.Is(err, ErrRefreshReuseDetected) {
		t.Fatalf("independent session after cascade: expected ErrRefreshReuseDetected, got %v", err)
	}

	// Recovery is a fresh login.
	if _, err := svc.Login(ctx, now.Add(4*time.Minute), "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login after cascade: %v", err)
	}
}

func TestRefresh_ExpiredTokenIsTerminal(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")
	raw := res.Tokens.RefreshToken

	past := now.Add(7*24*time.Hour + time.Second)
	_, err := svc.Refresh(ctx, past, raw)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expired: expected ErrInvalidRefreshToken, got %v", err)
	}

	rec := findByRawToken(t, svc, tokens, raw)
	if !rec.IsRevoked || rec.RevocationReason == nil || *rec.RevocationReason != ReasonExpired {
		t.Fatalf("expired token must be revoked with reason expired, got %+v", rec)
	}

	// Presenting it again now hits the revoked branch.
	if _, err := svc.Refresh(ctx, past.Add(time.Minute), raw); !errors.Is(err, ErrRefreshReuseDetected) {
		t.Fatalf("expected ErrRefreshReuseDetected on second presentation, got %v", err)
	}
}

func TestRefresh_UnknownAndMalformedTokens(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, raw := range []string{"", "   ", "deadbeef", string(make([]byte, maxRefreshTokenLen+1))} {
		if _, err := svc.Refresh(ctx, now, raw); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("token %q: expected ErrInvalidRefreshToken, got %v", raw[:min(len(raw), 16)], err)
		}
	}
}

func TestRefresh_UserGone(t *testing.T) {
	t.Parallel()

	svc, users, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")
	if err := users.DeleteUser(ctx, res.User.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	_, err := svc.Refresh(ctx, now.Add(time.Minute), res.Tokens.RefreshToken)
	if !errors.Is(err, ErrSessionUserNotFound) {
		t.Fatalf("expected ErrSessionUserNotFound, got %v", err)
	}
}

func TestRefresh_PicksUpRoleChanges(t *testing.T) {
	t.Parallel()

	svc, users, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")

	if err := users.SetRole(ctx, res.User.ID, identity.RoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}

	pair, err := svc.Refresh(ctx, now.Add(time.Minute), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// The token issued before the promotion keeps its stale role until
	// it expires; the refreshed one carries the new role.
	oldClaims, err := svc.VerifyAccess(now.Add(time.Minute), res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess(old): %v", err)
	}
	if oldClaims.Role != "USER" {
		t.Fatalf("old token role = %q, want USER", oldClaims.Role)
	}

	newClaims, err := svc.VerifyAccess(now.Add(time.Minute), pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess(new): %v", err)
	}
	if newClaims.Role != "ADMIN" {
		t.Fatalf("new token role = %q, want ADMIN", newClaims.Role)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")
	raw := res.Tokens.RefreshToken

	if err := svc.Logout(ctx, now, raw); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	rec := findByRawToken(t, svc, tokens, raw)
	if !rec.IsRevoked || rec.RevocationReason == nil || *rec.RevocationReason != ReasonLogout {
		t.Fatalf("logout must revoke with reason logout, got %+v", rec)
	}

	// Repeats and junk all succeed silently.
	if err := svc.Logout(ctx, now, raw); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := svc.Logout(ctx, now, "never-issued"); err != nil {
		t.Fatalf("Logout(unknown): %v", err)
	}
	if err := svc.Logout(ctx, now, ""); err != nil {
		t.Fatalf("Logout(empty): %v", err)
	}

	// Refreshing a logged-out token is replay.
	if _, err := svc.Refresh(ctx, now.Add(time.Minute), raw); !errors.Is(err, ErrRefreshReuseDetected) {
		t.Fatalf("expected ErrRefreshReuseDetected, got %v", err)
	}
}

func TestStores_NeverSeePlaintextTokens(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")
	pair, err := svc.Refresh(ctx, now.Add(time.Minute), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	raws := []string{res.Tokens.RefreshToken, pair.RefreshToken}
	for _, rec := range tokens.Snapshot() {
		for _, raw := range raws {
			if rec.TokenHash == raw {
				t.Fatalf("record %s stores the raw token", rec.ID)
			}
			if rec.ReplacedByHash != nil && *rec.ReplacedByHash == raw {
				t.Fatalf("record %s links the raw successor token", rec.ID)
			}
		}
		if len(rec.TokenHash) != 64 { // sha256 hex
			t.Fatalf("token hash length = %d, want 64", len(rec.TokenHash))
		}
	}
}

func TestRefresh_ConcurrentSameTokenAtMostOneWinner(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res := mustRegister(t, svc, now, "alice@example.com")
	raw := res.Tokens.RefreshToken

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Refresh(ctx, now.Add(time.Minute), raw)
		}()
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRefreshReuseDetected):
		default:
			t.Fatalf("caller %d: unexpected error %v", i, err)
		}
	}
	if wins > 1 {
		t.Fatalf("%d callers rotated the same token", wins)
	}
}

func TestRevokeActive_RevokesExactlyOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	rec := RefreshTokenRecord{
		ID:        "tok-1",
		TokenHash: "aaaa",
		UserID:    "u1",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := st.SaveRefreshToken(ctx, rec); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}

	if err := st.RevokeActive(ctx, now, "tok-1", ReasonRotation, nil); err != nil {
		t.Fatalf("first RevokeActive: %v", err)
	}
	if err := st.RevokeActive(ctx, now, "tok-1", ReasonRotation, nil); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("second RevokeActive: expected ErrTokenRevoked, got %v", err)
	}
	if err := st.RevokeActive(ctx, now, "missing", ReasonRotation, nil); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("missing record: expected ErrTokenNotFound, got %v", err)
	}
}
