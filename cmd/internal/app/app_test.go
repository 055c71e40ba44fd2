package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newMemoryApp wires a full App without a database. Session config comes
// from the environment, so the JWT secret is set per test.
func newMemoryApp(t *testing.T) *App {
	t.Helper()

	t.Setenv("CORTEX_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CORTEX_DATABASE_URL", "")
	t.Setenv("CORTEX_BCRYPT_COST", "10") // keep the smoke test fast

	cfg := LoadConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_FailsWithoutJWTSecret(t *testing.T) {
	t.Setenv("CORTEX_JWT_SECRET", "")
	t.Setenv("CORTEX_DATABASE_URL", "")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(LoadConfig(), log); err == nil {
		t.Fatalf("expected config error without a signing secret")
	}
}

func TestNew_EnforcesHMACPolicy(t *testing.T) {
	t.Setenv("CORTEX_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CORTEX_DATABASE_URL", "")
	t.Setenv("CORTEX_REQUIRE_TOKEN_HMAC", "true")
	t.Setenv("CORTEX_TOKEN_HMAC_KEY", "")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(LoadConfig(), log); err == nil {
		t.Fatalf("expected security policy error without HMAC key")
	}
}

func TestApp_EndToEndOverHTTP(t *testing.T) {
	a := newMemoryApp(t)
	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	get := func(path string) *http.Response {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		return resp
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := get(path)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
	}

	// Register, refresh, replay: the full rotation path through the
	// wired stack.
	post := func(path string, payload map[string]any) (int, map[string]any) {
		b, _ := json.Marshal(payload)
		resp, err := srv.Client().Post(srv.URL+path, "application/json", bytes.NewReader(b))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		defer func() { _ = resp.Body.Close() }()
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body
	}

	status, body := post("/auth/register", map[string]any{
		"email":    "smoke@example.com",
		"password": "correct horse battery",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: status %d, body %v", status, body)
	}
	tokens, _ := body["tokens"].(map[string]any)
	refresh, _ := tokens["refresh_token"].(string)
	if refresh == "" {
		t.Fatalf("register body missing refresh token: %v", body)
	}

	status, body = post("/auth/refresh", map[string]any{"refresh_token": refresh})
	if status != http.StatusOK {
		t.Fatalf("refresh: status %d, body %v", status, body)
	}

	status, _ = post("/auth/refresh", map[string]any{"refresh_token": refresh})
	if status != http.StatusUnauthorized {
		t.Fatalf("replay: status %d, want 401", status)
	}

	// The reuse counter moved.
	resp := get("/metrics")
	metricsBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metricsBody), "cortex_auth_refresh_reuse_detected_total 1") {
		t.Fatalf("metrics missing reuse counter:\n%s", grepLines(string(metricsBody), "cortex_auth"))
	}
}

func grepLines(s, substr string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
