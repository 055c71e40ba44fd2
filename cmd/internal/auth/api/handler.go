package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"cortex/cmd/internal/auth/session"
	"cortex/cmd/security/password"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	svc     *session.Service
	metrics *Metrics
}

// NewHandler constructs an auth Handler. metrics may be nil.
func NewHandler(log *slog.Logger, cfg Config, svc *session.Service, metrics *Metrics) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, cfg: cfg, svc: svc, metrics: metrics}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := clientUA(r.UserAgent())

	res, err := h.svc.Register(ctx, now, email, req.Password, trimPtr(req.Name))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrDuplicateEmail):
			h.metrics.registration(outcomeDuplicateEmail)
			h.auditRegisterConflict(ip, ua, email)
			writeError(w, http.StatusConflict, "email_exists", "email already registered")
		case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
			h.metrics.registration(outcomeInvalid)
			writeError(w, http.StatusBadRequest, "invalid_password", "password does not meet the policy")
		default:
			h.metrics.registration(outcomeError)
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.registration(outcomeOK)
	h.auditRegisterSuccess(res.User.ID, ip, ua, res.User.Email)

	writeJSON(w, http.StatusCreated, authResponse{
		User:   toUserResponse(res.User),
		Tokens: toTokensResponse(res.Tokens),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := clientUA(r.UserAgent())

	res, err := h.svc.Login(ctx, now, req.Email, req.Password)
	if err != nil {
		// One response for every credential failure. The typed error
		// keeps the distinction for the audit trail.
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.metrics.login(outcomeInvalid)
			h.auditLoginFailed(ip, ua, err.Error())
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.metrics.login(outcomeError)
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.login(outcomeOK)
	h.auditLoginSuccess(res.User.ID, ip, ua)

	writeJSON(w, http.StatusOK, authResponse{
		User:   toUserResponse(res.User),
		Tokens: toTokensResponse(res.Tokens),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := clientUA(r.UserAgent())

	pair, err := h.svc.Refresh(ctx, now, req.RefreshToken)
	if err != nil {
		// Unknown, expired, replayed, and orphaned tokens all get the
		// same 401 so the response does not leak token state.
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected):
			h.metrics.refresh(outcomeReuseDetected)
			var reuse session.RefreshReuseDetectedError
			if errors.As(err, &reuse) {
				h.auditRefreshReuse(reuse.UserID, ip, ua)
			} else {
				h.auditRefreshReuse("", ip, ua)
			}
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
		case errors.Is(err, session.ErrInvalidRefreshToken), errors.Is(err, session.ErrSessionUserNotFound):
			h.metrics.refresh(outcomeInvalid)
			h.auditRefreshFailed(ip, ua, err.Error())
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
		default:
			h.metrics.refresh(outcomeError)
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.refresh(outcomeOK)
	h.auditRefreshSuccess(ip, ua)

	writeJSON(w, http.StatusOK, refreshResponse{Tokens: toTokensResponse(pair)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.svc.Logout(ctx, now, req.RefreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.logout()
	h.auditLogout(clientIP(r, h.cfg.TrustProxy), clientUA(r.UserAgent()))

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.svc.CurrentUser(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, session.ErrSessionUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.svc.VerifyAccess(time.Now().UTC(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
