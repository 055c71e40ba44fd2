package authapi

import (
	"net"
	"strings"
)

// Audit events are structured log records with dotted action names. They
// carry identifiers and request metadata, never credentials or tokens.

func (h *Handler) auditRegisterSuccess(userID string, ip net.IP, ua, email string) {
	h.audit("auth.register.success", "user_id", userID, "ip", ipString(ip), "ua", ua, "email", email)
}

func (h *Handler) auditRegisterConflict(ip net.IP, ua, email string) {
	h.audit("auth.register.conflict", "ip", ipString(ip), "ua", ua, "email", email)
}

func (h *Handler) auditLoginSuccess(userID string, ip net.IP, ua string) {
	h.audit("auth.login.success", "user_id", userID, "ip", ipString(ip), "ua", ua)
}

func (h *Handler) auditLoginFailed(ip net.IP, ua, detail string) {
	h.audit("auth.login.failed", "ip", ipString(ip), "ua", ua, "detail", detail)
}

func (h *Handler) auditRefreshSuccess(ip net.IP, ua string) {
	h.audit("auth.refresh.success", "ip", ipString(ip), "ua", ua)
}

func (h *Handler) auditRefreshFailed(ip net.IP, ua, detail string) {
	h.audit("auth.refresh.failed", "ip", ipString(ip), "ua", ua, "detail", detail)
}

func (h *Handler) auditRefreshReuse(userID string, ip net.IP, ua string) {
	h.audit("auth.refresh.reuse_detected", "user_id", userID, "ip", ipString(ip), "ua", ua)
}

func (h *Handler) auditLogout(ip net.IP, ua string) {
	h.audit("auth.logout", "ip", ipString(ip), "ua", ua)
}

func (h *Handler) audit(action string, args ...any) {
	if h == nil || h.log == nil {
		return
	}
	h.log.Info(action, args...)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func clientUA(ua string) string {
	return strings.TrimSpace(ua)
}
