package authapi

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Audit events go to the structured log under the "auth.audit" message with
// a stable action attribute.

func (h *Handler) auditLoginFailed(ctx context.Context, userID string, ip net.IP, ua, identifier, reason string) {
	h.audit(ctx, slog.LevelWarn, "auth.login.failed", userID, ip, ua,
		slog.String("identifier", identifier),
		slog.String("reason", reason),
	)
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, ip net.IP, ua, identifier string) {
	h.audit(ctx, slog.LevelInfo, "auth.login.success", userID, ip, ua,
		slog.String("identifier", identifier),
	)
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua, identifier string, retryAfter time.Duration) {
	h.audit(ctx, slog.LevelWarn, "auth.login.rate_limited", "", ip, ua,
		slog.String("identifier", identifier),
		slog.Int64("retry_after_s", int64(retryAfter.Seconds())),
	)
}

func (h *Handler) auditRegister(ctx context.Context, userID string, ip net.IP, ua, inviteID string) {
	if inviteID == "" {
		h.audit(ctx, slog.LevelInfo, "auth.register", userID, ip, ua)
		return
	}
	h.audit(ctx, slog.LevelInfo, "auth.register", userID, ip, ua, slog.String("invite_id", inviteID))
}

func (h *Handler) auditInviteCreated(ctx context.Context, userID, inviteID string, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelInfo, "auth.invite.created", userID, ip, ua, slog.String("invite_id", inviteID))
}

func (h *Handler) auditInviteRevoked(ctx context.Context, userID, inviteID string, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelInfo, "auth.invite.revoked", userID, ip, ua, slog.String("invite_id", inviteID))
}

func (h *Handler) auditLogout(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, slog.LevelInfo, "auth.logout", userID, ip, ua)
}

func (h *Handler) audit(ctx context.Context, level slog.Level, action, userID string, ip net.IP, ua string, extra ...slog.Attr) {
	attrs := make([]slog.Attr, 0, 4+len(extra))
	attrs = append(attrs, slog.String("action", action))
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if ip != nil {
		attrs = append(attrs, slog.String("ip", ip.String()))
	}
	if ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}
	attrs = append(attrs, extra...)
	h.log.LogAttrs(ctx, level, "auth.audit", attrs...)
}
