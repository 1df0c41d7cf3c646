package authapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"calcsync/cmd/internal/httpjson"
)

const (
	ipKeyPrefix   = "ip:"
	userKeyPrefix = "user:"
)

func ipKey(ip net.IP) string { return hashKey(ipKeyPrefix, ip.String()) }

func userKey(identifier string) string { return hashKey(userKeyPrefix, identifier) }

func (h *Handler) checkLoginIPThrottle(ctx context.Context, ip net.IP) (bool, time.Duration, error) {
	if ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0, nil
	}
	count, ttl, err := h.failures.Peek(ctx, ipKey(ip))
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.LoginIPMax {
		return true, ttl, nil
	}
	return false, 0, nil
}

func (h *Handler) checkLoginUserThrottle(ctx context.Context, identifier string) (bool, time.Duration, error) {
	if strings.TrimSpace(identifier) == "" {
		return false, 0, nil
	}
	count, ttl, err := h.failures.Peek(ctx, userKey(identifier))
	if err != nil {
		return false, 0, err
	}
	if h.lockoutFor(count) > 0 {
		return true, ttl, nil
	}
	return false, 0, nil
}

// lockoutFor maps a failure count to its progressive lockout duration.
func (h *Handler) lockoutFor(count int) time.Duration {
	switch {
	case h.cfg.LockoutSevereThreshold > 0 && count >= h.cfg.LockoutSevereThreshold:
		return h.cfg.LockoutSevereDuration
	case h.cfg.LockoutLongThreshold > 0 && count >= h.cfg.LockoutLongThreshold:
		return h.cfg.LockoutLongDuration
	case h.cfg.LockoutShortThreshold > 0 && count >= h.cfg.LockoutShortThreshold:
		return h.cfg.LockoutShortDuration
	default:
		return 0
	}
}

// recordLoginFailure counts a failure against ip and identifier. Reaching a
// lockout tier stretches the identifier window to that tier's duration.
func (h *Handler) recordLoginFailure(ctx context.Context, ip net.IP, identifier string) {
	if ip != nil && h.cfg.LoginIPMax > 0 {
		if _, err := h.failures.Incr(ctx, ipKey(ip), h.cfg.LoginIPWindow); err != nil {
			h.log.Error("auth.login.throttle_ip.record.fail", "err", err)
		}
	}
	if strings.TrimSpace(identifier) == "" {
		return
	}
	key := userKey(identifier)
	n, err := h.failures.Incr(ctx, key, h.cfg.LoginUserWindow)
	if err != nil {
		h.log.Error("auth.login.throttle_user.record.fail", "err", err)
		return
	}
	if d := h.lockoutFor(n); d > 0 {
		if err := h.failures.Hold(ctx, key, d); err != nil {
			h.log.Error("auth.login.throttle_user.hold.fail", "err", err)
		}
	}
}

func (h *Handler) clearLoginFailures(ctx context.Context, identifier string) {
	if err := h.failures.Reset(ctx, userKey(identifier)); err != nil {
		h.log.Warn("auth.login.throttle_user.reset.fail", "err", err)
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httpjson.Error(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
