package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"calcsync/cmd/identity"
	"calcsync/cmd/internal/auth/session"
	"calcsync/cmd/internal/httpjson"
	"calcsync/cmd/internal/invite"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
)

// Verifier turns a bearer credential into a trusted user id.
type Verifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// InviteService issues and redeems registration invites.
type InviteService interface {
	CreateInvite(ctx context.Context, in invite.CreateInput) (invite.Invite, string, error)
	ValidateInvite(ctx context.Context, tok string, now time.Time) (bool, invite.Invite, error)
	ConsumeInvite(ctx context.Context, in invite.ConsumeInput) (invite.Invite, error)
	RevokeInvite(ctx context.Context, id string, now time.Time) error
}

// Handler wires HTTP auth endpoints to the identity store and token codec.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	hasher   identity.Hasher
	codec    session.TokenCodec
	verifier Verifier
	failures FailureCounter
	invites  InviteService
	clock    clockwork.Clock

	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithHasher overrides identity.DefaultHasher.
func WithHasher(hasher identity.Hasher) HandlerOption {
	return func(h *Handler) { h.hasher = hasher }
}

// WithFailureCounter overrides the process-local failure counter.
func WithFailureCounter(c FailureCounter) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.failures = c
		}
	}
}

// WithInvites overrides the process-local invite service.
func WithInvites(s InviteService) HandlerOption {
	return func(h *Handler) {
		if s != nil {
			h.invites = s
		}
	}
}

// WithClock overrides the real clock used to issue tokens.
func WithClock(clock clockwork.Clock) HandlerOption {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, users identity.Store, codec session.TokenCodec, verifier Verifier, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if users == nil || codec == nil || verifier == nil {
		return nil, errors.New("auth: nil dependency")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		hasher:   identity.DefaultHasher(),
		codec:    codec,
		verifier: verifier,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	if h.failures == nil {
		h.failures = NewMemoryCounter(h.clock)
	}
	if h.invites == nil {
		svc, err := invite.NewService(invite.NewMemoryStore(), invite.WithHashKey([]byte(cfg.InviteHashKey)))
		if err != nil {
			return nil, err
		}
		h.invites = svc
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := h.hasher.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Routes registers the auth endpoints on r. The app mounts them under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/register", h.handleRegister)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireUser)
		r.Get("/auth/me", h.handleMe)
		r.Post("/auth/logout", h.handleLogout)
		r.Post("/auth/invites", h.handleInviteCreate)
		r.Delete("/auth/invites/{inviteID}", h.handleInviteRevoke)
	})
}

// RequireUser rejects requests without a valid bearer credential and puts
// the verified user id in the request context.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.verifier.Verify(r.Context(), bearerToken(r))
		if err != nil {
			reason := session.Reason(err)
			if reason == session.ReasonLookupFailed {
				h.log.Error("auth.require.fail", "err", err, "path", r.URL.Path)
			} else {
				h.log.Debug("auth.require.reject", "reason", reason, "path", r.URL.Path)
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="calcsync"`)
			httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "invalid or missing credential")
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithUserID(r.Context(), userID)))
	})
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	identifier := identity.NormalizeUsername(req.Username)
	if identifier == "" || req.Password == "" {
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if blocked, retryAfter, err := h.checkLoginIPThrottle(ctx, ip); err != nil {
		h.log.Error("auth.login.throttle_ip.fail", "err", err)
		httpjson.Error(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}
	// Identifier throttling runs before the lookup so unknown names are limited too.
	if blocked, retryAfter, err := h.checkLoginUserThrottle(ctx, identifier); err != nil {
		h.log.Error("auth.login.throttle_user.fail", "err", err)
		httpjson.Error(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.users.GetUserByUsername(ctx, identifier)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		if h.dummyHash != "" {
			_, _ = h.hasher.Verify(h.dummyHash, req.Password)
		}
		h.recordLoginFailure(ctx, ip, identifier)
		h.auditLoginFailed(ctx, "", ip, ua, identifier, "not_found")
		httpjson.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	okPw, err := h.hasher.Verify(u.PasswordHash, req.Password)
	if err != nil || !okPw {
		h.recordLoginFailure(ctx, ip, identifier)
		h.auditLoginFailed(ctx, u.ID, ip, ua, identifier, "bad_password")
		httpjson.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	if !u.IsActive {
		h.auditLoginFailed(ctx, u.ID, ip, ua, identifier, "inactive")
		httpjson.Error(w, http.StatusForbidden, "account_inactive", "account is disabled")
		return
	}

	resp, err := h.issue(u)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.clearLoginFailures(ctx, identifier)
	h.auditLoginSuccess(ctx, u.ID, ip, ua, identifier)
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	inviteToken := strings.TrimSpace(req.InviteToken)
	if !h.cfg.RegistrationOpen && inviteToken == "" {
		httpjson.Error(w, http.StatusForbidden, "registration_closed", "registration requires an invite")
		return
	}
	if err := h.hasher.Validate(req.Password); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	ctx := r.Context()
	now := h.clock.Now()

	var inviteID string
	if inviteToken != "" {
		inv, ok := h.redeemInvite(w, r, inviteToken, identity.NormalizeUsername(req.Username), now)
		if !ok {
			return
		}
		inviteID = inv.ID
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.log.Error("auth.register.hash.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Now:          now,
	})
	switch {
	case identity.IsConflict(err):
		httpjson.Error(w, http.StatusConflict, "conflict", "username or email already taken")
		return
	case identity.IsInvalidInput(err):
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		h.log.Error("auth.register.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp, err := h.issue(u)
	if err != nil {
		h.log.Error("auth.register.issue.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditRegister(ctx, u.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), inviteID)
	httpjson.Write(w, http.StatusCreated, resp)
}

// redeemInvite spends one use of the invite for username. The username is
// checked first so a taken name does not burn a use. It writes the error
// response and returns false on failure.
func (h *Handler) redeemInvite(w http.ResponseWriter, r *http.Request, tok, username string, now time.Time) (invite.Invite, bool) {
	ctx := r.Context()

	ok, _, err := h.invites.ValidateInvite(ctx, tok, now)
	if err != nil {
		h.log.Error("auth.register.invite.validate.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return invite.Invite{}, false
	}
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "invalid_invite", "invalid or expired invite")
		return invite.Invite{}, false
	}

	if username == "" {
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", "username is required")
		return invite.Invite{}, false
	}
	if _, err := h.users.GetUserByUsername(ctx, username); err == nil {
		httpjson.Error(w, http.StatusConflict, "conflict", "username or email already taken")
		return invite.Invite{}, false
	} else if !identity.IsNotFound(err) {
		h.log.Error("auth.register.lookup.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return invite.Invite{}, false
	}

	inv, err := h.invites.ConsumeInvite(ctx, invite.ConsumeInput{Token: tok, ConsumedBy: username, Now: now})
	switch {
	case errors.Is(err, invite.ErrNotActive), errors.Is(err, invite.ErrNotFound):
		httpjson.Error(w, http.StatusBadRequest, "invalid_invite", "invalid or expired invite")
		return invite.Invite{}, false
	case err != nil:
		h.log.Error("auth.register.invite.consume.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return invite.Invite{}, false
	}
	return inv, true
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserIDFromContext(r.Context())

	u, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if identity.IsNotFound(err) {
			httpjson.Error(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	httpjson.Write(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// handleLogout acknowledges the client discarding its token. Tokens are
// stateless and stay valid until they expire.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserIDFromContext(r.Context())
	h.auditLogout(r.Context(), userID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req inviteCreateRequest
	if r.ContentLength != 0 {
		if err := httpjson.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			httpjson.Error(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	ttl := h.cfg.InviteTTL
	if req.ExpiresInSeconds > 0 {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}
	ttl = min(ttl, h.cfg.InviteMaxTTL)
	maxUses := h.cfg.InviteMaxUses
	if req.MaxUses > 0 {
		maxUses = min(req.MaxUses, h.cfg.InviteMaxUsesMax)
	}

	ctx := r.Context()
	inv, tok, err := h.invites.CreateInvite(ctx, invite.CreateInput{
		CreatedBy: admin.ID,
		TTL:       ttl,
		MaxUses:   maxUses,
		Note:      req.Note,
		Now:       h.clock.Now(),
	})
	if errors.Is(err, invite.ErrInvalidInput) {
		httpjson.Error(w, http.StatusBadRequest, "invalid_request", "invalid invite request")
		return
	}
	if err != nil {
		h.log.Error("auth.invite.create.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditInviteCreated(ctx, admin.ID, inv.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	httpjson.Write(w, http.StatusCreated, inviteCreateResponse{
		InviteID:    inv.ID,
		InviteToken: tok,
		ExpiresAt:   inv.ExpiresAt,
		MaxUses:     inv.MaxUses,
	})
}

func (h *Handler) handleInviteRevoke(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "inviteID")
	err := h.invites.RevokeInvite(r.Context(), id, h.clock.Now())
	switch {
	case errors.Is(err, invite.ErrNotFound), errors.Is(err, invite.ErrInvalidInput):
		httpjson.Error(w, http.StatusNotFound, "not_found", "invite not found")
		return
	case err != nil:
		h.log.Error("auth.invite.revoke.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditInviteRevoked(r.Context(), admin.ID, id, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin loads the authenticated user and rejects anyone who is not
// an active admin.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	userID, _ := session.UserIDFromContext(r.Context())
	u, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil && !identity.IsNotFound(err) {
		h.log.Error("auth.admin.lookup.fail", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "server_error", "internal error")
		return identity.User{}, false
	}
	if err != nil || !u.IsAdmin || !u.IsActive {
		httpjson.Error(w, http.StatusForbidden, "forbidden", "admin only")
		return identity.User{}, false
	}
	return u, true
}

func (h *Handler) issue(u identity.User) (tokenResponse, error) {
	token, exp, err := h.codec.Issue(u.ID, h.clock.Now())
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   exp,
		User:        toUserResponse(u),
	}, nil
}
