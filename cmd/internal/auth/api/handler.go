package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hearth/cmd/identity"
	"hearth/cmd/internal/auth/authn"
	"hearth/cmd/internal/auth/session"
	"hearth/cmd/internal/httpx"
	"hearth/cmd/internal/profile"
	"hearth/cmd/security/password"

	"github.com/go-chi/chi/v5"
)

// Outcomes counts auth results by operation. The app metrics implement it.
type Outcomes interface {
	AuthOutcome(op, result string)
}

type noopOutcomes struct{}

func (noopOutcomes) AuthOutcome(string, string) {}

// Deps are the collaborators of a Handler. Profiles is optional.
type Deps struct {
	Users    identity.Store
	Sessions *session.Service
	Audit    Auditor
	Password password.Config
	Profiles profile.Store
	Outcomes Outcomes
}

// Handler wires HTTP auth endpoints to identity/session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions *session.Service
	audit    Auditor
	pw       password.Config
	profiles profile.Store
	outcomes Outcomes
	now      func() time.Time

	dummyHash string
}

func NewHandler(log *slog.Logger, cfg Config, d Deps) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if d.Users == nil || d.Sessions == nil {
		return nil, errors.New("authapi: users and sessions are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Audit == nil {
		d.Audit = NewMemoryAuditLog()
	}
	if d.Outcomes == nil {
		d.Outcomes = noopOutcomes{}
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    d.Users,
		sessions: d.Sessions,
		audit:    d.Audit,
		pw:       d.Password,
		profiles: d.Profiles,
		outcomes: d.Outcomes,
		now:      time.Now,
	}

	// Dummy hash for timing-resistant login checks.
	hash, err := h.pw.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	h.dummyHash = hash
	return h, nil
}

// Routes registers the auth routes on r. The bearer routes use an access
// token; provisioning tokens are not accepted here.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/signup", h.handleSignup)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/refresh", h.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware(h.sessions, authn.WithLogger(h.log), authn.WithClock(h.now)))
		r.Get("/auth/session", h.handleSession)
		r.Post("/auth/logout", h.handleLogout)
		r.Post("/auth/logout_all", h.handleLogoutAll)
		r.Get("/me", h.handleMe)
	})
}

func (h *Handler) device(r *http.Request, platform string, remember bool) session.DeviceContext {
	return session.DeviceContext{
		Platform:   session.ParsePlatform(platform),
		RememberMe: remember,
		UserAgent:  strings.TrimSpace(r.UserAgent()),
		IP:         httpx.ClientIP(r, h.cfg.TrustProxy),
	}
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}

	email := strings.TrimSpace(req.Email)
	if !identity.ValidEmail(email) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	if err := h.pw.Validate(req.Password); err != nil {
		h.outcomes.AuthOutcome("signup", "weak_password")
		httpx.WriteError(w, http.StatusUnprocessableEntity, "weak_password", err.Error())
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	dev := h.device(r, req.Platform, req.RememberMe)

	hash, err := h.pw.Hash(req.Password)
	if err != nil {
		h.log.Error("auth.signup.hash.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{Email: email, PasswordHash: hash, Now: now})
	switch {
	case err == nil:
	case identity.IsConflict(err):
		h.outcomes.AuthOutcome("signup", "email_taken")
		httpx.WriteError(w, http.StatusConflict, "email_taken", "User already registered")
		return
	case identity.IsInvalidInput(err):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid signup fields")
		return
	default:
		h.log.Error("auth.signup.create.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := signupResponse{User: toUserResponse(u)}
	sessionID := ""
	if h.cfg.SignupAutoSession {
		issued, err := h.sessions.IssueSession(ctx, now, u.ID, dev)
		if err != nil {
			h.log.Error("auth.signup.issue_session.fail", "err", err, "user_id", u.ID)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		s := toSessionResponse(issued)
		resp.Session = &s
		sessionID = issued.SessionID
	}

	prov, provExp, err := h.sessions.IssueProvisioningToken(u.ID, now)
	if err != nil {
		h.log.Error("auth.signup.provisioning.fail", "err", err, "user_id", u.ID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	resp.ProvisioningToken, resp.ProvisioningExpiresAt = prov, provExp

	h.record(ctx, Event{Action: actionSignup, UserID: u.ID, SessionID: sessionID, IP: dev.IP, UserAgent: dev.UserAgent})
	h.outcomes.AuthOutcome("signup", "ok")
	h.log.Info("auth.signup.ok", "user_id", u.ID, "auto_session", sessionID != "")
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	identifier := identity.NormalizeEmail(req.Email)
	if identifier == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	dev := h.device(r, req.Platform, req.RememberMe)
	meta := map[string]any{"identifier": identifier}

	if blocked, retryAfter, err := h.checkLoginIPThrottle(ctx, dev.IP, now); err != nil {
		h.log.Error("auth.login.throttle_ip.fail", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.loginRateLimited(ctx, w, dev, identifier, retryAfter)
		return
	}
	if blocked, retryAfter, err := h.checkLoginIdentifierThrottle(ctx, identifier, now); err != nil {
		h.log.Error("auth.login.throttle_identifier.fail", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.loginRateLimited(ctx, w, dev, identifier, retryAfter)
		return
	}

	ua, err := h.users.GetUserAuthByEmail(ctx, identifier)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		// Timing resistance: perform a dummy verify when the account is missing.
		_, _ = h.pw.Verify(h.dummyHash, req.Password)
		h.loginFailed(ctx, w, Event{IP: dev.IP, UserAgent: dev.UserAgent, Meta: withReason(meta, "not_found")})
		return
	}

	ok, err := h.pw.Verify(ua.PasswordHash, req.Password)
	if err != nil || !ok {
		h.loginFailed(ctx, w, Event{UserID: ua.User.ID, IP: dev.IP, UserAgent: dev.UserAgent, Meta: withReason(meta, "bad_password")})
		return
	}

	issued, err := h.sessions.IssueSession(ctx, now, ua.User.ID, dev)
	if err != nil {
		h.log.Error("auth.login.issue_session.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.record(ctx, Event{Action: actionLoginSuccess, UserID: ua.User.ID, SessionID: issued.SessionID, IP: dev.IP, UserAgent: dev.UserAgent, Meta: meta})
	h.outcomes.AuthOutcome("login", "ok")
	httpx.WriteJSON(w, http.StatusOK, loginResponse{User: toUserResponse(ua.User), Session: toSessionResponse(issued)})
}

func withReason(meta map[string]any, reason string) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["reason"] = reason
	return out
}

func (h *Handler) loginFailed(ctx context.Context, w http.ResponseWriter, ev Event) {
	ev.Action = actionLoginFailed
	h.record(ctx, ev)
	h.outcomes.AuthOutcome("login", "invalid_credentials")
	h.log.Warn("auth.login.fail", "reason", ev.Meta["reason"])
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid login credentials")
}

func (h *Handler) loginRateLimited(ctx context.Context, w http.ResponseWriter, dev session.DeviceContext, identifier string, retryAfter time.Duration) {
	h.record(ctx, Event{
		Action: actionLoginRateLimited, IP: dev.IP, UserAgent: dev.UserAgent,
		Meta: map[string]any{"identifier": identifier, "retry_after_s": int64(retryAfter.Seconds())},
	})
	h.outcomes.AuthOutcome("login", "rate_limited")
	writeRateLimited(w, retryAfter)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	dev := h.device(r, req.Platform, req.RememberMe)

	issued, err := h.sessions.RotateRefresh(ctx, h.now().UTC(), req.RefreshToken, dev)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected):
			h.record(ctx, Event{Action: actionRefreshReuse, IP: dev.IP, UserAgent: dev.UserAgent})
			h.log.Warn("auth.refresh.reuse_detected")
			h.outcomes.AuthOutcome("refresh", "reuse")
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh", "refresh token is not valid")
		case session.IsUnauthenticated(err):
			h.outcomes.AuthOutcome("refresh", "invalid")
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh", "refresh token is not valid")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.record(ctx, Event{Action: actionRefreshSuccess, UserID: issued.UserID, SessionID: issued.SessionID, IP: dev.IP, UserAgent: dev.UserAgent})
	h.outcomes.AuthOutcome("refresh", "ok")
	httpx.WriteJSON(w, http.StatusOK, refreshResponse{Session: toSessionResponse(issued)})
}

// handleSession reports the caller's session. The middleware has already
// checked the row, so a revoked or expired session never reaches here.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	p, _ := authn.FromContext(r.Context())
	ctx := r.Context()

	u, ok := h.loadUser(w, r, p.UserID)
	if !ok {
		return
	}
	if err := h.sessions.TouchSession(ctx, h.now().UTC(), p.SessionID); err != nil {
		h.log.Warn("auth.session.touch.fail", "err", err, "session_id", p.SessionID)
	}
	httpx.WriteJSON(w, http.StatusOK, sessionStateResponse{User: toUserResponse(u), SessionID: p.SessionID, ExpiresAt: p.ExpiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := authn.FromContext(r.Context())

	req := logoutRequest{Scope: string(session.ScopeLocal)}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			httpx.BadJSON(w, err)
			return
		}
	}

	switch strings.TrimSpace(req.Scope) {
	case session.ScopeLocal, "":
		h.revokeOne(w, r, p)
	case session.ScopeGlobal:
		h.revokeAll(w, r, p)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_scope", `scope must be "local" or "global"`)
	}
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := authn.FromContext(r.Context())
	h.revokeAll(w, r, p)
}

func (h *Handler) revokeOne(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	ctx := r.Context()
	if err := h.sessions.RevokeSession(ctx, h.now().UTC(), p.UserID, p.SessionID); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.record(ctx, Event{Action: actionLogout, UserID: p.UserID, SessionID: p.SessionID, IP: httpx.ClientIP(r, h.cfg.TrustProxy), UserAgent: r.UserAgent()})
	h.outcomes.AuthOutcome("logout", "ok")
	httpx.WriteNoContent(w)
}

func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	ctx := r.Context()
	if err := h.sessions.RevokeAll(ctx, h.now().UTC(), p.UserID); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.record(ctx, Event{Action: actionLogoutAll, UserID: p.UserID, SessionID: p.SessionID, IP: httpx.ClientIP(r, h.cfg.TrustProxy), UserAgent: r.UserAgent()})
	h.outcomes.AuthOutcome("logout_all", "ok")
	httpx.WriteNoContent(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := authn.FromContext(r.Context())

	u, ok := h.loadUser(w, r, p.UserID)
	if !ok {
		return
	}
	resp := meResponse{User: toUserResponse(u)}
	if h.profiles != nil {
		prof, err := h.profiles.Get(r.Context(), p.UserID)
		switch {
		case err == nil:
			resp.Profile = toProfileResponse(prof)
		case errors.Is(err, profile.ErrNotFound):
		default:
			h.log.Warn("auth.me.profile.fail", "err", err, "user_id", p.UserID)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadUser(w http.ResponseWriter, r *http.Request, userID string) (identity.User, bool) {
	u, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if identity.IsNotFound(err) {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return identity.User{}, false
		}
		h.log.Error("auth.user.lookup.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return identity.User{}, false
	}
	return u, true
}
