package gateway

import (
	"context"
	"errors"
	"net/http"

	"hearth/cmd/internal/client/session"
)

func (c *Client) CreateAccount(ctx context.Context, email, password string) (session.SignUpResponse, error) {
	ticket := c.takeTicket()

	var out signupResponse
	req := credentialsRequest{Email: email, Password: password, Platform: c.platform, RememberMe: c.remember}
	if _, err := c.call(ctx, http.MethodPost, "/auth/signup", "", req, &out); err != nil {
		return session.SignUpResponse{}, authError("create_account", err)
	}

	p := out.User.principal()
	c.mu.Lock()
	c.prov = provisioning{userID: p.ID, token: out.ProvisioningToken, expiresAt: out.ProvisioningExpiresAt}
	c.mu.Unlock()

	resp := session.SignUpResponse{Principal: p}
	if out.Session != nil {
		t := tokensFrom(out.User, *out.Session)
		c.hold(ctx, ticket, t)
		resp.Session = &session.Session{Principal: p, Token: t.AccessToken, ExpiresAt: t.AccessExpiresAt}
	}
	c.log.Info("gateway.signup.ok", "user_id", p.ID, "auto_session", out.Session != nil)
	return resp, nil
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (session.Session, error) {
	ticket := c.takeTicket()

	var out loginResponse
	req := credentialsRequest{Email: email, Password: password, Platform: c.platform, RememberMe: c.remember}
	if _, err := c.call(ctx, http.MethodPost, "/auth/login", "", req, &out); err != nil {
		return session.Session{}, authError("authenticate", err)
	}
	t := tokensFrom(out.User, out.Session)
	c.hold(ctx, ticket, t)
	return session.Session{Principal: t.Principal(), Token: t.AccessToken, ExpiresAt: t.AccessExpiresAt}, nil
}

// ActiveSession asks the server whether the held session is still live. A
// session the server no longer accepts is forgotten and reported as none.
func (c *Client) ActiveSession(ctx context.Context) (session.Principal, bool, error) {
	t := c.Tokens()
	if t.AccessToken == "" {
		return session.Principal{}, false, nil
	}

	var out sessionStateResponse
	err := c.authed(ctx, http.MethodGet, "/auth/session", nil, &out)
	switch {
	case err == nil:
		return out.User.principal(), true, nil
	case errors.Is(err, ErrNotSignedIn), IsStatus(err, http.StatusUnauthorized):
		c.drop(t.SessionID)
		return session.Principal{}, false, nil
	default:
		return session.Principal{}, false, authError("active_session", err)
	}
}

// InvalidateSession ends the held session, or every session of its principal
// for ScopeGlobal. On failure the token set is kept.
func (c *Client) InvalidateSession(ctx context.Context, scope session.Scope) error {
	t := c.Tokens()
	if t.AccessToken == "" {
		return nil
	}

	err := c.authed(ctx, http.MethodPost, "/auth/logout", logoutRequest{Scope: string(scope)}, nil)
	switch {
	case err == nil, errors.Is(err, ErrNotSignedIn), IsStatus(err, http.StatusUnauthorized):
		c.drop(t.SessionID)
		c.log.Info("gateway.signout.ok", "scope", scope)
		return nil
	default:
		return authError("invalidate_session", err)
	}
}

// refresh rotates the refresh token of t. Concurrent callers holding the same
// stale set share one rotation.
func (c *Client) refresh(ctx context.Context, stale Tokens) (Tokens, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	cur := c.Tokens()
	if cur.AccessToken == "" {
		return Tokens{}, ErrNotSignedIn
	}
	if cur.AccessToken != stale.AccessToken {
		return cur, nil
	}

	var out refreshResponse
	req := refreshRequest{RefreshToken: cur.RefreshToken, RememberMe: c.remember, Platform: c.platform}
	if _, err := c.call(ctx, http.MethodPost, "/auth/refresh", "", req, &out); err != nil {
		if IsStatus(err, http.StatusUnauthorized) && c.drop(cur.SessionID) {
			c.log.Info("gateway.session.expired", "session_id", cur.SessionID)
			c.emit(session.ChangeEvent{Kind: session.ChangeExpired, Principal: cur.Principal()})
		}
		return Tokens{}, err
	}

	next := cur
	next.SessionID = out.Session.SessionID
	next.AccessToken, next.AccessExpiresAt = out.Session.AccessToken, out.Session.AccessExpiresAt
	next.RefreshToken, next.RefreshExpiresAt = out.Session.RefreshToken, out.Session.RefreshExpiresAt

	c.mu.Lock()
	replaced := c.tokens.AccessToken == cur.AccessToken
	if replaced {
		c.tokens = next
	}
	c.mu.Unlock()
	if !replaced {
		return c.Tokens(), nil
	}
	c.persistHeld()
	c.emit(session.ChangeEvent{Kind: session.ChangeTokenRefreshed, Principal: next.Principal()})
	return next, nil
}
