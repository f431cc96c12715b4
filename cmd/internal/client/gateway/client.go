// Package gateway talks to the hearth server over HTTP. Client implements the
// session.Gateway and profile.Store contracts of the client core.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"hearth/cmd/internal/client/profile"
	"hearth/cmd/internal/client/session"
)

// ErrNotSignedIn is returned by calls that need a session when none is held.
var ErrNotSignedIn = errors.New("gateway: not signed in")

const maxResponseBytes = 1 << 20

// Client is safe for concurrent use. It holds the token set of the newest
// authentication attempt only; a session issued to an older attempt that
// resolves late is revoked. Calls made by a session.Controller carry a
// session.Attempt and follow the Controller's order; other calls are ordered
// by the Client's own ticket.
type Client struct {
	base     *url.URL
	hc       *http.Client
	store    TokenStore
	log      *slog.Logger
	now      func() time.Time
	platform string
	remember bool

	mu        sync.Mutex
	tokens    Tokens
	ticket    uint64
	prov      provisioning
	listeners map[int]func(session.ChangeEvent)
	nextL     int

	refreshMu sync.Mutex
	persistMu sync.Mutex
}

type provisioning struct {
	userID    string
	token     string
	expiresAt time.Time
}

var (
	_ session.Gateway = (*Client)(nil)
	_ profile.Store   = (*Client)(nil)
)

type Option func(*Client)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithTokenStore persists the token set across processes.
func WithTokenStore(s TokenStore) Option { return func(c *Client) { c.store = s } }

func WithLogger(log *slog.Logger) Option { return func(c *Client) { c.log = log } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithRememberMe asks for the long refresh lifetime on sign-in.
func WithRememberMe(on bool) Option { return func(c *Client) { c.remember = on } }

// New returns a Client for the server at baseURL. A token set found in the
// token store is restored.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("gateway: base url %q must be http(s)://host", baseURL)
	}
	c := &Client{
		base:      u,
		hc:        &http.Client{Timeout: 15 * time.Second},
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
		platform:  "cli",
		listeners: make(map[int]func(session.ChangeEvent)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store != nil {
		t, ok, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			c.tokens = t
		}
	}
	return c, nil
}

// Tokens returns the token set currently held.
func (c *Client) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *Client) OnSessionChange(fn func(session.ChangeEvent)) func() {
	c.mu.Lock()
	c.nextL++
	id := c.nextL
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) emit(ev session.ChangeEvent) {
	c.mu.Lock()
	fns := make([]func(session.ChangeEvent), 0, len(c.listeners))
	for i := 1; i <= c.nextL; i++ {
		if fn, ok := c.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Client) takeTicket() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticket++
	return c.ticket
}

// hold makes t the held token set. With a session.Attempt in ctx the set is
// staged on it and held only if the Controller commits the attempt; otherwise
// ticket decides.
func (c *Client) hold(ctx context.Context, ticket uint64, t Tokens) {
	att := session.AttemptFrom(ctx)
	if att == nil {
		c.adopt(ctx, ticket, t)
		return
	}
	att.Stage(func() func() {
		c.mu.Lock()
		c.ticket++
		stale := c.tokens
		c.tokens = t
		c.mu.Unlock()
		return func() {
			c.persistHeld()
			if stale.SessionID != t.SessionID {
				c.revokeQuietly(ctx, stale)
			}
		}
	}, func() {
		c.log.Debug("gateway.attempt.superseded", "seq", att.Seq(), "session_id", t.SessionID)
		c.revokeQuietly(ctx, t)
	})
}

// adopt stores t if ticket is the newest attempt. Whichever token set loses
// is revoked on the server.
func (c *Client) adopt(ctx context.Context, ticket uint64, t Tokens) {
	c.mu.Lock()
	var stale Tokens
	current := ticket == c.ticket
	if current {
		stale, c.tokens = c.tokens, t
	} else {
		stale = t
	}
	c.mu.Unlock()

	if current {
		c.persistHeld()
	}
	if !current || stale.SessionID != t.SessionID {
		c.revokeQuietly(ctx, stale)
	}
}

// drop forgets the token set of sessionID if it is still the one held.
func (c *Client) drop(sessionID string) bool {
	c.mu.Lock()
	if c.tokens.SessionID != sessionID {
		c.mu.Unlock()
		return false
	}
	c.tokens = Tokens{}
	c.mu.Unlock()
	c.persistHeld()
	return true
}

// persistHeld writes the token set held at the time of the call. Concurrent
// callers write in turn, so the file ends with the latest set.
func (c *Client) persistHeld() {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.persist(c.Tokens())
}

func (c *Client) persist(t Tokens) {
	if c.store == nil {
		return
	}
	var err error
	if t.AccessToken == "" {
		err = c.store.Clear()
	} else {
		err = c.store.Save(t)
	}
	if err != nil {
		c.log.Warn("gateway.tokens.persist.fail", "err", err)
	}
}

func (c *Client) revokeQuietly(ctx context.Context, t Tokens) {
	if t.AccessToken == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := c.call(ctx, http.MethodPost, "/auth/logout", t.AccessToken, logoutRequest{Scope: string(session.ScopeLocal)}, nil); err != nil {
		c.log.Warn("gateway.stale_session.revoke.fail", "session_id", t.SessionID, "err", err)
		return
	}
	c.log.Debug("gateway.stale_session.revoked", "session_id", t.SessionID)
}

// call sends one JSON request. A non-2xx answer is returned as *APIError.
func (c *Client) call(ctx context.Context, method, path, bearer string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, parseAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

// authed sends a request with the held access token, refreshing once on 401.
func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	t := c.Tokens()
	if t.AccessToken == "" {
		return ErrNotSignedIn
	}
	_, err := c.call(ctx, method, path, t.AccessToken, in, out)
	if !IsStatus(err, http.StatusUnauthorized) || t.RefreshToken == "" {
		return err
	}
	fresh, rerr := c.refresh(ctx, t)
	if rerr != nil {
		return rerr
	}
	_, err = c.call(ctx, method, path, fresh.AccessToken, in, out)
	return err
}
