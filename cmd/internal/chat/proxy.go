// Package chat proxies the assistant chat to an OpenAI-compatible upstream.
// The upstream key stays on the server.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"hearth/cmd/internal/auth/authn"
	"hearth/cmd/internal/household"
	"hearth/cmd/internal/httpx"
)

// Client-facing messages. The web client matches on them.
const (
	msgUnauthorized  = "Missing or invalid Authorization header"
	msgNotConfigured = "OpenAI API key not configured on server"
	msgRequired      = "Message is required"
	msgTooLong       = "Message is too long"
	msgTooMany       = "Too many requests"
	msgFailed        = "Error processing your request"
)

// History stores finished exchanges. household.Store implements it.
type History interface {
	AppendChat(ctx context.Context, userID, message, response string, now time.Time) (household.ChatEntry, error)
}

type Proxy struct {
	log      *slog.Logger
	cfg      Config
	upstream Completer
	history  History
	limits   *userLimiter
	now      func() time.Time
}

type Option func(*Proxy)

// WithCompleter replaces the OpenAI client.
func WithCompleter(c Completer) Option { return func(p *Proxy) { p.upstream = c } }

// WithLatencyObserver is called after every upstream call.
func WithLatencyObserver(fn func(d time.Duration, err error)) Option {
	return func(p *Proxy) {
		if fn != nil {
			p.upstream = timed{next: p.upstream, observe: fn}
		}
	}
}

func WithClock(now func() time.Time) Option { return func(p *Proxy) { p.now = now } }

// NewProxy returns a Proxy. history may be nil; then nothing is recorded.
func NewProxy(log *slog.Logger, cfg Config, history History, opts ...Option) *Proxy {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	p := &Proxy{
		log:      log,
		cfg:      cfg,
		upstream: NewOpenAIClient(cfg, nil),
		history:  history,
		limits:   newUserLimiter(cfg.RatePerMinute, cfg.Burst),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type flatError struct {
	Error string `json:"error"`
}

func writeFlat(w http.ResponseWriter, status int, msg string) {
	httpx.WriteJSON(w, status, flatError{Error: msg})
}

// Unauthorized is the 401 body for authn.WithUnauthorized.
func (p *Proxy) Unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeFlat(w, http.StatusUnauthorized, msgUnauthorized)
}

// ServeHTTP answers POST {message}. It expects authn.Middleware in front.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, ok := authn.FromContext(r.Context())
	if !ok {
		p.Unauthorized(w, r)
		return
	}
	if !p.cfg.Configured() {
		p.log.Error("chat.config.missing_key")
		writeFlat(w, http.StatusInternalServerError, msgNotConfigured)
		return
	}

	var req chatRequest
	if err := httpx.DecodeJSON(w, r, 64<<10, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeFlat(w, http.StatusRequestEntityTooLarge, msgTooLong)
			return
		}
		writeFlat(w, http.StatusBadRequest, msgRequired)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeFlat(w, http.StatusBadRequest, msgRequired)
		return
	}
	if utf8.RuneCountInString(msg) > p.cfg.MaxMessageRunes {
		writeFlat(w, http.StatusBadRequest, msgTooLong)
		return
	}

	now := p.now()
	if !p.limits.allow(caller.UserID, now) {
		p.log.Warn("chat.rate_limited", "user_id", caller.UserID)
		writeFlat(w, http.StatusTooManyRequests, msgTooMany)
		return
	}

	answer, err := p.upstream.Complete(r.Context(), []Message{
		{Role: "system", Content: p.cfg.SystemPrompt},
		{Role: "user", Content: msg},
	})
	if err != nil {
		p.log.Error("chat.upstream.fail", "err", err, "user_id", caller.UserID)
		writeFlat(w, http.StatusInternalServerError, msgFailed)
		return
	}

	if p.history != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		if _, err := p.history.AppendChat(ctx, caller.UserID, msg, answer, now); err != nil {
			p.log.Warn("chat.history.append.fail", "err", err, "user_id", caller.UserID)
		}
		cancel()
	}

	p.log.Info("chat.reply.ok", "user_id", caller.UserID, "message_runes", utf8.RuneCountInString(msg))
	httpx.WriteJSON(w, http.StatusOK, chatResponse{Response: answer})
}
