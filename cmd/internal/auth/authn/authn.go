// Package authn authenticates requests to the data routes with a bearer token.
package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"hearth/cmd/internal/auth/session"
	"hearth/cmd/internal/httpx"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	SessionID string
	// ExpiresAt is when the backing session, or the provisioning token, ends.
	ExpiresAt time.Time
	// Provisioning is set when the caller holds a provisioning token instead
	// of a session.
	Provisioning bool
}

// Validator verifies both token kinds. *session.Service implements it.
type Validator interface {
	ValidateAccessToken(ctx context.Context, tok string, now time.Time) (session.AccessClaims, session.Row, error)
	ValidateProvisioningToken(tok string, now time.Time) (session.ProvisioningClaims, error)
}

var _ Validator = (*session.Service)(nil)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UserID != ""
}

type options struct {
	log          *slog.Logger
	now          func() time.Time
	provisioning bool
	unauthorized func(http.ResponseWriter, *http.Request)
}

type Option func(*options)

// AllowProvisioning accepts provisioning tokens in addition to access tokens.
func AllowProvisioning() Option { return func(o *options) { o.provisioning = true } }

// WithUnauthorized replaces the default 401 body.
func WithUnauthorized(fn func(http.ResponseWriter, *http.Request)) Option {
	return func(o *options) { o.unauthorized = fn }
}

func WithLogger(log *slog.Logger) Option { return func(o *options) { o.log = log } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func defaultUnauthorized(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

// Middleware rejects requests without a valid bearer token and stores the
// Principal in the request context.
func Middleware(v Validator, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		log:          slog.New(slog.DiscardHandler),
		now:          time.Now,
		unauthorized: defaultUnauthorized,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := httpx.BearerToken(r)
			if tok == "" {
				o.unauthorized(w, r)
				return
			}

			p, err := authenticate(r.Context(), v, tok, o.now().UTC(), o.provisioning)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			case session.IsUnauthenticated(err):
				o.unauthorized(w, r)
			default:
				o.log.Error("authn.validate.fail", "err", err, "path", r.URL.Path)
				httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			}
		})
	}
}

func authenticate(ctx context.Context, v Validator, tok string, now time.Time, provisioning bool) (Principal, error) {
	claims, row, err := v.ValidateAccessToken(ctx, tok, now)
	if err == nil {
		return Principal{UserID: claims.UserID, SessionID: row.ID, ExpiresAt: row.ExpiresAt}, nil
	}
	// A token that parsed as an access token never falls through.
	if !provisioning || !errors.Is(err, session.ErrInvalidToken) {
		return Principal{}, err
	}

	pc, perr := v.ValidateProvisioningToken(tok, now)
	if perr != nil {
		return Principal{}, perr
	}
	return Principal{UserID: pc.UserID, ExpiresAt: pc.ExpiresAt, Provisioning: true}, nil
}
