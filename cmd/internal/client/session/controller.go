package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultProfileRetryDelay = 250 * time.Millisecond

// Controller drives sign-up, sign-in, restore and sign-out against a Gateway and
// is the only writer of its Store.
//
// Every attempt takes a sequence number when it is issued. A result is applied
// only while its number is still the latest issued, so a slow response cannot
// overwrite the state produced by a newer attempt. The number travels to the
// Gateway as an Attempt in the call context, so the token set the Gateway
// holds follows the same order as the Store.
type Controller struct {
	gw       Gateway
	profiles ProfileEnsurer
	store    *Store
	log      *slog.Logger

	profileRetryDelay time.Duration

	issued   atomic.Uint64
	inflight atomic.Int64

	// mu orders sequence checks with the staged Store writes.
	mu      sync.Mutex
	applied uint64

	listenOnce sync.Once
	releaseMu  sync.Mutex
	release    func()
}

type Option func(*Controller)

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithProfileRetryDelay sets the pause before the single profile retry.
func WithProfileRetryDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.profileRetryDelay = d
		}
	}
}

// SignUpResult describes a successful account creation.
//
// ProfileWarning is non-nil when the account exists but its profile could not
// be created; it matches ErrProfileIncomplete.
type SignUpResult struct {
	Principal      Principal
	Authenticated  bool
	ProfileWarning error
}

func NewController(gw Gateway, profiles ProfileEnsurer, store *Store, opts ...Option) (*Controller, error) {
	if gw == nil {
		return nil, errors.New("session: gateway is required")
	}
	if profiles == nil {
		return nil, errors.New("session: profile ensurer is required")
	}
	if store == nil {
		return nil, errors.New("session: store is required")
	}

	c := &Controller{
		gw:                gw,
		profiles:          profiles,
		store:             store,
		log:               slog.New(slog.DiscardHandler),
		profileRetryDelay: defaultProfileRetryDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Store returns the store this controller writes to.
func (c *Controller) Store() *Store { return c.store }

// Initialize restores an existing session, if any, and starts listening for
// gateway-side changes. It always leaves the Store resolved; a failed restore
// counts as "no session".
func (c *Controller) Initialize(ctx context.Context) {
	c.store.setLoading(Loading)
	defer c.store.setLoading(LoadingResolved)

	seq, _ := c.begin(ctx)
	defer c.end(nil)

	p, ok, err := c.gw.ActiveSession(ctx)
	if err != nil {
		c.log.Warn("session.restore.fail", "err", err)
		ok = false
	}

	var next *Principal
	if ok && !p.IsZero() {
		next = &p
	}
	if !c.applyLatest(seq, next, nil) {
		c.log.Debug("session.restore.superseded", "seq", seq)
		return
	}
	c.log.Info("session.restore.ok", "authenticated", next != nil)
}

// SignUp creates an account and its profile.
//
// The Store changes only when the gateway signed the new account in. A profile
// failure after one retry does not fail the sign-up; it is reported in
// SignUpResult.ProfileWarning. ErrSuperseded is returned, together with a valid
// result, when a newer attempt was issued before this one resolved.
func (c *Controller) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return SignUpResult{}, &ValidationError{Field: "display_name", Reason: "must not be empty"}
	}

	seq, ctx := c.begin(ctx)
	att := AttemptFrom(ctx)
	defer c.end(att)

	resp, err := c.gw.CreateAccount(ctx, email, password)
	if err != nil {
		c.log.Info("session.sign_up.fail", "err", err)
		return SignUpResult{}, asAuthError("sign_up", err)
	}
	if resp.Principal.IsZero() && resp.Session != nil {
		resp.Principal = resp.Session.Principal
	}
	if resp.Principal.IsZero() {
		return SignUpResult{}, &AuthError{Op: "sign_up", Reason: "gateway returned no principal"}
	}

	res := SignUpResult{Principal: resp.Principal}
	if err := c.ensureProfile(ctx, resp.Principal.ID, name); err != nil {
		c.log.Warn("session.sign_up.profile_incomplete", "principal_id", resp.Principal.ID, "err", err)
		res.ProfileWarning = &ProfileIncompleteError{PrincipalID: resp.Principal.ID, Err: err}
	}

	if resp.Session == nil {
		return res, nil
	}

	p := resp.Session.Principal
	if p.IsZero() {
		p = resp.Principal
	}
	if !c.applyLatest(seq, &p, att) {
		return res, ErrSuperseded
	}
	res.Authenticated = true
	c.log.Info("session.sign_up.ok", "principal_id", p.ID)
	return res, nil
}

// SignIn authenticates with a password and replaces the Store value.
func (c *Controller) SignIn(ctx context.Context, email, password string) (Principal, error) {
	seq, ctx := c.begin(ctx)
	att := AttemptFrom(ctx)
	defer c.end(att)

	s, err := c.gw.Authenticate(ctx, email, password)
	if err != nil {
		c.log.Info("session.sign_in.fail", "err", err)
		return Principal{}, asAuthError("sign_in", err)
	}
	if s.Principal.IsZero() {
		return Principal{}, &AuthError{Op: "sign_in", Reason: "gateway returned no principal"}
	}

	p := s.Principal
	if !c.applyLatest(seq, &p, att) {
		return p, ErrSuperseded
	}
	c.log.Info("session.sign_in.ok", "principal_id", p.ID)
	return p, nil
}

// SignOut invalidates the session at the gateway and clears the Store once the
// gateway has confirmed. On failure the Store is left as it was.
func (c *Controller) SignOut(ctx context.Context, scope Scope) error {
	if !scope.Valid() {
		return &ValidationError{Field: "scope", Reason: "must be local or global"}
	}

	seq, _ := c.begin(ctx)
	defer c.end(nil)

	if err := c.gw.InvalidateSession(ctx, scope); err != nil {
		c.log.Warn("session.sign_out.fail", "scope", string(scope), "err", err)
		return asAuthError("sign_out", err)
	}

	c.applyClear(seq)
	c.log.Info("session.sign_out.ok", "scope", string(scope))
	return nil
}

// Close stops listening for gateway changes. It does not sign out.
func (c *Controller) Close() {
	c.releaseMu.Lock()
	defer c.releaseMu.Unlock()
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

// begin issues the next sequence number and returns ctx carrying its Attempt.
// The gateway change listener is registered on first use, so a Controller
// driven without Initialize still sees remote sign-outs.
func (c *Controller) begin(ctx context.Context) (uint64, context.Context) {
	c.listen()
	c.inflight.Add(1)
	seq := c.issued.Add(1)
	return seq, WithAttempt(ctx, &Attempt{seq: seq})
}

// end discards whatever att still has staged: an error path or a superseded
// result.
func (c *Controller) end(att *Attempt) {
	att.lose()
	c.inflight.Add(-1)
}

// applyLatest writes p if seq is still the newest issued attempt. att, when
// non-nil, is committed together with the Store write or discarded.
func (c *Controller) applyLatest(seq uint64, p *Principal, att *Attempt) bool {
	c.mu.Lock()
	if c.issued.Load() != seq {
		c.mu.Unlock()
		att.lose()
		return false
	}
	after := att.win()
	c.applied = seq
	c.store.stagePrincipal(p)
	c.mu.Unlock()

	c.store.deliver()
	if after != nil {
		after()
	}
	return true
}

// applyClear clears the Store unless a newer attempt already applied a result.
func (c *Controller) applyClear(seq uint64) {
	c.mu.Lock()
	if c.applied > seq {
		c.mu.Unlock()
		return
	}
	c.applied = seq
	c.store.stagePrincipal(nil)
	c.mu.Unlock()

	c.store.deliver()
}

func (c *Controller) ensureProfile(ctx context.Context, principalID, name string) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if werr := sleepCtx(ctx, c.profileRetryDelay); werr != nil {
				return errors.Join(err, werr)
			}
		}
		if err = c.profiles.EnsureProfile(ctx, principalID, name); err == nil {
			return nil
		}
		c.log.Warn("session.profile.ensure.fail", "principal_id", principalID, "attempt", attempt+1, "err", err)
	}
	return err
}

func (c *Controller) listen() {
	c.listenOnce.Do(func() {
		release := c.gw.OnSessionChange(c.handleChange)
		c.releaseMu.Lock()
		c.release = release
		c.releaseMu.Unlock()
	})
}

// handleChange applies a gateway-side change. Sign-out and expiry only clear
// the Store when they concern the principal it currently holds.
func (c *Controller) handleChange(ev ChangeEvent) {
	c.mu.Lock()
	cur, ok := c.store.CurrentPrincipal()

	staged := false
	switch ev.Kind {
	case ChangeSignedOut, ChangeExpired:
		if ok && (ev.Principal.IsZero() || ev.Principal.ID == cur.ID) {
			c.store.stagePrincipal(nil)
			staged = true
		}
	case ChangeTokenRefreshed:
		if ok && ev.Principal.ID == cur.ID {
			p := ev.Principal
			c.store.stagePrincipal(&p)
			staged = true
		}
	case ChangeSignedIn:
		// An attempt in flight will decide the state itself.
		if !ev.Principal.IsZero() && c.inflight.Load() == 0 {
			p := ev.Principal
			c.store.stagePrincipal(&p)
			staged = true
		}
	}
	c.mu.Unlock()

	if staged {
		c.log.Info("session.change.applied", "kind", ev.Kind.String(), "principal_id", ev.Principal.ID)
		c.store.deliver()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
