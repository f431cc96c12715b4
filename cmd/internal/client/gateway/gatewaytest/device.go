package gatewaytest

import (
	"context"
	"strings"
	"sync"

	"hearth/cmd/internal/client/profile"
	"hearth/cmd/internal/client/session"
)

// Device is one client's view of the Backend. It implements session.Gateway
// and profile.Store.
//
// Like the HTTP gateway, a Device keeps only the token of its newest
// authentication attempt: a session issued for an older attempt that
// resolves late is revoked. A session.Attempt in the call context decides
// which attempt is newest.
type Device struct {
	b *Backend

	mu        sync.Mutex
	token     string
	ticket    uint64
	listeners map[int]func(session.ChangeEvent)
	nextL     int
}

var (
	_ session.Gateway = (*Device)(nil)
	_ profile.Store   = (*Device)(nil)
)

// Token returns the session token held by the device, if any.
func (d *Device) Token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

func (d *Device) CreateAccount(ctx context.Context, email, password string) (session.SignUpResponse, error) {
	if err := d.b.fault(OpCreateAccount); err != nil {
		return session.SignUpResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return session.SignUpResponse{}, err
	}
	ticket := d.takeTicket()

	d.b.mu.Lock()
	acc, err := d.b.createAccountLocked(email, password)
	if err != nil {
		d.b.mu.Unlock()
		return session.SignUpResponse{}, err
	}
	resp := session.SignUpResponse{Principal: acc.principal}
	if !d.b.autoSession {
		d.b.mu.Unlock()
		return resp, nil
	}
	tok, exp := d.b.issueLocked(acc.principal.ID)
	d.b.mu.Unlock()

	d.hold(ctx, ticket, tok)
	resp.Session = &session.Session{Principal: acc.principal, Token: tok, ExpiresAt: exp}
	return resp, nil
}

func (d *Device) Authenticate(ctx context.Context, email, password string) (session.Session, error) {
	if err := d.b.fault(OpAuthenticate); err != nil {
		return session.Session{}, err
	}
	ticket := d.takeTicket()
	if err := d.b.waitGate(ctx, email); err != nil {
		return session.Session{}, err
	}

	d.b.mu.Lock()
	acc, ok := d.b.accounts[normalize(email)]
	if !ok || acc.password != password {
		d.b.mu.Unlock()
		return session.Session{}, &session.AuthError{
			Op: "authenticate", Code: "invalid_credentials", Reason: "Invalid login credentials", Status: 401,
		}
	}
	tok, exp := d.b.issueLocked(acc.principal.ID)
	d.b.mu.Unlock()

	d.hold(ctx, ticket, tok)
	return session.Session{Principal: acc.principal, Token: tok, ExpiresAt: exp}, nil
}

func (d *Device) ActiveSession(ctx context.Context) (session.Principal, bool, error) {
	if err := d.b.fault(OpActiveSession); err != nil {
		return session.Principal{}, false, err
	}
	tok := d.Token()
	if tok == "" {
		return session.Principal{}, false, nil
	}

	d.b.mu.Lock()
	rec := d.b.sessions[tok]
	live := rec.live(d.b.now())
	var p session.Principal
	if live {
		p, live = d.b.principalLocked(rec.principalID)
	}
	d.b.mu.Unlock()

	if !live {
		d.dropToken(tok)
		return session.Principal{}, false, nil
	}
	return p, true, nil
}

// InvalidateSession revokes this device's session, or every session of its
// principal for ScopeGlobal. Other devices losing their session to a global
// sign-out receive ChangeSignedOut.
func (d *Device) InvalidateSession(ctx context.Context, scope session.Scope) error {
	if err := d.b.fault(OpInvalidateSession); err != nil {
		return err
	}
	tok := d.Token()
	if tok == "" {
		return nil
	}

	d.b.mu.Lock()
	rec, ok := d.b.sessions[tok]
	if !ok {
		d.b.mu.Unlock()
		d.dropToken(tok)
		return nil
	}
	principalID := rec.principalID
	var others []*Device
	switch scope {
	case session.ScopeGlobal:
		others = d.b.devicesOfLocked(principalID, d)
		for _, r := range d.b.sessions {
			if r.principalID == principalID {
				r.revoked = true
			}
		}
	default:
		rec.revoked = true
	}
	p, _ := d.b.principalLocked(principalID)
	d.b.mu.Unlock()

	d.dropToken(tok)
	for _, o := range others {
		o.emit(session.ChangeEvent{Kind: session.ChangeSignedOut, Principal: p})
	}
	return nil
}

func (d *Device) OnSessionChange(fn func(session.ChangeEvent)) func() {
	d.mu.Lock()
	d.nextL++
	id := d.nextL
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

func (d *Device) CreateProfile(ctx context.Context, principalID, name string) error {
	if err := d.b.fault(OpCreateProfile); err != nil {
		return err
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.b.profileIndexLocked(principalID) >= 0 {
		return &profile.DuplicateKeyError{PrincipalID: principalID}
	}
	now := d.b.now().UTC()
	d.b.profiles = append(d.b.profiles, profile.Profile{
		ID: principalID, Name: strings.TrimSpace(name), CreatedAt: now, UpdatedAt: now,
	})
	return nil
}

func (d *Device) UpdateProfileName(ctx context.Context, principalID, name string) error {
	if err := d.b.fault(OpUpdateProfileName); err != nil {
		return err
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	i := d.b.profileIndexLocked(principalID)
	if i < 0 {
		return profile.ErrNotFound
	}
	d.b.profiles[i].Name = strings.TrimSpace(name)
	d.b.profiles[i].UpdatedAt = d.b.now().UTC()
	return nil
}

func (d *Device) GetProfile(ctx context.Context, principalID string) (profile.Profile, error) {
	if err := d.b.fault(OpGetProfile); err != nil {
		return profile.Profile{}, err
	}
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	i := d.b.profileIndexLocked(principalID)
	if i < 0 {
		return profile.Profile{}, profile.ErrNotFound
	}
	return d.b.profiles[i], nil
}

func (d *Device) takeTicket() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticket++
	return d.ticket
}

// hold stages tok on the session.Attempt carried by ctx, or adopts it by
// ticket when there is none.
func (d *Device) hold(ctx context.Context, ticket uint64, tok string) {
	att := session.AttemptFrom(ctx)
	if att == nil {
		d.adopt(ticket, tok)
		return
	}
	att.Stage(func() func() {
		d.mu.Lock()
		d.ticket++
		stale := d.token
		d.token = tok
		d.mu.Unlock()
		return func() { d.b.revoke(stale) }
	}, func() { d.b.revoke(tok) })
}

// adopt stores tok if ticket is the newest attempt, otherwise revokes it.
// The replaced token, if any, is revoked as well.
func (d *Device) adopt(ticket uint64, tok string) {
	d.mu.Lock()
	var stale string
	if ticket == d.ticket {
		stale, d.token = d.token, tok
	} else {
		stale = tok
	}
	d.mu.Unlock()

	d.b.revoke(stale)
}

func (d *Device) dropToken(tok string) {
	d.mu.Lock()
	if d.token == tok {
		d.token = ""
	}
	d.mu.Unlock()
}

func (d *Device) emit(ev session.ChangeEvent) {
	d.mu.Lock()
	fns := make([]func(session.ChangeEvent), 0, len(d.listeners))
	for i := 1; i <= d.nextL; i++ {
		if fn, ok := d.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	if ev.Kind == session.ChangeSignedOut || ev.Kind == session.ChangeExpired {
		d.token = ""
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
