// Package gatewaytest provides an in-memory auth and profile backend shared by
// any number of simulated client devices.
package gatewaytest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"hearth/cmd/internal/client/profile"
	"hearth/cmd/internal/client/session"
)

// Op names a backend call for fault injection.
type Op string

const (
	OpCreateAccount     Op = "create_account"
	OpAuthenticate      Op = "authenticate"
	OpActiveSession     Op = "active_session"
	OpInvalidateSession Op = "invalidate_session"
	OpCreateProfile     Op = "create_profile"
	OpUpdateProfileName Op = "update_profile_name"
	OpGetProfile        Op = "get_profile"
)

type account struct {
	principal session.Principal
	password  string
}

type sessionRecord struct {
	principalID string
	revoked     bool
	expiresAt   time.Time
}

// Backend is safe for concurrent use.
type Backend struct {
	mu          sync.Mutex
	now         func() time.Time
	autoSession bool
	sessionTTL  time.Duration

	accounts map[string]*account // by normalized email
	sessions map[string]*sessionRecord
	profiles []profile.Profile
	devices  []*Device
	gates    map[string]*gate
	faults   map[Op][]error
	seq      int
}

type Option func(*Backend)

// WithAutoSession makes CreateAccount sign the new account in.
func WithAutoSession(on bool) Option { return func(b *Backend) { b.autoSession = on } }

func WithClock(now func() time.Time) Option { return func(b *Backend) { b.now = now } }

func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		now:        time.Now,
		sessionTTL: time.Hour,
		accounts:   make(map[string]*account),
		sessions:   make(map[string]*sessionRecord),
		gates:      make(map[string]*gate),
		faults:     make(map[Op][]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewDevice returns a client-side gateway with no session.
func (b *Backend) NewDevice() *Device {
	d := &Device{b: b, listeners: make(map[int]func(session.ChangeEvent))}
	b.mu.Lock()
	b.devices = append(b.devices, d)
	b.mu.Unlock()
	return d
}

// Register seeds an account without a profile. It returns the zero Principal
// when the account cannot be created.
func (b *Backend) Register(email, password string) session.Principal {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, err := b.createAccountLocked(email, password)
	if err != nil {
		return session.Principal{}
	}
	return acc.principal
}

type gate struct {
	ch      chan struct{}
	waiting int
}

// Gate blocks Authenticate calls for email until the returned func is called.
func (b *Backend) Gate(email string) (release func()) {
	g := &gate{ch: make(chan struct{})}
	key := normalize(email)
	b.mu.Lock()
	b.gates[key] = g
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gates[key] == g {
				delete(b.gates, key)
			}
			b.mu.Unlock()
			close(g.ch)
		})
	}
}

// Waiting returns how many Authenticate calls are blocked on the gate of email.
func (b *Backend) Waiting(email string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g := b.gates[normalize(email)]; g != nil {
		return g.waiting
	}
	return 0
}

// FailNext makes the next call of op fail with err. Calls queue up.
func (b *Backend) FailNext(op Op, err error) {
	b.mu.Lock()
	b.faults[op] = append(b.faults[op], err)
	b.mu.Unlock()
}

// ProfileCount returns how many profile rows carry id.
func (b *Backend) ProfileCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.profiles {
		if p.ID == id {
			n++
		}
	}
	return n
}

func (b *Backend) Profile(id string) (profile.Profile, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.profileIndexLocked(id)
	if i < 0 {
		return profile.Profile{}, false
	}
	return b.profiles[i], true
}

// LiveSessions counts unrevoked, unexpired sessions of principalID.
func (b *Backend) LiveSessions(principalID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	n := 0
	for _, rec := range b.sessions {
		if rec.principalID == principalID && rec.live(now) {
			n++
		}
	}
	return n
}

// TokenOwner returns the principal of the live session behind tok.
func (b *Backend) TokenOwner(tok string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.sessions[tok]
	if !rec.live(b.now()) {
		return "", false
	}
	return rec.principalID, true
}

// Expire ends every session of principalID and pushes ChangeExpired to the
// devices holding one.
func (b *Backend) Expire(principalID string) {
	b.mu.Lock()
	var p session.Principal
	for _, acc := range b.accounts {
		if acc.principal.ID == principalID {
			p = acc.principal
		}
	}
	for _, rec := range b.sessions {
		if rec.principalID == principalID {
			rec.revoked = true
		}
	}
	targets := b.devicesOfLocked(principalID, nil)
	b.mu.Unlock()

	for _, d := range targets {
		d.emit(session.ChangeEvent{Kind: session.ChangeExpired, Principal: p})
	}
}

func (b *Backend) fault(op Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.faults[op]
	if len(q) == 0 {
		return nil
	}
	b.faults[op] = q[1:]
	return q[0]
}

func (b *Backend) createAccountLocked(email, password string) (*account, error) {
	key := normalize(email)
	if key == "" || !strings.Contains(key, "@") {
		return nil, &session.AuthError{Op: "create_account", Code: "invalid_email", Reason: "invalid email", Status: 400}
	}
	if _, ok := b.accounts[key]; ok {
		return nil, &session.AuthError{Op: "create_account", Code: "email_taken", Reason: "User already registered", Status: 409}
	}
	if len(password) < 8 {
		return nil, &session.AuthError{Op: "create_account", Code: "weak_password", Reason: "password too short", Status: 422}
	}
	b.seq++
	acc := &account{
		principal: session.Principal{
			ID:        fmt.Sprintf("user-%04d", b.seq),
			Email:     key,
			CreatedAt: b.now().UTC(),
		},
		password: password,
	}
	b.accounts[key] = acc
	return acc, nil
}

func (b *Backend) issueLocked(principalID string) (string, time.Time) {
	tok := randomToken()
	exp := b.now().Add(b.sessionTTL)
	b.sessions[tok] = &sessionRecord{principalID: principalID, expiresAt: exp}
	return tok, exp
}

func (b *Backend) principalLocked(id string) (session.Principal, bool) {
	for _, acc := range b.accounts {
		if acc.principal.ID == id {
			return acc.principal, true
		}
	}
	return session.Principal{}, false
}

func (b *Backend) devicesOfLocked(principalID string, except *Device) []*Device {
	var out []*Device
	for _, d := range b.devices {
		if d == except {
			continue
		}
		d.mu.Lock()
		tok := d.token
		d.mu.Unlock()
		if rec, ok := b.sessions[tok]; ok && rec.principalID == principalID {
			out = append(out, d)
		}
	}
	return out
}

func (b *Backend) profileIndexLocked(id string) int {
	for i, p := range b.profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (rec *sessionRecord) live(now time.Time) bool {
	return rec != nil && !rec.revoked && now.Before(rec.expiresAt)
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func randomToken() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// waitGate blocks while a gate for email is closed.
func (b *Backend) waitGate(ctx context.Context, email string) error {
	b.mu.Lock()
	g := b.gates[normalize(email)]
	if g == nil {
		b.mu.Unlock()
		return nil
	}
	g.waiting++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		g.waiting--
		b.mu.Unlock()
	}()

	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) revoke(tok string) {
	if tok == "" {
		return
	}
	b.mu.Lock()
	if rec, ok := b.sessions[tok]; ok {
		rec.revoked = true
	}
	b.mu.Unlock()
}
