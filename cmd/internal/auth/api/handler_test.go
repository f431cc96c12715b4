package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hearth/cmd/identity"
	"hearth/cmd/internal/auth/session"
	"hearth/cmd/internal/profile"
	"hearth/cmd/security/password"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/go-chi/chi/v5"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []session.Revocation
}

func (n *recordingNotifier) SessionRevoked(r session.Revocation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, r)
}

func (n *recordingNotifier) all() []session.Revocation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]session.Revocation(nil), n.got...)
}

type testEnv struct {
	srv      *httptest.Server
	h        *Handler
	audit    *MemoryAuditLog
	profiles *profile.MemoryStore
	notify   *recordingNotifier
}

func cheapPassword() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	scfg := session.DefaultConfig()
	scfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	mgr, err := session.NewPasetoV4PublicManager(scfg)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	n := &recordingNotifier{}
	svc := session.NewService(scfg, session.NewMemoryStore(), mgr, session.WithNotifier(n))

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	audit := NewMemoryAuditLog()
	profiles := profile.NewMemoryStore()
	h, err := NewHandler(nil, cfg, Deps{
		Users:    identity.NewMemoryStore(),
		Sessions: svc,
		Audit:    audit,
		Password: cheapPassword(),
		Profiles: profiles,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, h: h, audit: audit, profiles: profiles, notify: n}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) (int, []byte, http.Header) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, buf.Bytes(), res.Header
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

type errBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

const goodPassword = "correct horse battery"

func (e *testEnv) signup(t *testing.T, email string) signupResponse {
	t.Helper()
	status, body, _ := e.do(t, http.MethodPost, "/auth/signup", "", signupRequest{Email: email, Password: goodPassword, Platform: "cli"})
	if status != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", status, body)
	}
	return decode[signupResponse](t, body)
}

func (e *testEnv) login(t *testing.T, email string) loginResponse {
	t.Helper()
	status, body, _ := e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: goodPassword})
	if status != http.StatusOK {
		t.Fatalf("login status = %d body=%s", status, body)
	}
	return decode[loginResponse](t, body)
}

func TestSignup_AutoSessionAndProvisioningToken(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)

	got := e.signup(t, "Thiri@Example.com")
	if got.User.ID == "" || got.User.Email != "thiri@example.com" {
		t.Fatalf("user = %+v", got.User)
	}
	if got.Session == nil || got.Session.AccessToken == "" || got.Session.RefreshToken == "" {
		t.Fatalf("expected a session, got %+v", got.Session)
	}
	if got.ProvisioningToken == "" || got.ProvisioningExpiresAt.IsZero() {
		t.Fatalf("expected a provisioning token")
	}

	status, body, _ := e.do(t, http.MethodGet, "/auth/session", got.Session.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("session status = %d body=%s", status, body)
	}
	st := decode[sessionStateResponse](t, body)
	if st.SessionID != got.Session.SessionID || st.User.ID != got.User.ID {
		t.Fatalf("session state = %+v", st)
	}

	// A provisioning token is not a session.
	if status, _, _ := e.do(t, http.MethodGet, "/auth/session", got.ProvisioningToken, nil); status != http.StatusUnauthorized {
		t.Fatalf("provisioning token on /auth/session: status = %d", status)
	}
}

func TestSignup_WithoutAutoSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, func(c *Config) { c.SignupAutoSession = false })

	got := e.signup(t, "nwe@example.com")
	if got.Session != nil {
		t.Fatalf("expected no session, got %+v", got.Session)
	}
	if got.ProvisioningToken == "" {
		t.Fatalf("expected a provisioning token")
	}
	e.login(t, "nwe@example.com")
}

func TestSignup_Errors(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "taken@example.com")

	tests := []struct {
		name string
		body any
		want int
		code string
	}{
		{"duplicate email case-insensitive", signupRequest{Email: "TAKEN@example.com", Password: goodPassword}, http.StatusConflict, "email_taken"},
		{"weak password", signupRequest{Email: "new@example.com", Password: "12345678"}, http.StatusUnprocessableEntity, "weak_password"},
		{"short password", signupRequest{Email: "new@example.com", Password: "abc"}, http.StatusUnprocessableEntity, "weak_password"},
		{"bad email", signupRequest{Email: "not-an-email", Password: goodPassword}, http.StatusBadRequest, "invalid_email"},
		{"unknown field", map[string]any{"email": "x@example.com", "password": goodPassword, "admin": true}, http.StatusBadRequest, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := e.do(t, http.MethodPost, "/auth/signup", "", tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d body=%s", status, tt.want, body)
			}
			if got := decode[errBody](t, body).Error.Code; got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestLogin_NoEnumeration(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "known@example.com")

	s1, b1, _ := e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "unknown@example.com", Password: goodPassword})
	s2, b2, _ := e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "known@example.com", Password: "wrong password here"})
	if s1 != http.StatusUnauthorized || s2 != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d", s1, s2)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("bodies differ:\n%s\n%s", b1, b2)
	}
}

func TestLogin_IdentifierLockout(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, func(c *Config) { c.LoginIPMax = 0 })
	e.signup(t, "lock@example.com")

	for i := range 5 {
		status, _, _ := e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "lock@example.com", Password: "wrong password"})
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, status)
		}
	}

	status, body, hdr := e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "Lock@example.com", Password: goodPassword})
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d body=%s", status, body)
	}
	if hdr.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestLogin_IPThrottle(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, func(c *Config) {
		c.LoginIPMax = 3
		c.LockoutShortThreshold, c.LockoutLongThreshold, c.LockoutSevereThreshold = 0, 0, 0
	})

	for i := range 3 {
		email := []string{"a@example.com", "b@example.com", "c@example.com"}[i]
		e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: "whatever pass"})
	}
	status, _, _ := e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "d@example.com", Password: "whatever pass"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d", status)
	}
}

func TestRefresh_RotateAndReuse(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "rot@example.com")
	first := e.login(t, "rot@example.com")

	status, body, _ := e.do(t, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: first.Session.RefreshToken})
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", status, body)
	}
	second := decode[refreshResponse](t, body)
	if second.Session.RefreshToken == first.Session.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	status, body, _ = e.do(t, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: first.Session.RefreshToken})
	if status != http.StatusUnauthorized || decode[errBody](t, body).Error.Code != "invalid_refresh" {
		t.Fatalf("reuse status = %d body=%s", status, body)
	}

	// Reuse revoked the rotated-to session as well.
	if status, _, _ := e.do(t, http.MethodGet, "/auth/session", second.Session.AccessToken, nil); status != http.StatusUnauthorized {
		t.Fatalf("session after reuse: status = %d", status)
	}

	revs := e.notify.all()
	if len(revs) == 0 || revs[len(revs)-1].Scope != session.ScopeGlobal {
		t.Fatalf("expected a global revocation, got %+v", revs)
	}
}

func TestRefresh_Unknown(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)

	status, body, _ := e.do(t, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: "nope"})
	if status != http.StatusUnauthorized || decode[errBody](t, body).Error.Code != "invalid_refresh" {
		t.Fatalf("status = %d body=%s", status, body)
	}
}

func TestLogout_LocalKeepsOtherSessions(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "two@example.com")
	a := e.login(t, "two@example.com")
	b := e.login(t, "two@example.com")

	if status, _, _ := e.do(t, http.MethodPost, "/auth/logout", a.Session.AccessToken, logoutRequest{Scope: "local"}); status != http.StatusNoContent {
		t.Fatalf("logout status = %d", status)
	}
	if status, _, _ := e.do(t, http.MethodGet, "/auth/session", a.Session.AccessToken, nil); status != http.StatusUnauthorized {
		t.Fatalf("revoked session status = %d", status)
	}
	if status, _, _ := e.do(t, http.MethodGet, "/auth/session", b.Session.AccessToken, nil); status != http.StatusOK {
		t.Fatalf("other session status = %d", status)
	}

	revs := e.notify.all()
	last := revs[len(revs)-1]
	if last.Scope != session.ScopeLocal || last.SessionID != a.Session.SessionID {
		t.Fatalf("revocation = %+v", last)
	}
}

func TestLogout_GlobalEndsEverySession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "all@example.com")
	a := e.login(t, "all@example.com")
	b := e.login(t, "all@example.com")

	if status, _, _ := e.do(t, http.MethodPost, "/auth/logout", a.Session.AccessToken, logoutRequest{Scope: "global"}); status != http.StatusNoContent {
		t.Fatalf("logout status = %d", status)
	}
	if status, _, _ := e.do(t, http.MethodGet, "/auth/session", b.Session.AccessToken, nil); status != http.StatusUnauthorized {
		t.Fatalf("second device status = %d", status)
	}
}

func TestLogout_BadScope(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "scope@example.com")
	a := e.login(t, "scope@example.com")

	status, _, _ := e.do(t, http.MethodPost, "/auth/logout", a.Session.AccessToken, logoutRequest{Scope: "everywhere"})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
}

func TestLogout_NoBodyEndsOnlyThisSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "nobody@example.com")
	a := e.login(t, "nobody@example.com")
	b := e.login(t, "nobody@example.com")

	if status, body, _ := e.do(t, http.MethodPost, "/auth/logout", a.Session.AccessToken, nil); status != http.StatusNoContent {
		t.Fatalf("logout status = %d body=%s", status, body)
	}
	if status, _, _ := e.do(t, http.MethodGet, "/auth/session", a.Session.AccessToken, nil); status != http.StatusUnauthorized {
		t.Fatalf("revoked session status = %d", status)
	}
	if status, _, _ := e.do(t, http.MethodGet, "/auth/session", b.Session.AccessToken, nil); status != http.StatusOK {
		t.Fatalf("other session status = %d", status)
	}
}

func TestLoginAndSession_ReportNormalizedEmail(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, " Thiri@Example.com ")

	got := e.login(t, "THIRI@example.COM")
	if got.User.Email != "thiri@example.com" {
		t.Fatalf("login email = %q", got.User.Email)
	}
	status, body, _ := e.do(t, http.MethodGet, "/auth/session", got.Session.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("session status = %d", status)
	}
	if st := decode[sessionStateResponse](t, body); st.User.Email != "thiri@example.com" {
		t.Fatalf("session email = %q", st.User.Email)
	}
}

func TestLogoutAll_RequiresBearer(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)

	if status, _, _ := e.do(t, http.MethodPost, "/auth/logout_all", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
}

func TestMe_IncludesProfile(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	s := e.signup(t, "me@example.com")

	status, body, _ := e.do(t, http.MethodGet, "/me", s.Session.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if decode[meResponse](t, body).Profile != nil {
		t.Fatalf("expected no profile yet")
	}

	if _, err := e.profiles.Create(context.Background(), s.User.ID, "Me", time.Now()); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	_, body, _ = e.do(t, http.MethodGet, "/me", s.Session.AccessToken, nil)
	got := decode[meResponse](t, body)
	if got.Profile == nil || got.Profile.Name != "Me" {
		t.Fatalf("profile = %+v", got.Profile)
	}
}

func TestAudit_RecordsLoginFlow(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, nil)
	e.signup(t, "audit@example.com")
	e.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "audit@example.com", Password: "wrong password"})
	e.login(t, "audit@example.com")

	want := []string{actionSignup, actionLoginFailed, actionLoginSuccess}
	got := e.audit.Actions()
	if len(got) != len(want) {
		t.Fatalf("actions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("actions = %v, want %v", got, want)
		}
	}
}
