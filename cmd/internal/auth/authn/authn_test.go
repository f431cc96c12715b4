package authn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hearth/cmd/internal/auth/session"
)

type fakeValidator struct {
	access map[string]session.Row
	prov   map[string]string
	fail   error
}

func (f fakeValidator) ValidateAccessToken(_ context.Context, tok string, _ time.Time) (session.AccessClaims, session.Row, error) {
	if f.fail != nil {
		return session.AccessClaims{}, session.Row{}, f.fail
	}
	row, ok := f.access[tok]
	if !ok {
		return session.AccessClaims{}, session.Row{}, session.ErrInvalidToken
	}
	if row.RevokedAt != nil {
		return session.AccessClaims{}, session.Row{}, session.ErrSessionRevoked
	}
	return session.AccessClaims{UserID: row.UserID, SessionID: row.ID}, row, nil
}

func (f fakeValidator) ValidateProvisioningToken(tok string, _ time.Time) (session.ProvisioningClaims, error) {
	uid, ok := f.prov[tok]
	if !ok {
		return session.ProvisioningClaims{}, session.ErrInvalidToken
	}
	return session.ProvisioningClaims{UserID: uid, Scope: session.ScopeProfileProvision}, nil
}

func newFake() fakeValidator {
	revoked := time.Now()
	return fakeValidator{
		access: map[string]session.Row{
			"acc":     {ID: "s1", UserID: "u1"},
			"revoked": {ID: "s2", UserID: "u1", RevokedAt: &revoked},
		},
		prov: map[string]string{"prov": "u9"},
	}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, auth string) (*httptest.ResponseRecorder, Principal) {
	t.Helper()
	var got Principal
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			t.Fatalf("principal missing from context")
		}
		got = p
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/rest/x", nil)
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, got
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prov     bool
		auth     string
		want     int
		wantUser string
		wantProv bool
	}{
		{"no header", false, "", http.StatusUnauthorized, "", false},
		{"wrong scheme", false, "Basic acc", http.StatusUnauthorized, "", false},
		{"access token", false, "Bearer acc", http.StatusOK, "u1", false},
		{"revoked session", true, "Bearer revoked", http.StatusUnauthorized, "", false},
		{"provisioning rejected by default", false, "Bearer prov", http.StatusUnauthorized, "", false},
		{"provisioning allowed", true, "Bearer prov", http.StatusOK, "u9", true},
		{"garbage", true, "Bearer nope", http.StatusUnauthorized, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []Option
			if tt.prov {
				opts = append(opts, AllowProvisioning())
			}
			w, p := serve(t, Middleware(newFake(), opts...), tt.auth)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if p.UserID != tt.wantUser || p.Provisioning != tt.wantProv {
				t.Fatalf("principal = %+v", p)
			}
		})
	}
}

func TestMiddleware_StoreFailureIs500(t *testing.T) {
	t.Parallel()

	f := newFake()
	f.fail = errors.New("db down")
	w, _ := serve(t, Middleware(f), "Bearer acc")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMiddleware_CustomUnauthorized(t *testing.T) {
	t.Parallel()

	mw := Middleware(newFake(), WithUnauthorized(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w, _ := serve(t, mw, "")
	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestFromContext_Empty(t *testing.T) {
	t.Parallel()

	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected no principal")
	}
}
