package session

import (
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestManager(t *testing.T) (AccessTokenManager, Config) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	return mgr, cfg
}

func TestPasetoV4_IssueAndVerify(t *testing.T) {
	t.Parallel()
	mgr, cfg := newTestManager(t)

	now := time.Now().UTC()
	tok, exp, err := mgr.Issue("01HZZZZZZZZZZZZZZZZZZZZZZZ", "01HYYYYYYYYYYYYYYYYYYYYYYY", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(cfg.AccessTokenTTL)) {
		t.Fatalf("exp = %s", exp)
	}

	claims, err := mgr.Verify(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "01HZZZZZZZZZZZZZZZZZZZZZZZ" || claims.SessionID != "01HYYYYYYYYYYYYYYYYYYYYYYY" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "hearth" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestPasetoV4_Expired(t *testing.T) {
	t.Parallel()
	mgr, cfg := newTestManager(t)

	now := time.Now().UTC()
	tok, _, err := mgr.Issue("u", "s", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mgr.Verify(tok, now.Add(cfg.AccessTokenTTL+time.Minute)); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPasetoV4_OtherKeyRejected(t *testing.T) {
	t.Parallel()
	a, _ := newTestManager(t)
	b, _ := newTestManager(t)

	now := time.Now().UTC()
	tok, _, _ := a.Issue("u", "s", now)
	if _, err := b.Verify(tok, now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPasetoV4_TokenKindsDoNotCross(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t)
	now := time.Now().UTC()

	prov, _, err := mgr.IssueProvisioning("u1", now)
	if err != nil {
		t.Fatalf("IssueProvisioning: %v", err)
	}
	access, _, err := mgr.Issue("u1", "s1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := mgr.Verify(prov, now); err != ErrInvalidToken {
		t.Fatalf("provisioning token accepted as access token: %v", err)
	}
	if _, err := mgr.VerifyProvisioning(access, now); err != ErrInvalidToken {
		t.Fatalf("access token accepted as provisioning token: %v", err)
	}

	claims, err := mgr.VerifyProvisioning(prov, now)
	if err != nil {
		t.Fatalf("VerifyProvisioning: %v", err)
	}
	if claims.UserID != "u1" || claims.Scope != ScopeProfileProvision {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestPasetoV4_RejectsEmptyIDs(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t)
	now := time.Now()
	if _, _, err := mgr.Issue("", "s", now); err == nil {
		t.Fatalf("expected error for empty user id")
	}
	if _, _, err := mgr.IssueProvisioning("", now); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}
