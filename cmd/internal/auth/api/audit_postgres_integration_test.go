package authapi

import (
	"context"
	"net"
	"testing"
	"time"

	"hearth/cmd/internal/pgtest"
)

func TestPostgresAuditLog_LoginFailures(t *testing.T) {
	t.Parallel()

	pool, schema := pgtest.Open(t)
	a, err := NewPostgresAuditLog(pool, schema)
	if err != nil {
		t.Fatalf("NewPostgresAuditLog: %v", err)
	}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	ip := net.ParseIP("203.0.113.5")

	for i := range 3 {
		ev := Event{
			Action: actionLoginFailed,
			IP:     ip,
			Meta:   map[string]any{"identifier": "kyaw@example.com", "reason": "bad_password"},
			At:     now.Add(-time.Duration(i) * time.Minute),
		}
		if err := a.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := a.Record(ctx, Event{Action: actionLoginSuccess, IP: ip, At: now}); err != nil {
		t.Fatalf("Record success: %v", err)
	}

	byIP, err := a.LoginFailures(ctx, FailureQuery{IP: ip, Since: now.Add(-90 * time.Second)})
	if err != nil {
		t.Fatalf("LoginFailures by ip: %v", err)
	}
	if len(byIP) != 2 || !byIP[0].Equal(now) {
		t.Fatalf("by ip = %v", byIP)
	}

	byID, err := a.LoginFailures(ctx, FailureQuery{Identifier: "kyaw@example.com", Since: now.Add(-time.Hour), Limit: 2})
	if err != nil {
		t.Fatalf("LoginFailures by identifier: %v", err)
	}
	if len(byID) != 2 {
		t.Fatalf("by identifier = %v", byID)
	}
}

func TestNewPostgresAuditLog_RequiresPool(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresAuditLog(nil, "x"); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}
