package v1

import (
	"testing"
	"time"
)

func TestEnvelope_Validate(t *testing.T) {
	t.Parallel()
	ok, err := New(TypeHello, "1", time.Now(), HelloPayload{Token: "t"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	tests := []Envelope{
		{Type: TypeHello},
		{V: "v2", Type: TypeHello},
		{V: Version},
		{V: Version, Type: "conversation.join"},
	}
	for _, env := range tests {
		if err := env.Validate(); err == nil {
			t.Fatalf("Validate(%+v) accepted", env)
		}
	}
}

func TestSessionRevokedPayload_Covers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		p    SessionRevokedPayload
		user string
		sess string
		want bool
	}{
		{"global same user", SessionRevokedPayload{UserID: "u1", Scope: ScopeGlobal}, "u1", "s1", true},
		{"global other user", SessionRevokedPayload{UserID: "u2", Scope: ScopeGlobal}, "u1", "s1", false},
		{"local same session", SessionRevokedPayload{UserID: "u1", SessionID: "s1", Scope: ScopeLocal}, "u1", "s1", true},
		{"local other session", SessionRevokedPayload{UserID: "u1", SessionID: "s2", Scope: ScopeLocal}, "u1", "s1", false},
		{"unknown scope", SessionRevokedPayload{UserID: "u1", SessionID: "s1", Scope: "device"}, "u1", "s1", false},
	}
	for _, tt := range tests {
		if got := tt.p.Covers(tt.user, tt.sess); got != tt.want {
			t.Fatalf("%s: Covers = %v, want %v", tt.name, got, tt.want)
		}
	}
}
