package token

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestHasher_ZeroValueIsSHA256(t *testing.T) {
	var h Hasher
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := h.Hash("abc"); got != want {
		t.Fatalf("Hash = %s, want %s", got, want)
	}
	if h.Keyed() {
		t.Fatalf("zero hasher reports keyed")
	}
}

func TestHasher_KeyChangesDigest(t *testing.T) {
	plain := Hasher{}.Hash("token")
	keyed := NewHasher([]byte(strings.Repeat("k", 32))).Hash("token")
	if plain == keyed {
		t.Fatalf("keyed digest equals plain digest")
	}
	if len(keyed) != 64 {
		t.Fatalf("len = %d", len(keyed))
	}
}

func TestHasherFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		require bool
		wantErr error
		keyed   bool
	}{
		{name: "unset optional", key: "", require: false},
		{name: "unset required", key: "", require: true, wantErr: ErrHMACKeyMissing},
		{name: "short required", key: "short", require: true, wantErr: ErrHMACKeyTooShort},
		{name: "short optional", key: "short", require: false, keyed: true},
		{name: "long required", key: strings.Repeat("x", 40), require: true, keyed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(HMACEnvKey, tt.key)
			h, err := HasherFromEnv(tt.require)
			if err != tt.wantErr {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && h.Keyed() != tt.keyed {
				t.Fatalf("keyed = %v, want %v", h.Keyed(), tt.keyed)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	a, err := Generate(32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil || len(raw) != 32 {
		t.Fatalf("decoded %d bytes, err %v", len(raw), err)
	}
	b, _ := Generate(32)
	if a == b {
		t.Fatalf("two tokens are equal")
	}
	if _, err := Generate(4); err != ErrTokenSize {
		t.Fatalf("expected ErrTokenSize, got %v", err)
	}
}

func TestCompareHex(t *testing.T) {
	h := Hasher{}.Hash("x")
	if !CompareHex(h, h) {
		t.Fatalf("equal digests do not match")
	}
	if CompareHex(h, Hasher{}.Hash("y")) {
		t.Fatalf("different digests match")
	}
	if CompareHex("abc", "abc") {
		t.Fatalf("short inputs must never match")
	}
}
