package password

import (
	"strings"
	"testing"
)

// fastConfig keeps hashing cheap in tests.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("family dinner on sunday")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", h)
	}

	ok, err := cfg.Verify(h, "family dinner on sunday")
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true, nil", ok, err)
	}

	ok, err = cfg.Verify(h, "family dinner on monday")
	if err != nil || ok {
		t.Fatalf("Verify wrong password = %v, %v; want false, nil", ok, err)
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	cfg := fastConfig()
	a, _ := cfg.Hash("same password here")
	b, _ := cfg.Hash("same password here")
	if a == b {
		t.Fatalf("two hashes of the same password are equal")
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := fastConfig()
	for _, h := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := cfg.Verify(h, "whatever")
		if err != ErrInvalidHash || ok {
			t.Fatalf("Verify(%q) = %v, %v; want false, ErrInvalidHash", h, ok, err)
		}
	}
}

func TestVerify_RejectsCostlierHash(t *testing.T) {
	strong := fastConfig()
	strong.Params.Iterations = 5
	h, err := strong.Hash("a perfectly fine password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	weak := fastConfig()
	if _, err := weak.Verify(h, "a perfectly fine password"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := fastConfig()
	cfg.Policy.MinLength = 8
	cfg.Policy.MaxLength = 24

	tests := []struct {
		pw   string
		want error
	}{
		{"short", ErrPasswordTooShort},
		{"this password is definitely too long", ErrPasswordTooLong},
		{"password", ErrWeakPassword},
		{"aaaaaaaaaa", ErrWeakPassword},
		{"12345678901", ErrWeakPassword},
		{"mohinga-for-breakfast", nil},
		{"မုန့်ဟင်းခါးစားမယ်", nil},
	}
	for _, tt := range tests {
		if err := cfg.Validate(tt.pw); err != tt.want {
			t.Fatalf("Validate(%q) = %v, want %v", tt.pw, err, tt.want)
		}
	}
}

func TestIsPolicy(t *testing.T) {
	if !IsPolicy(ErrPasswordTooShort) || !IsPolicy(ErrWeakPassword) {
		t.Fatalf("policy errors not recognized")
	}
	if IsPolicy(ErrInvalidHash) {
		t.Fatalf("ErrInvalidHash is not a policy error")
	}
}

func BenchmarkHash_DefaultConfig(b *testing.B) {
	cfg := DefaultConfig()
	for b.Loop() {
		if _, err := cfg.Hash("this is a strong password 123!"); err != nil {
			b.Fatalf("Hash error: %v", err)
		}
	}
}
