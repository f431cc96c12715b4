package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey names the env var holding the HMAC secret.
	// #nosec G101 -- env var name, not a credential.
	HMACEnvKey = "HEARTH_TOKEN_HMAC_KEY"

	// MinHMACKeyBytes is the shortest key accepted when HMAC is required.
	MinHMACKeyBytes = 32
)

// Hasher hashes opaque tokens. The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns an HMAC hasher for key, or a SHA-256 hasher when key is empty.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	return Hasher{key: append([]byte(nil), key...)}
}

// HasherFromEnv builds a Hasher from HEARTH_TOKEN_HMAC_KEY.
// With requireHMAC set, a missing or short key is an error.
func HasherFromEnv(requireHMAC bool) (Hasher, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	switch {
	case raw == "" && requireHMAC:
		return Hasher{}, ErrHMACKeyMissing
	case raw == "":
		return Hasher{}, nil
	case requireHMAC && len(raw) < MinHMACKeyBytes:
		return Hasher{}, ErrHMACKeyTooShort
	}
	return NewHasher([]byte(raw)), nil
}

// Keyed reports whether h uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the 64-char hex digest of s.
func (h Hasher) Hash(s string) string {
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, h.key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Generate returns nBytes of randomness, base64url encoded without padding.
func Generate(nBytes int) (string, error) {
	if nBytes < 16 || nBytes > 128 {
		return "", ErrTokenSize
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CompareHex compares two 64-char hex digests in constant time.
// Any other length never matches.
func CompareHex(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
