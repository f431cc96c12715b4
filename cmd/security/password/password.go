package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// phc is a decoded Argon2id hash string.
type phc struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

var b64 = base64.RawStdEncoding

func (h phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key),
	)
}

func parsePHC(s string) (phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phc{}, ErrInvalidHash
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return phc{}, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return phc{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return phc{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return phc{}, ErrInvalidHash
	}

	return phc{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  iter,
			Parallelism: uint8(par),       // #nosec G115 -- checked <= 255 above.
			SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by the encoded string.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by the encoded string.
		},
		salt: salt,
		key:  key,
	}, nil
}

func derive(pw string, salt []byte, p Argon2idParams, keyLen uint32) []byte {
	return argon2.IDKey([]byte(pw), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

// Hash validates pw against the policy and returns its PHC string.
func (c Config) Hash(pw string) (string, error) {
	if err := c.Validate(pw); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}

	h := phc{params: c.Params, salt: salt, key: derive(pw, salt, c.Params, c.Params.KeyLength)}
	return h.String(), nil
}

// Verify reports whether pw matches encoded. A malformed hash, or one whose cost
// is more than twice the configured cost, returns ErrInvalidHash.
func (c Config) Verify(encoded, pw string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !c.acceptable(h.params) {
		return false, ErrInvalidHash
	}

	got := derive(pw, h.salt, h.params, h.params.KeyLength)
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// acceptable allows hashes made with cheaper settings and rejects far costlier ones.
func (c Config) acceptable(p Argon2idParams) bool {
	limit := c.Params
	return p.MemoryKiB <= limit.MemoryKiB*2 &&
		p.Iterations <= limit.Iterations*2 &&
		uint32(p.Parallelism) <= uint32(limit.Parallelism)*2 &&
		p.SaltLength >= 8 && p.SaltLength <= 64 &&
		p.KeyLength >= 16 && p.KeyLength <= 128
}
