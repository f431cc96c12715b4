package app

import (
	"errors"
	"fmt"

	"hearth/cmd/security/token"
)

// tokenHasher builds the refresh-token hasher and enforces the HMAC policy at
// startup.
func tokenHasher(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: HEARTH_REQUIRE_TOKEN_HMAC=true but HEARTH_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: HEARTH_TOKEN_HMAC_KEY is too short: %w", err)
	case err != nil:
		return token.Hasher{}, err
	}
	if cfg.RequireTokenHMAC && !h.Keyed() {
		return token.Hasher{}, errors.New("security policy: HEARTH_REQUIRE_TOKEN_HMAC=true but token hasher is not keyed")
	}
	return h, nil
}
