package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config tunes token lifetimes and carries the signing key.
type Config struct {
	Issuer   string `env:"HEARTH_AUTH_ISSUER, default=hearth"`
	Audience string `env:"HEARTH_AUTH_AUDIENCE, default=hearth.app"`

	AccessTokenTTL     time.Duration `env:"HEARTH_AUTH_ACCESS_TTL, default=15m"`
	RefreshTTL         time.Duration `env:"HEARTH_AUTH_REFRESH_TTL, default=168h"`
	RefreshTTLRemember time.Duration `env:"HEARTH_AUTH_REFRESH_TTL_REMEMBER, default=720h"`
	ProvisioningTTL    time.Duration `env:"HEARTH_AUTH_PROVISIONING_TTL, default=15m"`
	ClockSkew          time.Duration `env:"HEARTH_AUTH_CLOCK_SKEW, default=30s"`

	// RefreshTokenBytes is the entropy of an opaque refresh token.
	RefreshTokenBytes int `env:"HEARTH_AUTH_REFRESH_TOKEN_BYTES, default=32"`

	// PasetoV4SecretKeyHex is the hex Ed25519 secret key signing every token.
	PasetoV4SecretKeyHex string `env:"HEARTH_PASETO_V4_SECRET_KEY_HEX"`
}

// DefaultConfig mirrors the env defaults. The signing key is left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:             "hearth",
		Audience:           "hearth.app",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		RefreshTTLRemember: 30 * 24 * time.Hour,
		ProvisioningTTL:    15 * time.Minute,
		ClockSkew:          30 * time.Second,
		RefreshTokenBytes:  32,
	}
}

// LoadConfig reads the session config through l, or the process environment
// when l is nil.
func LoadConfig(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.PasetoV4SecretKeyHex) == "":
		return fmt.Errorf("%w: HEARTH_PASETO_V4_SECRET_KEY_HEX is required", ErrConfig)
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: empty issuer", ErrConfig)
	case c.AccessTokenTTL <= 0, c.RefreshTTL <= 0, c.RefreshTTLRemember <= 0, c.ProvisioningTTL <= 0:
		return fmt.Errorf("%w: token lifetimes must be positive", ErrConfig)
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return fmt.Errorf("%w: clock skew %s out of range", ErrConfig, c.ClockSkew)
	case c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 64:
		return fmt.Errorf("%w: refresh token bytes %d out of range [32..64]", ErrConfig, c.RefreshTokenBytes)
	case c.RefreshTTLRemember < c.RefreshTTL:
		return fmt.Errorf("%w: remember-me refresh ttl shorter than the default", ErrConfig)
	case c.AccessTokenTTL >= c.RefreshTTL:
		return fmt.Errorf("%w: access ttl must be shorter than refresh ttl", ErrConfig)
	}
	return nil
}
