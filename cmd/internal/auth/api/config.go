package authapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

var ErrConfig = errors.New("invalid auth api config")

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool  `env:"HEARTH_AUTH_TRUST_PROXY, default=false"`
	MaxBodyBytes int64 `env:"HEARTH_AUTH_MAX_BODY_BYTES, default=1048576"`

	// SignupAutoSession signs a new account in. When off, signup returns only
	// the user and a provisioning token.
	SignupAutoSession bool `env:"HEARTH_AUTH_SIGNUP_AUTO_SESSION, default=true"`

	LoginIPMax    int           `env:"HEARTH_AUTH_LOGIN_IP_MAX, default=20"`
	LoginIPWindow time.Duration `env:"HEARTH_AUTH_LOGIN_IP_WINDOW, default=5m"`

	LockoutShortThreshold  int           `env:"HEARTH_AUTH_LOGIN_LOCKOUT_SHORT_THRESHOLD, default=5"`
	LockoutShortDuration   time.Duration `env:"HEARTH_AUTH_LOGIN_LOCKOUT_SHORT_DURATION, default=5m"`
	LockoutLongThreshold   int           `env:"HEARTH_AUTH_LOGIN_LOCKOUT_LONG_THRESHOLD, default=10"`
	LockoutLongDuration    time.Duration `env:"HEARTH_AUTH_LOGIN_LOCKOUT_LONG_DURATION, default=30m"`
	LockoutSevereThreshold int           `env:"HEARTH_AUTH_LOGIN_LOCKOUT_SEVERE_THRESHOLD, default=20"`
	LockoutSevereDuration  time.Duration `env:"HEARTH_AUTH_LOGIN_LOCKOUT_SEVERE_DURATION, default=2h"`
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:           1 << 20,
		SignupAutoSession:      true,
		LoginIPMax:             20,
		LoginIPWindow:          5 * time.Minute,
		LockoutShortThreshold:  5,
		LockoutShortDuration:   5 * time.Minute,
		LockoutLongThreshold:   10,
		LockoutLongDuration:    30 * time.Minute,
		LockoutSevereThreshold: 20,
		LockoutSevereDuration:  2 * time.Hour,
	}
}

// LoadConfig reads HEARTH_AUTH_* through l, or the process environment when l is nil.
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
	case c.MaxBodyBytes <= 0 || c.MaxBodyBytes > 16<<20:
		return fmt.Errorf("%w: max body bytes %d out of range", ErrConfig, c.MaxBodyBytes)
	case c.LoginIPMax < 0, c.LockoutShortThreshold < 0, c.LockoutLongThreshold < 0, c.LockoutSevereThreshold < 0:
		return fmt.Errorf("%w: thresholds must not be negative", ErrConfig)
	case c.LoginIPMax > 0 && c.LoginIPWindow <= 0:
		return fmt.Errorf("%w: login ip window must be positive", ErrConfig)
	}
	for _, t := range c.lockoutTiers() {
		if t.Duration <= 0 {
			return fmt.Errorf("%w: lockout at %d failures needs a positive duration", ErrConfig, t.Threshold)
		}
	}
	return nil
}

// lockoutTiers returns the enabled tiers, most severe first.
func (c Config) lockoutTiers() []lockoutTier {
	all := []lockoutTier{
		{Threshold: c.LockoutSevereThreshold, Duration: c.LockoutSevereDuration},
		{Threshold: c.LockoutLongThreshold, Duration: c.LockoutLongDuration},
		{Threshold: c.LockoutShortThreshold, Duration: c.LockoutShortDuration},
	}
	out := all[:0]
	for _, t := range all {
		if t.Threshold > 0 {
			out = append(out, t)
		}
	}
	return out
}

// lockoutWindow is how far back failures can still hold a lockout.
func (c Config) lockoutWindow() time.Duration {
	var w time.Duration
	for _, t := range c.lockoutTiers() {
		w = max(w, t.Duration)
	}
	return w
}
