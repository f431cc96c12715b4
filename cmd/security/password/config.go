package password

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sethvargo/go-envconfig"
)

// Argon2idParams controls hashing cost. MemoryKiB is in KiB, as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"HEARTH_ARGON2_MEMORY_KIB, overwrite"`
	Iterations  uint32 `env:"HEARTH_ARGON2_ITERATIONS, overwrite"`
	Parallelism uint8  `env:"HEARTH_ARGON2_PARALLELISM, overwrite"`
	SaltLength  uint32 `env:"HEARTH_ARGON2_SALT_LEN, overwrite"`
	KeyLength   uint32 `env:"HEARTH_ARGON2_KEY_LEN, overwrite"`
}

// Policy bounds acceptable passwords.
type Policy struct {
	MinLength      int  `env:"HEARTH_PASSWORD_MIN_LEN, overwrite"`
	MaxLength      int  `env:"HEARTH_PASSWORD_MAX_LEN, overwrite"`
	RejectVeryWeak bool `env:"HEARTH_PASSWORD_REJECT_VERY_WEAK, overwrite"`
}

type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig is tuned for interactive logins on small hosts.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

// FromEnv overlays HEARTH_PASSWORD_* and HEARTH_ARGON2_* variables on DefaultConfig.
func FromEnv(ctx context.Context) (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates ranges. FromEnv calls it; callers building a Config by hand should too.
func (c Config) Check() error {
	switch {
	case c.Policy.MinLength < 1 || c.Policy.MinLength > 1024:
		return fmt.Errorf("%w: min length %d out of range [1..1024]", ErrConfig, c.Policy.MinLength)
	case c.Policy.MaxLength < 1 || c.Policy.MaxLength > 4096:
		return fmt.Errorf("%w: max length %d out of range [1..4096]", ErrConfig, c.Policy.MaxLength)
	case c.Policy.MinLength > c.Policy.MaxLength:
		return fmt.Errorf("%w: min length %d > max length %d", ErrConfig, c.Policy.MinLength, c.Policy.MaxLength)
	case c.Params.MemoryKiB < 8*1024 || c.Params.MemoryKiB > 1024*1024:
		return fmt.Errorf("%w: argon2 memory %d KiB out of range", ErrConfig, c.Params.MemoryKiB)
	case c.Params.Iterations < 1 || c.Params.Iterations > 20:
		return fmt.Errorf("%w: argon2 iterations %d out of range [1..20]", ErrConfig, c.Params.Iterations)
	case c.Params.Parallelism < 1 || c.Params.Parallelism > 64:
		return fmt.Errorf("%w: argon2 parallelism %d out of range [1..64]", ErrConfig, c.Params.Parallelism)
	case c.Params.SaltLength < 8 || c.Params.SaltLength > 64:
		return fmt.Errorf("%w: argon2 salt length %d out of range [8..64]", ErrConfig, c.Params.SaltLength)
	case c.Params.KeyLength < 16 || c.Params.KeyLength > 64:
		return fmt.Errorf("%w: argon2 key length %d out of range [16..64]", ErrConfig, c.Params.KeyLength)
	}
	return nil
}
