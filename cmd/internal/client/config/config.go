// Package config holds the hearthctl client settings.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

var ErrConfig = errors.New("invalid client config")

type Config struct {
	ServerURL  string        `env:"HEARTH_SERVER_URL, default=http://127.0.0.1:8080"`
	TokenFile  string        `env:"HEARTH_TOKEN_FILE"`
	Timeout    time.Duration `env:"HEARTH_CLIENT_TIMEOUT, default=15s"`
	RememberMe bool          `env:"HEARTH_CLIENT_REMEMBER_ME, default=true"`
	LogLevel   string        `env:"HEARTH_CLIENT_LOG_LEVEL, default=warn"`
}

// Load reads Config through l, or the process environment when l is nil. An
// unset token file defaults to <user config dir>/hearth/session.json.
func Load(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if strings.TrimSpace(cfg.TokenFile) == "" {
		p, err := DefaultTokenFile()
		if err != nil {
			return Config{}, err
		}
		cfg.TokenFile = p
	}
	return cfg, cfg.Validate()
}

func DefaultTokenFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: no user config dir: %v", ErrConfig, err)
	}
	return filepath.Join(dir, "hearth", "session.json"), nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: server url %q", ErrConfig, c.ServerURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrConfig)
	}
	if strings.TrimSpace(c.TokenFile) == "" {
		return fmt.Errorf("%w: empty token file", ErrConfig)
	}
	return nil
}
