package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

var ErrConfig = errors.New("invalid chat config")

const DefaultSystemPrompt = "You are a helpful assistant that responds in Myanmar language (Burmese). " +
	"Always respond in Myanmar language regardless of the input language."

// Config is the upstream completion API and the per-user limits. An empty
// APIKey leaves the proxy mounted but answering 500.
type Config struct {
	APIKey       string        `env:"HEARTH_CHAT_OPENAI_API_KEY"`
	BaseURL      string        `env:"HEARTH_CHAT_OPENAI_BASE_URL, default=https://api.openai.com"`
	Model        string        `env:"HEARTH_CHAT_MODEL, default=gpt-3.5-turbo"`
	SystemPrompt string        `env:"HEARTH_CHAT_SYSTEM_PROMPT"`
	Timeout      time.Duration `env:"HEARTH_CHAT_TIMEOUT, default=30s"`

	MaxMessageRunes int     `env:"HEARTH_CHAT_MAX_MESSAGE_RUNES, default=4000"`
	RatePerMinute   float64 `env:"HEARTH_CHAT_RATE_PER_MINUTE, default=10"`
	Burst           int     `env:"HEARTH_CHAT_BURST, default=5"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://api.openai.com",
		Model:           "gpt-3.5-turbo",
		SystemPrompt:    DefaultSystemPrompt,
		Timeout:         30 * time.Second,
		MaxMessageRunes: 4000,
		RatePerMinute:   10,
		Burst:           5,
	}
}

func LoadConfig(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		return fmt.Errorf("%w: base url %q", ErrConfig, c.BaseURL)
	case strings.TrimSpace(c.Model) == "":
		return fmt.Errorf("%w: model is required", ErrConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrConfig)
	case c.MaxMessageRunes <= 0:
		return fmt.Errorf("%w: max message runes must be positive", ErrConfig)
	case c.RatePerMinute <= 0 || c.Burst <= 0:
		return fmt.Errorf("%w: rate and burst must be positive", ErrConfig)
	}
	return nil
}

// Configured reports whether an upstream key is present.
func (c Config) Configured() bool { return strings.TrimSpace(c.APIKey) != "" }
