package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

var ErrConfig = errors.New("invalid events config")

type Config struct {
	// Native clients send no Origin; browsers are held to AllowedOrigins.
	OriginRequired bool     `env:"HEARTH_WS_ORIGIN_REQUIRED, default=false"`
	AllowedOrigins []string `env:"HEARTH_WS_ALLOWED_ORIGINS, default=http://localhost,http://127.0.0.1"`
	DevInsecure    bool     `env:"HEARTH_WS_DEV_INSECURE, default=false"`

	HelloTimeout      time.Duration `env:"HEARTH_WS_HELLO_TIMEOUT, default=10s"`
	WriteTimeout      time.Duration `env:"HEARTH_WS_WRITE_TIMEOUT, default=5s"`
	HeartbeatInterval time.Duration `env:"HEARTH_WS_HEARTBEAT_INTERVAL, default=25s"`
	HeartbeatTimeout  time.Duration `env:"HEARTH_WS_HEARTBEAT_TIMEOUT, default=5s"`

	SendQueue int     `env:"HEARTH_WS_SEND_QUEUE, default=16"`
	ReadLimit int64   `env:"HEARTH_WS_READ_LIMIT, default=8192"`
	RateLimit float64 `env:"HEARTH_WS_RATE_PER_SEC, default=2"`
	RateBurst int     `env:"HEARTH_WS_RATE_BURST, default=10"`
}

func DefaultConfig() Config {
	return Config{
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		HelloTimeout:      10 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		SendQueue:         16,
		ReadLimit:         8 << 10,
		RateLimit:         2,
		RateBurst:         10,
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
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.HelloTimeout <= 0, c.WriteTimeout <= 0, c.HeartbeatInterval <= 0, c.HeartbeatTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrConfig)
	case c.HeartbeatTimeout >= c.HeartbeatInterval:
		return fmt.Errorf("%w: heartbeat timeout must be shorter than the interval", ErrConfig)
	case c.SendQueue < 1 || c.SendQueue > 1024:
		return fmt.Errorf("%w: send queue %d out of range [1..1024]", ErrConfig, c.SendQueue)
	case c.ReadLimit < 512:
		return fmt.Errorf("%w: read limit %d too small", ErrConfig, c.ReadLimit)
	case c.RateLimit <= 0 || c.RateBurst < 1:
		return fmt.Errorf("%w: rate limit must be positive", ErrConfig)
	}
	return nil
}
