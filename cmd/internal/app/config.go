package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

var ErrConfig = errors.New("invalid app config")

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config is the server runtime configuration. Feature packages load their
// own HEARTH_* sections.
type Config struct {
	HTTPAddr  string `env:"HEARTH_HTTP_ADDR, default=0.0.0.0:8080"`
	LogLevel  string `env:"HEARTH_LOG_LEVEL, default=info"`
	LogFormat string `env:"HEARTH_LOG_FORMAT, default=json"`

	ReadHeaderTimeout time.Duration `env:"HEARTH_HTTP_READ_HEADER_TIMEOUT, default=5s"`
	ReadTimeout       time.Duration `env:"HEARTH_HTTP_READ_TIMEOUT, default=15s"`
	WriteTimeout      time.Duration `env:"HEARTH_HTTP_WRITE_TIMEOUT, default=60s"`
	IdleTimeout       time.Duration `env:"HEARTH_HTTP_IDLE_TIMEOUT, default=60s"`
	ShutdownTimeout   time.Duration `env:"HEARTH_HTTP_SHUTDOWN_TIMEOUT, default=10s"`
	MaxHeaderBytes    int           `env:"HEARTH_HTTP_MAX_HEADER_BYTES, default=1048576"`

	// RatePerMinute caps requests per client IP. Zero disables the limit.
	RatePerMinute int `env:"HEARTH_HTTP_RATE_PER_MINUTE, default=600"`

	CORSAllowedOrigins   []string `env:"HEARTH_CORS_ALLOWED_ORIGINS, default=http://localhost:5173"`
	CORSAllowCredentials bool     `env:"HEARTH_CORS_ALLOW_CREDENTIALS, default=false"`
	CORSMaxAge           int      `env:"HEARTH_CORS_MAX_AGE_SECONDS, default=600"`

	// DatabaseURL empty means every store runs in memory.
	DatabaseURL string `env:"HEARTH_DATABASE_URL"`
	DBSchema    string `env:"HEARTH_DB_SCHEMA, default=hearth"`
	DBMaxConns  int32  `env:"HEARTH_DB_MAX_CONNS, default=10"`
	DBMinConns  int32  `env:"HEARTH_DB_MIN_CONNS, default=0"`
	DBMigrate   bool   `env:"HEARTH_DB_MIGRATE, default=true"`

	// ReadinessRequireDB makes /readyz fail in memory mode.
	ReadinessRequireDB bool `env:"HEARTH_READINESS_REQUIRE_DB, default=false"`
	RequireTokenHMAC   bool `env:"HEARTH_REQUIRE_TOKEN_HMAC, default=false"`

	// DevEphemeralKeys signs tokens with a key generated at start when no
	// PASETO key is configured. Tokens die with the process.
	DevEphemeralKeys bool `env:"HEARTH_DEV_EPHEMERAL_KEYS, default=false"`

	MetricsEnabled  bool   `env:"HEARTH_METRICS_ENABLED, default=true"`
	OTelEndpoint    string `env:"HEARTH_OTEL_ENDPOINT"`
	OTelServiceName string `env:"HEARTH_OTEL_SERVICE_NAME, default=hearth"`
}

// LoadConfig reads Config through l, or the process environment when l is nil.
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
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty":
	default:
		return fmt.Errorf("%w: log format %q, want json or pretty", ErrConfig, c.LogFormat)
	}
	switch {
	case strings.TrimSpace(c.HTTPAddr) == "":
		return fmt.Errorf("%w: empty http addr", ErrConfig)
	case c.ReadHeaderTimeout <= 0, c.ReadTimeout <= 0, c.WriteTimeout <= 0, c.IdleTimeout <= 0, c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: http timeouts must be positive", ErrConfig)
	case c.MaxHeaderBytes < 4096:
		return fmt.Errorf("%w: max header bytes %d too small", ErrConfig, c.MaxHeaderBytes)
	case c.RatePerMinute < 0:
		return fmt.Errorf("%w: rate per minute must not be negative", ErrConfig)
	case c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns:
		return fmt.Errorf("%w: db pool bounds %d..%d", ErrConfig, c.DBMinConns, c.DBMaxConns)
	case !schemaRe.MatchString(c.DBSchema):
		return fmt.Errorf("%w: db schema %q", ErrConfig, c.DBSchema)
	}
	if c.OTelEndpoint != "" {
		u, err := url.Parse(c.OTelEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: otel endpoint %q", ErrConfig, c.OTelEndpoint)
		}
	}
	return nil
}

func (c Config) memoryMode() bool { return strings.TrimSpace(c.DatabaseURL) == "" }
