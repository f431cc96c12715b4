package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

var ErrConfig = errors.New("invalid storage config")

// Config points at an S3-compatible endpoint. Storage is disabled when
// Endpoint is empty.
type Config struct {
	Endpoint        string        `env:"HEARTH_STORAGE_ENDPOINT"`
	Region          string        `env:"HEARTH_STORAGE_REGION, default=us-east-1"`
	AccessKeyID     string        `env:"HEARTH_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"HEARTH_STORAGE_SECRET_ACCESS_KEY"`
	Bucket          string        `env:"HEARTH_STORAGE_BUCKET, default=recipe-images"`
	PublicBaseURL   string        `env:"HEARTH_STORAGE_PUBLIC_BASE_URL"`
	PathStyle       bool          `env:"HEARTH_STORAGE_PATH_STYLE, default=true"`
	PresignTTL      time.Duration `env:"HEARTH_STORAGE_PRESIGN_TTL, default=15m"`
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Endpoint) != "" }

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

// Validate checks a configured endpoint. A disabled Config is always valid.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, err := parseBaseURL(c.Endpoint); err != nil {
		return fmt.Errorf("%w: endpoint: %v", ErrConfig, err)
	}
	if c.PublicBaseURL != "" {
		if _, err := parseBaseURL(c.PublicBaseURL); err != nil {
			return fmt.Errorf("%w: public base url: %v", ErrConfig, err)
		}
	}
	switch {
	case c.AccessKeyID == "" || c.SecretAccessKey == "":
		return fmt.Errorf("%w: access key id and secret are required", ErrConfig)
	case strings.TrimSpace(c.Bucket) == "":
		return fmt.Errorf("%w: bucket is required", ErrConfig)
	case c.PresignTTL < time.Minute || c.PresignTTL > 7*24*time.Hour:
		return fmt.Errorf("%w: presign ttl %s out of range", ErrConfig, c.PresignTTL)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q is not http(s)", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}
