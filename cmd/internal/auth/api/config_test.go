package authapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("defaults differ:\n got %+v\nwant %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("HEARTH_AUTH_SIGNUP_AUTO_SESSION", "false")
	t.Setenv("HEARTH_AUTH_LOGIN_IP_WINDOW", "90s")
	t.Setenv("HEARTH_AUTH_TRUST_PROXY", "true")

	cfg, err := LoadConfig(context.Background(), nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SignupAutoSession || !cfg.TrustProxy || cfg.LoginIPWindow != 90*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"body too large":     {"HEARTH_AUTH_MAX_BODY_BYTES": "999999999"},
		"negative threshold": {"HEARTH_AUTH_LOGIN_IP_MAX": "-1"},
		"zero lockout":       {"HEARTH_AUTH_LOGIN_LOCKOUT_SHORT_DURATION": "0s"},
		"not a duration":     {"HEARTH_AUTH_LOGIN_IP_WINDOW": "soon"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(context.Background(), envconfig.MapLookuper(env))
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
