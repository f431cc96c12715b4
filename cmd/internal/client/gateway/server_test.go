package gateway_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"hearth/cmd/internal/app"
	"hearth/cmd/internal/chat"
	"hearth/cmd/security/password"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
)

type echo struct{}

func (echo) Complete(_ context.Context, msgs []chat.Message) (string, error) {
	return "echo: " + msgs[len(msgs)-1].Content, nil
}

// startServer runs a memory-mode hearth server.
func startServer(t *testing.T, env map[string]string) *httptest.Server {
	t.Helper()
	vars := map[string]string{
		"HEARTH_DEV_EPHEMERAL_KEYS":   "true",
		"HEARTH_HTTP_RATE_PER_MINUTE": "0",
		"HEARTH_METRICS_ENABLED":      "false",
		"HEARTH_CHAT_OPENAI_API_KEY":  "sk-test",
	}
	for k, v := range env {
		vars[k] = v
	}
	l := envconfig.MapLookuper(vars)

	cfg, err := app.LoadConfig(context.Background(), l)
	require.NoError(t, err)

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB, pw.Params.Iterations, pw.Params.Parallelism = 8*1024, 1, 1

	a, err := app.New(context.Background(), cfg, slog.New(slog.DiscardHandler),
		app.WithLookuper(l), app.WithPasswordConfig(pw), app.WithChatCompleter(echo{}))
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close(context.Background())
	})
	return srv
}
