package main

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hearth/cmd/internal/app"
	"hearth/cmd/internal/chat"
	"hearth/cmd/security/password"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct{}

func (echo) Complete(_ context.Context, msgs []chat.Message) (string, error) {
	return "echo: " + msgs[len(msgs)-1].Content, nil
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	l := envconfig.MapLookuper(map[string]string{
		"HEARTH_DEV_EPHEMERAL_KEYS":   "true",
		"HEARTH_HTTP_RATE_PER_MINUTE": "0",
		"HEARTH_METRICS_ENABLED":      "false",
		"HEARTH_CHAT_OPENAI_API_KEY":  "sk-test",
	})
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

type cli struct {
	t       *testing.T
	env     envconfig.Lookuper
	pw      string
	lastOut string
}

func newCLI(t *testing.T, serverURL, tokenFile string) *cli {
	return &cli{t: t, pw: "correct horse battery", env: envconfig.MapLookuper(map[string]string{
		"HEARTH_SERVER_URL": serverURL,
		"HEARTH_TOKEN_FILE": tokenFile,
	})}
}

func (c *cli) run(args ...string) error {
	c.t.Helper()
	var out, errOut bytes.Buffer
	tty := &stdio{
		in:       bufio.NewReader(strings.NewReader("")),
		out:      &out,
		errOut:   &errOut,
		password: func(string) (string, error) { return c.pw, nil },
	}
	cmd := newRootCommand(tty, c.env)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	c.lastOut = out.String()
	return err
}

func TestCLI_SessionLifecycle(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	tokenFile := filepath.Join(t.TempDir(), "session.json")
	c := newCLI(t, srv.URL, tokenFile)

	require.NoError(t, c.run("signup", "--email", "Hnin@Example.com", "--name", "Hnin"))
	assert.Contains(t, c.lastOut, "Account created for hnin@example.com")

	require.NoError(t, c.run("whoami"))
	assert.True(t, strings.HasPrefix(c.lastOut, "Hnin <hnin@example.com"), c.lastOut)

	require.NoError(t, c.run("chat", "what's", "for", "dinner?"))
	assert.Equal(t, "echo: what's for dinner?\n", c.lastOut)

	require.NoError(t, c.run("signout"))
	assert.Equal(t, "Signed out (local)\n", c.lastOut)
	_, err := os.Stat(tokenFile)
	assert.True(t, os.IsNotExist(err), "token file should be removed")

	require.NoError(t, c.run("whoami"))
	assert.Equal(t, "Not signed in\n", c.lastOut)

	require.NoError(t, c.run("signin", "--email", "hnin@example.com"))
	assert.Equal(t, "Signed in as hnin@example.com\n", c.lastOut)
}

func TestCLI_Errors(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	c := newCLI(t, srv.URL, filepath.Join(t.TempDir(), "session.json"))

	err := c.run("chat", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")

	require.NoError(t, c.run("signup", "--email", "a@example.com", "--name", "A"))
	require.NoError(t, c.run("signout"))

	c.pw = "wrong password entirely"
	require.Error(t, c.run("signin", "--email", "a@example.com"))

	require.Error(t, c.run("signin"), "--email is required")
	require.Error(t, c.run("--server", "ftp://nope", "whoami"))
}

func TestCLI_GlobalSignOut(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	dir := t.TempDir()
	laptop := newCLI(t, srv.URL, filepath.Join(dir, "laptop.json"))
	phone := newCLI(t, srv.URL, filepath.Join(dir, "phone.json"))

	require.NoError(t, laptop.run("signup", "--email", "g@example.com", "--name", "G"))
	require.NoError(t, phone.run("signin", "--email", "g@example.com"))

	require.NoError(t, laptop.run("signout", "--global"))
	assert.Equal(t, "Signed out (global)\n", laptop.lastOut)

	require.NoError(t, phone.run("whoami"))
	assert.Equal(t, "Not signed in\n", phone.lastOut)
}

func TestStdioLine(t *testing.T) {
	t.Parallel()

	s := &stdio{in: bufio.NewReader(strings.NewReader("secret\r\nnext\n"))}
	got, err := s.line()
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	s = &stdio{in: bufio.NewReader(strings.NewReader("tail"))}
	got, err = s.line()
	require.NoError(t, err)
	assert.Equal(t, "tail", got)

	s = &stdio{in: bufio.NewReader(strings.NewReader(""))}
	_, err = s.line()
	require.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, logLevel("debug"))
	assert.Equal(t, slog.LevelError, logLevel(" ERROR "))
	assert.Equal(t, slog.LevelWarn, logLevel("loud"))
}
