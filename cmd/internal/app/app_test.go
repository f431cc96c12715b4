package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hearth/cmd/internal/chat"
	"hearth/cmd/security/password"

	"github.com/sethvargo/go-envconfig"
)

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, msgs []chat.Message) (string, error) {
	return "echo: " + msgs[len(msgs)-1].Content, nil
}

func cheapPasswords() password.Config {
	c := password.DefaultConfig()
	c.Params.MemoryKiB = 8 * 1024
	c.Params.Iterations = 1
	c.Params.Parallelism = 1
	return c
}

func newTestApp(t *testing.T, env map[string]string) *App {
	t.Helper()
	base := map[string]string{
		"HEARTH_DEV_EPHEMERAL_KEYS":   "true",
		"HEARTH_HTTP_RATE_PER_MINUTE": "0",
		"HEARTH_CHAT_OPENAI_API_KEY":  "sk-test",
	}
	for k, v := range env {
		base[k] = v
	}
	l := envconfig.MapLookuper(base)

	cfg, err := LoadConfig(context.Background(), l)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler),
		WithLookuper(l),
		WithPasswordConfig(cheapPasswords()),
		WithChatCompleter(echoCompleter{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func (c client) do(method, path, bearer string, body any) (int, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, out
}

func mustDecode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func TestApp_MemoryModeEndToEnd(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, nil)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	c := client{t: t, srv: srv}

	if code, _ := c.do(http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}

	code, body := c.do(http.MethodPost, "/auth/signup", "", map[string]any{
		"email": "Mya@Example.com", "password": "tea leaf salad 42",
	})
	if code != http.StatusCreated {
		t.Fatalf("signup = %d %s", code, body)
	}
	signup := mustDecode[struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
		ProvisioningToken string `json:"provisioning_token"`
	}](t, body)
	if signup.User.Email != "mya@example.com" || signup.ProvisioningToken == "" {
		t.Fatalf("signup body = %s", body)
	}

	code, body = c.do(http.MethodPost, "/rest/profiles/", signup.ProvisioningToken, map[string]any{
		"id": signup.User.ID, "name": "Mya",
	})
	if code != http.StatusCreated {
		t.Fatalf("profile create = %d %s", code, body)
	}

	// A provisioning token is not an access token.
	if code, _ := c.do(http.MethodGet, "/me", signup.ProvisioningToken, nil); code != http.StatusUnauthorized {
		t.Fatalf("me with provisioning token = %d", code)
	}

	code, body = c.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "mya@example.com", "password": "tea leaf salad 42",
	})
	if code != http.StatusOK {
		t.Fatalf("login = %d %s", code, body)
	}
	access := mustDecode[struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}](t, body).Session.AccessToken

	code, body = c.do(http.MethodGet, "/me", access, nil)
	if code != http.StatusOK || !strings.Contains(string(body), `"name":"Mya"`) {
		t.Fatalf("me = %d %s", code, body)
	}

	code, body = c.do(http.MethodPost, "/rest/home_notes/", access, map[string]any{
		"title": "Gas bill", "content": "due Friday", "category": "bills",
	})
	if code != http.StatusCreated {
		t.Fatalf("note create = %d %s", code, body)
	}
	if code, _ := c.do(http.MethodGet, "/rest/home_notes/", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("notes without token = %d", code)
	}

	code, body = c.do(http.MethodPost, "/functions/v1/chat", access, map[string]any{"message": "mingalaba"})
	if code != http.StatusOK || !strings.Contains(string(body), "echo: mingalaba") {
		t.Fatalf("chat = %d %s", code, body)
	}
	code, body = c.do(http.MethodGet, "/rest/chat_history/", access, nil)
	if code != http.StatusOK {
		t.Fatalf("chat history = %d %s", code, body)
	}
	if hist := mustDecode[[]map[string]any](t, body); len(hist) != 1 || hist[0]["message"] != "mingalaba" {
		t.Fatalf("history = %s", body)
	}

	code, body = c.do(http.MethodGet, "/metrics", "", nil)
	if code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}
	for _, want := range []string{
		`hearth_auth_outcomes_total{op="signup",result="ok"} 1`,
		`hearth_http_requests_total{class="2xx",method="GET",route="/me"} 1`,
		`hearth_chat_upstream_duration_seconds_count{result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_ChatUnauthorizedIsFlat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestApp(t, nil).Handler())
	t.Cleanup(srv.Close)

	code, body := client{t: t, srv: srv}.do(http.MethodPost, "/functions/v1/chat", "", map[string]any{"message": "hi"})
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d", code)
	}
	if got := mustDecode[map[string]string](t, body)["error"]; got != "Missing or invalid Authorization header" {
		t.Fatalf("error = %q", got)
	}
}

func TestApp_Readyz(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		env  map[string]string
		want int
	}{
		{name: "memory ok", want: http.StatusOK},
		{name: "memory with db required", env: map[string]string{"HEARTH_READINESS_REQUIRE_DB": "true"}, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			newTestApp(t, tc.env).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tc.want {
				t.Fatalf("readyz = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestApp_SecurityHeadersAndNotFound(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestApp(t, nil).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header = %q", got)
	}
	if !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("body = %s", w.Body)
	}
}

func TestNew_RequiresSigningKey(t *testing.T) {
	t.Parallel()

	l := envconfig.MapLookuper(map[string]string{})
	cfg, err := LoadConfig(context.Background(), l)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler), WithLookuper(l), WithPasswordConfig(cheapPasswords())); err == nil {
		t.Fatalf("New without a PASETO key succeeded")
	}
}
