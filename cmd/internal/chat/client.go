package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Message is one chat-completions turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer answers a conversation with the assistant's next message.
type Completer interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// UpstreamError is a non-2xx answer from the completion API.
type UpstreamError struct {
	Status int
	Type   string
	Msg    string
}

func (e *UpstreamError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("chat upstream: %d %s: %s", e.Status, e.Type, e.Msg)
	}
	return fmt.Sprintf("chat upstream: %d: %s", e.Status, e.Msg)
}

var ErrEmptyCompletion = errors.New("chat upstream: no choices")

// OpenAIClient speaks the OpenAI chat-completions protocol.
type OpenAIClient struct {
	http  *http.Client
	url   string
	key   string
	model string
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client for cfg. hc may be nil.
func NewOpenAIClient(cfg Config, hc *http.Client) *OpenAIClient {
	if hc == nil {
		hc = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &OpenAIClient{
		http:  hc,
		url:   strings.TrimRight(cfg.BaseURL, "/") + "/v1/chat/completions",
		key:   cfg.APIKey,
		model: cfg.Model,
	}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type upstreamErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

const maxUpstreamBody = 4 << 20

func (c *OpenAIClient) Complete(ctx context.Context, msgs []Message) (string, error) {
	body, err := json.Marshal(completionRequest{Model: c.model, Messages: msgs})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return "", fmt.Errorf("chat upstream: read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ue := &UpstreamError{Status: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}
		var eb upstreamErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			ue.Msg, ue.Type = eb.Error.Message, eb.Error.Type
		}
		return "", ue
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("chat upstream: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}

// timed wraps a Completer with a latency observer.
type timed struct {
	next    Completer
	observe func(d time.Duration, err error)
}

func (t timed) Complete(ctx context.Context, msgs []Message) (string, error) {
	start := time.Now()
	out, err := t.next.Complete(ctx, msgs)
	t.observe(time.Since(start), err)
	return out, err
}
