package gateway

import (
	"context"
	"net/http"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat sends one message to the household assistant and returns its reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	var out chatResponse
	if err := c.authed(ctx, http.MethodPost, "/functions/v1/chat", chatRequest{Message: message}, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}
