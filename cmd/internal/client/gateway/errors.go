package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"hearth/cmd/internal/client/session"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("hearth: %d %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("hearth: %d %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("hearth: %d %s", e.Status, http.StatusText(e.Status))
	}
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

// parseAPIError accepts both {"error":{"code","message"}} and the flat
// {"error":"message"} used by the chat function.
func parseAPIError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &env) != nil || len(env.Error) == 0 {
		e.Message = strings.TrimSpace(string(raw))
		if len(e.Message) > 200 {
			e.Message = e.Message[:200]
		}
		return e
	}
	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(env.Error, &detail) == nil {
		e.Code, e.Message = detail.Code, detail.Message
		return e
	}
	_ = json.Unmarshal(env.Error, &e.Message)
	return e
}

// authError wraps err for the client core. Server classifications are kept in
// Code, Reason and Status.
func authError(op string, err error) error {
	if err == nil {
		return nil
	}
	ae := &session.AuthError{Op: op, Err: err}
	var api *APIError
	if errors.As(err, &api) {
		ae.Code, ae.Reason, ae.Status = api.Code, api.Message, api.Status
	}
	return ae
}
