// Package v1 is the wire contract of the hearth session-events websocket.
//
// It is shared by the server gateway and the client watcher and depends on
// nothing outside the standard library.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated on the websocket upgrade.
const Subprotocol = "hearth.events.v1"

const (
	// TypeHello authenticates the connection (client -> server).
	TypeHello = "hello"
	// TypeHelloAck confirms the bound user and session (server -> client).
	TypeHelloAck = "hello.ack"
	// TypeSessionRevoked reports ended sessions of the bound user (server -> client).
	TypeSessionRevoked = "session.revoked"
	TypeError          = "error"
)

// Revocation scopes.
const (
	ScopeLocal  = "local"
	ScopeGlobal = "global"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	switch e.Type {
	case TypeHello, TypeHelloAck, TypeSessionRevoked, TypeError:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(e.Payload, dst)
}

// New builds an envelope around payload.
func New(typ, id string, ts time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts.UTC(), Payload: raw}, nil
}

type HelloPayload struct {
	Token string `json:"token"`
}

type HelloAckPayload struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// SessionRevokedPayload names one session for ScopeLocal; SessionID is empty
// for ScopeGlobal, which covers every session of UserID.
type SessionRevokedPayload struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Scope     string `json:"scope"`
	Reason    string `json:"reason,omitempty"`
}

// Covers reports whether the revocation ends sessionID of userID.
func (p SessionRevokedPayload) Covers(userID, sessionID string) bool {
	if p.UserID != userID {
		return false
	}
	return p.Scope == ScopeGlobal || (p.Scope == ScopeLocal && p.SessionID == sessionID)
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
