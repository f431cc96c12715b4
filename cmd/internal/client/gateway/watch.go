package gateway

import (
	"context"
	"fmt"
	"strings"

	"hearth/cmd/internal/client/session"
	v1 "hearth/shared/contracts/events/v1"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Watch holds the session-events websocket open until ctx ends or the held
// session is revoked. A revocation of this session clears the token set and
// reaches OnSessionChange listeners as ChangeSignedOut; Watch then returns nil.
func (c *Client) Watch(ctx context.Context) error {
	t := c.Tokens()
	if t.AccessToken == "" {
		return ErrNotSignedIn
	}

	conn, _, err := websocket.Dial(ctx, c.eventsURL(), &websocket.DialOptions{
		HTTPClient:   c.hc,
		Subprotocols: []string{v1.Subprotocol},
	})
	if err != nil {
		return authError("watch", err)
	}
	defer func() { _ = conn.CloseNow() }()

	hello, err := v1.New(v1.TypeHello, "", c.now(), v1.HelloPayload{Token: t.AccessToken})
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		return authError("watch", err)
	}

	ack, err := readAck(ctx, conn)
	if err != nil {
		return authError("watch", err)
	}
	c.log.Info("gateway.watch.ready", "user_id", ack.UserID, "session_id", ack.SessionID)

	for {
		var env v1.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return authError("watch", err)
		}
		if env.Validate() != nil || env.Type != v1.TypeSessionRevoked {
			c.log.Debug("gateway.watch.ignored", "type", env.Type)
			continue
		}
		var p v1.SessionRevokedPayload
		if err := env.Decode(&p); err != nil {
			c.log.Warn("gateway.watch.bad_payload", "err", err)
			continue
		}
		if !p.Covers(ack.UserID, ack.SessionID) {
			continue
		}
		c.log.Info("gateway.watch.revoked", "scope", p.Scope, "reason", p.Reason)
		if c.drop(ack.SessionID) {
			c.emit(session.ChangeEvent{Kind: session.ChangeSignedOut, Principal: t.Principal()})
		}
		_ = conn.Close(websocket.StatusNormalClosure, "session revoked")
		return nil
	}
}

func readAck(ctx context.Context, conn *websocket.Conn) (v1.HelloAckPayload, error) {
	var env v1.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		return v1.HelloAckPayload{}, err
	}
	if err := env.Validate(); err != nil {
		return v1.HelloAckPayload{}, err
	}
	switch env.Type {
	case v1.TypeHelloAck:
		var ack v1.HelloAckPayload
		if err := env.Decode(&ack); err != nil {
			return v1.HelloAckPayload{}, err
		}
		return ack, nil
	case v1.TypeError:
		var e v1.ErrorPayload
		if err := env.Decode(&e); err != nil {
			return v1.HelloAckPayload{}, err
		}
		return v1.HelloAckPayload{}, &APIError{Code: e.Code, Message: e.Message}
	default:
		return v1.HelloAckPayload{}, fmt.Errorf("unexpected %q before hello.ack", env.Type)
	}
}

func (c *Client) eventsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/auth/events"
	return u.String()
}

