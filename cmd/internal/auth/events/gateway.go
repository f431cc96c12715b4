package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"hearth/cmd/identity/ids"
	"hearth/cmd/internal/auth/session"
	v1 "hearth/shared/contracts/events/v1"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

const (
	maxPingFailures = 3
	closeGrace      = time.Second
)

// TokenValidator checks the access token presented in hello.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string, now time.Time) (session.AccessClaims, session.Row, error)
}

// Gateway serves GET /auth/events.
type Gateway struct {
	log       *slog.Logger
	hub       *Hub
	validator TokenValidator
	cfg       Config

	// Accept authorizes same-host origins itself; cross-origin needs patterns.
	originPatterns []string
}

func NewGateway(log *slog.Logger, hub *Hub, validator TokenValidator, cfg Config) *Gateway {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Gateway{
		log:            log,
		hub:            hub,
		validator:      validator,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("events.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Warn("events.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("events.reject.subprotocol", "got", sp)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(g.cfg.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	claims, err := g.hello(ctx, conn)
	if err != nil {
		g.log.Info("events.hello.fail", "err", err, "remote", r.RemoteAddr)
		g.writeDirect(ctx, conn, v1.TypeError, v1.ErrorPayload{Code: "unauthorized", Message: "hello failed"})
		_ = conn.Close(websocket.StatusPolicyViolation, "hello failed")
		return
	}

	client := newClient(claims.UserID, claims.SessionID, g.cfg.SendQueue)
	g.hub.add(client)
	defer g.hub.remove(client)

	log := g.log.With("user_id", client.UserID, "session_id", client.SessionID)
	log.Info("events.connect")

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	ack, _ := v1.New(v1.TypeHelloAck, g.newID(), time.Now(), v1.HelloAckPayload{UserID: claims.UserID, SessionID: claims.SessionID})
	client.offer(outbound{env: ack})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Flush what the hub queued before closing us.
				g.drain(ctx, conn, client)
				shutdown(websocket.StatusGoingAway, "closing")
				return
			case o := <-client.send:
				if err := writeEnvelope(ctx, conn, o.env, g.cfg.WriteTimeout); err != nil {
					log.Info("events.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
				if o.last {
					log.Info("events.close.revoked")
					shutdown(websocket.StatusPolicyViolation, "session revoked")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				log.Info("events.ping.fail", "failures", failures, "err", err)
				if failures >= maxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(g.cfg.RateLimit), g.cfg.RateBurst)

readLoop:
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			case readErrBadJSON:
				g.sendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				log.Info("events.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !limiter.Allow() {
			g.sendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}
		if err := env.Validate(); err != nil {
			g.sendError(client, "bad_envelope", err.Error())
			continue
		}
		// The server only pushes; any client frame after hello is unexpected.
		g.sendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	log.Info("events.disconnect")
}

// hello reads the first envelope and validates its token.
func (g *Gateway) hello(ctx context.Context, conn *websocket.Conn) (session.AccessClaims, error) {
	hctx, cancel := context.WithTimeout(ctx, g.cfg.HelloTimeout)
	defer cancel()

	env, err := readEnvelope(hctx, conn)
	if err != nil {
		return session.AccessClaims{}, err
	}
	if err := env.Validate(); err != nil {
		return session.AccessClaims{}, err
	}
	if env.Type != v1.TypeHello {
		return session.AccessClaims{}, fmt.Errorf("expected hello, got %s", env.Type)
	}
	var p v1.HelloPayload
	if err := env.Decode(&p); err != nil {
		return session.AccessClaims{}, fmt.Errorf("invalid payload: %w", err)
	}
	tok := strings.TrimSpace(p.Token)
	if tok == "" {
		return session.AccessClaims{}, errors.New("missing token")
	}
	claims, _, err := g.validator.ValidateAccessToken(hctx, tok, time.Now().UTC())
	return claims, err
}

func (g *Gateway) drain(ctx context.Context, conn *websocket.Conn, c *Client) {
	for {
		select {
		case o := <-c.send:
			if err := writeEnvelope(ctx, conn, o.env, g.cfg.WriteTimeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (g *Gateway) sendError(c *Client, code, msg string) {
	env, err := v1.New(v1.TypeError, g.newID(), time.Now(), v1.ErrorPayload{Code: code, Message: msg})
	if err == nil {
		c.offer(outbound{env: env})
	}
}

func (g *Gateway) writeDirect(ctx context.Context, conn *websocket.Conn, typ string, payload any) {
	env, err := v1.New(typ, g.newID(), time.Now(), payload)
	if err != nil {
		return
	}
	_ = writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout)
}

func (g *Gateway) newID() string { return ids.MustNewULID(time.Now()) }

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	if errors.As(err, &syn) || errors.As(err, &typ) {
		return readErrBadJSON
	}
	return readErrUnknown
}

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	host := originHost(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*", origin == a:
			return nil
		case host != "" && host == originHost(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(s)
}

// originPatterns turns the allowlist into websocket.Accept host patterns.
func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		if h := originHost(a); h != "" && h != "*" && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}
