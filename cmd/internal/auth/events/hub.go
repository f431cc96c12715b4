package events

import (
	"log/slog"
	"sync"
	"time"

	"hearth/cmd/identity/ids"
	"hearth/cmd/internal/auth/session"
	v1 "hearth/shared/contracts/events/v1"
)

// Gauge is the part of a prometheus.Gauge the hub uses.
type Gauge interface {
	Inc()
	Dec()
}

// Hub fans session revocations out to the connections of the affected user.
// It implements session.Notifier.
type Hub struct {
	log   *slog.Logger
	gauge Gauge

	mu     sync.RWMutex
	byUser map[string]map[*Client]struct{}
}

var _ session.Notifier = (*Hub)(nil)

func NewHub(log *slog.Logger, gauge Gauge) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{log: log, gauge: gauge, byUser: make(map[string]map[*Client]struct{})}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	set := h.byUser[c.UserID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.byUser[c.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.Inc()
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	set := h.byUser[c.UserID]
	_, ok := set[c]
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.UserID)
	}
	h.mu.Unlock()
	if ok && h.gauge != nil {
		h.gauge.Dec()
	}
}

// Connected returns how many connections userID holds.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// SessionRevoked tells every connection of r.UserID. A connection bound to a
// revoked session is closed after the event is written. A connection whose
// queue is full is closed at once.
func (h *Hub) SessionRevoked(r session.Revocation) {
	payload := v1.SessionRevokedPayload{
		UserID:    r.UserID,
		SessionID: r.SessionID,
		Scope:     r.Scope,
		Reason:    r.Reason,
	}
	env, err := v1.New(v1.TypeSessionRevoked, ids.MustNewULID(time.Now()), time.Now(), payload)
	if err != nil {
		h.log.Error("events.encode.fail", "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[r.UserID]))
	for c := range h.byUser[r.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		last := payload.Covers(c.UserID, c.SessionID)
		if !c.offer(outbound{env: env, last: last}) {
			h.log.Warn("events.send.drop", "user_id", c.UserID, "session_id", c.SessionID)
			c.Close()
		}
	}
	h.log.Info("events.session.revoked", "user_id", r.UserID, "scope", r.Scope, "reason", r.Reason, "connections", len(targets))
}
