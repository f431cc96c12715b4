package events

import (
	"sync"

	v1 "hearth/shared/contracts/events/v1"
)

type outbound struct {
	env v1.Envelope
	// last closes the connection once env is written.
	last bool
}

// Client is one authenticated events connection.
//
// send is never closed; done tells the goroutines to stop.
type Client struct {
	UserID    string
	SessionID string

	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(userID, sessionID string, queue int) *Client {
	if queue <= 0 {
		queue = 16
	}
	return &Client{
		UserID:    userID,
		SessionID: sessionID,
		send:      make(chan outbound, queue),
		done:      make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// offer enqueues without blocking.
func (c *Client) offer(o outbound) bool {
	select {
	case <-c.done:
		return false
	case c.send <- o:
		return true
	default:
		return false
	}
}
