package session

import (
	"context"
	"sync"
)

// Attempt is one Controller operation as seen by the Gateway. The Controller
// puts it in the context of every CreateAccount and Authenticate call.
//
// A Gateway that receives a token set for an attempt stages it instead of
// holding it right away. The Controller settles the attempt under the same lock
// that writes the Store: the winning attempt commits, every other one
// discards. The held token set and the Store principal therefore change
// together, in the Controller's order.
type Attempt struct {
	seq uint64

	mu      sync.Mutex
	settled bool
	commit  func() (after func())
	discard func()
}

type attemptKey struct{}

// WithAttempt returns a copy of ctx carrying a.
func WithAttempt(ctx context.Context, a *Attempt) context.Context {
	return context.WithValue(ctx, attemptKey{}, a)
}

// AttemptFrom returns the attempt carried by ctx, or nil.
func AttemptFrom(ctx context.Context) *Attempt {
	a, _ := ctx.Value(attemptKey{}).(*Attempt)
	return a
}

// Seq is the Controller sequence number of the attempt.
func (a *Attempt) Seq() uint64 { return a.seq }

// Stage registers the gateway side of a token set issued for this attempt.
//
// commit runs while the Controller holds its lock and must only swap
// in-memory state; the func it returns, if any, runs after the lock is
// released. discard runs, outside any lock, when the attempt does not win.
// Staging on a settled attempt discards at once; staging twice discards the
// earlier set.
func (a *Attempt) Stage(commit func() (after func()), discard func()) {
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		if discard != nil {
			discard()
		}
		return
	}
	prev := a.discard
	a.commit, a.discard = commit, discard
	a.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// win commits the staged set. The returned func must run after the caller
// releases its lock.
func (a *Attempt) win() (after func()) {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		return nil
	}
	a.settled = true
	commit := a.commit
	a.commit, a.discard = nil, nil
	a.mu.Unlock()

	if commit == nil {
		return nil
	}
	return commit()
}

// lose discards the staged set, if any. It is a no-op on a settled attempt.
func (a *Attempt) lose() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		return
	}
	a.settled = true
	discard := a.discard
	a.commit, a.discard = nil, nil
	a.mu.Unlock()

	if discard != nil {
		discard()
	}
}
