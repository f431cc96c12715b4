package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Principal is an authenticated account as reported by the auth gateway.
type Principal struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// IsZero reports whether p carries no identity.
func (p Principal) IsZero() bool { return p.ID == "" }

// LoadingState describes whether the initial session restore has completed.
type LoadingState uint8

const (
	LoadingUnknown LoadingState = iota
	Loading
	LoadingResolved
)

func (s LoadingState) String() string {
	switch s {
	case Loading:
		return "loading"
	case LoadingResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Snapshot is the Store state handed to listeners.
type Snapshot struct {
	Principal     Principal
	Authenticated bool
	Loading       LoadingState
}

// Listener observes Store changes. It runs on the goroutine that applied the
// change, unless another goroutine is delivering at that moment: the change is
// then queued and that goroutine delivers it after its current round, and the
// applying call returns without waiting for the listener.
type Listener func(Snapshot)

// Store holds the principal currently signed in to this client.
//
// Readers use CurrentPrincipal, Loading and Subscribe. Writes are unexported and
// reserved for the Controller in this package.
//
// Listeners are called synchronously in registration order. A listener may call
// back into the Store or the Controller: updates applied while a round is being
// delivered are queued and delivered after it, in the order they were applied.
type Store struct {
	mu        sync.Mutex
	principal Principal
	authed    bool
	loading   LoadingState

	subs   []*Subscription
	nextID uint64

	pending    []Snapshot
	delivering bool
}

// NewStore returns an empty store in the LoadingUnknown state.
func NewStore() *Store {
	return &Store{}
}

// CurrentPrincipal returns the last known principal and whether one is signed in.
func (s *Store) CurrentPrincipal() (Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal, s.authed
}

func (s *Store) Loading() LoadingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsLoading reports whether the initial restore has not resolved yet.
func (s *Store) IsLoading() bool {
	return s.Loading() != LoadingResolved
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn and returns its handle. A nil fn is accepted and never called.
func (s *Store) Subscribe(fn Listener) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &Subscription{store: s, id: s.nextID, fn: fn}
	sub.active.Store(true)
	s.subs = append(s.subs, sub)
	return sub
}

// setPrincipal replaces the held principal and notifies. p == nil clears the store.
func (s *Store) setPrincipal(p *Principal) {
	s.stagePrincipal(p)
	s.deliver()
}

// stagePrincipal replaces the held principal and queues the notification
// without delivering it. Callers follow up with deliver once they have
// released their own locks.
func (s *Store) stagePrincipal(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil || p.IsZero() {
		s.principal = Principal{}
		s.authed = false
	} else {
		s.principal = *p
		s.authed = true
	}
	s.enqueueLocked()
}

// setLoading moves the loading state; unchanged values do not notify.
func (s *Store) setLoading(state LoadingState) {
	s.mu.Lock()
	if s.loading == state {
		s.mu.Unlock()
		return
	}
	s.loading = state
	s.enqueueLocked()
	s.mu.Unlock()

	s.deliver()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Principal: s.principal, Authenticated: s.authed, Loading: s.loading}
}

func (s *Store) enqueueLocked() {
	s.pending = append(s.pending, s.snapshotLocked())
}

// deliver drains the pending queue unless another call is already doing so.
func (s *Store) deliver() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true

	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending = s.pending[1:]
		subs := append([]*Subscription(nil), s.subs...)
		s.mu.Unlock()

		for _, sub := range subs {
			if sub.active.Load() && sub.fn != nil {
				sub.fn(snap)
			}
		}

		s.mu.Lock()
	}

	s.pending = nil
	s.delivering = false
	s.mu.Unlock()
}

func (s *Store) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Subscription is the handle returned by Store.Subscribe.
type Subscription struct {
	store  *Store
	id     uint64
	fn     Listener
	active atomic.Bool
}

// Release removes the listener. Calling it more than once is a no-op.
func (sub *Subscription) Release() {
	if sub == nil || !sub.active.CompareAndSwap(true, false) {
		return
	}
	sub.store.remove(sub.id)
}
