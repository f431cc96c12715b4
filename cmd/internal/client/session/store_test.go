package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_NewIsEmptyAndLoading(t *testing.T) {
	s := NewStore()

	_, ok := s.CurrentPrincipal()
	assert.False(t, ok)
	assert.Equal(t, LoadingUnknown, s.Loading())
	assert.True(t, s.IsLoading())
}

func TestStore_SubscribeThenReleaseGetsNothing(t *testing.T) {
	s := NewStore()

	calls := 0
	sub := s.Subscribe(func(Snapshot) { calls++ })
	sub.Release()

	s.setPrincipal(&Principal{ID: "u1"})
	s.setPrincipal(nil)
	s.setLoading(LoadingResolved)

	assert.Zero(t, calls)
}

func TestStore_ReleaseIsIdempotent(t *testing.T) {
	s := NewStore()

	var a, b int
	subA := s.Subscribe(func(Snapshot) { a++ })
	s.Subscribe(func(Snapshot) { b++ })

	subA.Release()
	subA.Release()
	var nilSub *Subscription
	nilSub.Release()

	s.setPrincipal(&Principal{ID: "u1"})
	assert.Zero(t, a)
	assert.Equal(t, 1, b)
}

func TestStore_NotifiesInRegistrationOrder(t *testing.T) {
	s := NewStore()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		s.Subscribe(func(Snapshot) { order = append(order, name) })
	}

	s.setPrincipal(&Principal{ID: "u1"})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestStore_SetPrincipalReplacesWholeValue(t *testing.T) {
	s := NewStore()

	s.setPrincipal(&Principal{ID: "u1", Email: "one@example.com"})
	s.setPrincipal(&Principal{ID: "u2"})

	p, ok := s.CurrentPrincipal()
	require.True(t, ok)
	assert.Equal(t, Principal{ID: "u2"}, p)

	s.setPrincipal(nil)
	p, ok = s.CurrentPrincipal()
	assert.False(t, ok)
	assert.True(t, p.IsZero())
}

func TestStore_LoadingChangesNotifyOnce(t *testing.T) {
	s := NewStore()

	var seen []LoadingState
	s.Subscribe(func(snap Snapshot) { seen = append(seen, snap.Loading) })

	s.setLoading(Loading)
	s.setLoading(Loading)
	s.setLoading(LoadingResolved)

	assert.Equal(t, []LoadingState{Loading, LoadingResolved}, seen)
	assert.False(t, s.IsLoading())
}

func TestStore_NestedUpdateIsDeliveredAfterCurrentRound(t *testing.T) {
	s := NewStore()

	var got []string
	s.Subscribe(func(snap Snapshot) {
		got = append(got, "a:"+snap.Principal.ID)
		if snap.Principal.ID == "u1" {
			s.setPrincipal(&Principal{ID: "u2"})
		}
	})
	s.Subscribe(func(snap Snapshot) {
		got = append(got, "b:"+snap.Principal.ID)
	})

	s.setPrincipal(&Principal{ID: "u1"})

	assert.Equal(t, []string{"a:u1", "b:u1", "a:u2", "b:u2"}, got)
}

func TestStore_ReleaseDuringDeliverySkipsLaterListener(t *testing.T) {
	s := NewStore()

	var second *Subscription
	calls := 0
	s.Subscribe(func(Snapshot) { second.Release() })
	second = s.Subscribe(func(Snapshot) { calls++ })

	s.setPrincipal(&Principal{ID: "u1"})
	assert.Zero(t, calls)
}

func TestStore_ConcurrentUpdateIsHandedToActiveDeliverer(t *testing.T) {
	s := NewStore()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	got := make(chan string, 4)
	s.Subscribe(func(snap Snapshot) {
		got <- snap.Principal.ID
		if snap.Principal.ID == "u1" {
			close(entered)
			<-unblock
		}
	})

	done := make(chan struct{})
	go func() {
		s.setPrincipal(&Principal{ID: "u1"})
		close(done)
	}()
	<-entered

	// Returns while the first goroutine is still inside the listener.
	s.setPrincipal(&Principal{ID: "u2"})
	require.Equal(t, "u1", <-got)
	select {
	case id := <-got:
		t.Fatalf("u2 delivered early as %q", id)
	default:
	}

	close(unblock)
	<-done
	select {
	case id := <-got:
		assert.Equal(t, "u2", id)
	case <-time.After(time.Second):
		t.Fatal("u2 never delivered")
	}
}

func TestLoadingState_String(t *testing.T) {
	tests := []struct {
		in   LoadingState
		want string
	}{
		{LoadingUnknown, "unknown"},
		{Loading, "loading"},
		{LoadingResolved, "resolved"},
		{LoadingState(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.String())
	}
}
