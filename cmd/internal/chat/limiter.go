package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 30 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// userLimiter keeps one token bucket per user id.
type userLimiter struct {
	mu        sync.Mutex
	every     rate.Limit
	burst     int
	users     map[string]*limiterEntry
	lastSweep time.Time
}

func newUserLimiter(perMinute float64, burst int) *userLimiter {
	return &userLimiter{
		every: rate.Limit(perMinute / 60),
		burst: burst,
		users: make(map[string]*limiterEntry),
	}
}

func (l *userLimiter) allow(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdle {
		for id, e := range l.users {
			if now.Sub(e.seen) > limiterIdle {
				delete(l.users, id)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.users[userID]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.users[userID] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
