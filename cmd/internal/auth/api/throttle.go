package authapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"hearth/cmd/internal/httpx"
)

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// evaluateWindowThrottle blocks once max failures fall inside window.
// failures must be sorted newest first. The retry time is when the oldest
// counted failure leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, maxFailures int, window time.Duration) (bool, time.Duration) {
	if maxFailures <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	n := 0
	for _, at := range failures {
		if at.After(cut) {
			n++
		}
	}
	if n < maxFailures {
		return false, 0
	}
	oldest := failures[maxFailures-1]
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier whose threshold is met.
// The lockout runs from the newest failure. Tiers must be most severe first.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	newest := failures[0]
	for _, t := range tiers {
		if t.Threshold <= 0 || len(failures) < t.Threshold {
			continue
		}
		until := newest.Add(t.Duration)
		if until.After(now) {
			return true, until.Sub(now)
		}
		return false, 0
	}
	return false, 0
}

func (h *Handler) checkLoginIPThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0, nil
	}
	failures, err := h.audit.LoginFailures(ctx, FailureQuery{IP: ip, Since: now.Add(-h.cfg.LoginIPWindow), Limit: h.cfg.LoginIPMax})
	if err != nil {
		return false, 0, err
	}
	blocked, retry := evaluateWindowThrottle(now, failures, h.cfg.LoginIPMax, h.cfg.LoginIPWindow)
	return blocked, retry, nil
}

// checkLoginIdentifierThrottle runs before the account lookup so locked
// identifiers cost no credential work.
func (h *Handler) checkLoginIdentifierThrottle(ctx context.Context, identifier string, now time.Time) (bool, time.Duration, error) {
	tiers := h.cfg.lockoutTiers()
	if identifier == "" || len(tiers) == 0 {
		return false, 0, nil
	}
	failures, err := h.audit.LoginFailures(ctx, FailureQuery{Identifier: identifier, Since: now.Add(-h.cfg.lockoutWindow())})
	if err != nil {
		return false, 0, err
	}
	blocked, retry := evaluateProgressiveLockout(now, failures, tiers)
	return blocked, retry, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
