package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-username token bucket of protocol events:
// limiters are created lazily on first use and evicted once stale.
type RateLimiter struct {
	eventsPerWindow int
	window          time.Duration

	mu       sync.Mutex
	limiters map[string]*entry
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter allowing eventsPerWindow events per
// window, per username. A fresh connection starts with a full bucket so a
// legitimate login burst isn't penalized.
func NewRateLimiter(eventsPerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		eventsPerWindow: eventsPerWindow,
		window:          window,
		limiters:        make(map[string]*entry),
	}
}

// Allow reports whether one more event from username is permitted right now.
func (r *RateLimiter) Allow(username string) bool {
	r.mu.Lock()
	e, ok := r.limiters[username]
	if !ok {
		e = &entry{
			lim: rate.NewLimiter(rate.Every(r.window/time.Duration(r.eventsPerWindow)), r.eventsPerWindow),
		}
		r.limiters[username] = e
	}
	e.lastSeen = time.Now()
	r.mu.Unlock()
	return e.lim.Allow()
}

// EvictStale drops limiters unused for longer than maxIdle, bounding the
// map's memory for relays that see many short-lived usernames.
func (r *RateLimiter) EvictStale(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	for username, e := range r.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(r.limiters, username)
		}
	}
}
