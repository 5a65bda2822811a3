package server

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window counter keyed by namespace and caller.
// Windows reset fully at expiry; there is no sliding behavior.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*window
	now     func() time.Time
}

type window struct {
	count    int
	resetsAt time.Time
}

const pruneThreshold = 1000

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow consumes one request from the caller's window, creating it on first
// use. When the window is exhausted it returns false plus the time until
// reset.
func (r *RateLimiter) Allow(namespace, key string, max int, windowSize time.Duration) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.buckets) >= pruneThreshold {
		r.prune(now)
	}

	id := namespace + ":" + key
	w, ok := r.buckets[id]
	if !ok || !now.Before(w.resetsAt) {
		r.buckets[id] = &window{count: 1, resetsAt: now.Add(windowSize)}
		return true, 0
	}
	if w.count >= max {
		return false, w.resetsAt.Sub(now)
	}
	w.count++
	return true, 0
}

func (r *RateLimiter) prune(now time.Time) {
	for id, w := range r.buckets {
		if !now.Before(w.resetsAt) {
			delete(r.buckets, id)
		}
	}
}
