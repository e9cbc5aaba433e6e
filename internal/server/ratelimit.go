package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces per-client request limits over sliding one-minute
// and one-hour windows.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int

	clients map[string]*clientWindow
	now     func() time.Time
}

// clientWindow holds the request times of one client within the last hour,
// oldest first.
type clientWindow struct {
	requests []time.Time
}

// Usage is a point-in-time view of a client's request counts.
type Usage struct {
	LastMinute int
	LastHour   int
}

// NewRateLimiter creates a new rate limiter. A non-positive limit disables
// that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour int) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		clients:           make(map[string]*clientWindow),
		now:               time.Now,
	}
}

// Allow records a request from clientID, or returns a *RateLimitError when
// one of the windows is full.
func (rl *RateLimiter) Allow(clientID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cw, ok := rl.clients[clientID]
	if !ok {
		cw = &clientWindow{}
		rl.clients[clientID] = cw
	}
	cw.prune(now)

	if rl.requestsPerMinute > 0 {
		inMinute := cw.since(now.Add(-time.Minute))
		if len(inMinute) >= rl.requestsPerMinute {
			return &RateLimitError{
				Type:       "minute",
				Limit:      rl.requestsPerMinute,
				RetryAfter: inMinute[0].Add(time.Minute).Sub(now),
			}
		}
	}
	if rl.requestsPerHour > 0 && len(cw.requests) >= rl.requestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.requestsPerHour,
			RetryAfter: cw.requests[0].Add(time.Hour).Sub(now),
		}
	}

	cw.requests = append(cw.requests, now)
	return nil
}

// Usage returns the current counts for clientID.
func (rl *RateLimiter) Usage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.clients[clientID]
	if !ok {
		return Usage{}
	}
	now := rl.now()
	cw.prune(now)
	return Usage{
		LastMinute: len(cw.since(now.Add(-time.Minute))),
		LastHour:   len(cw.requests),
	}
}

// prune drops requests older than one hour.
func (cw *clientWindow) prune(now time.Time) {
	cw.requests = cw.since(now.Add(-time.Hour))
}

// since returns the suffix of requests made after t.
func (cw *clientWindow) since(t time.Time) []time.Time {
	i := 0
	for i < len(cw.requests) && !cw.requests[i].After(t) {
		i++
	}
	return cw.requests[i:]
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}
