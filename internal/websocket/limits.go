package websocket

import (
	"net/url"
	"sync"
	"time"
)

// WindowRateLimiter allows up to limit events per window.
type WindowRateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	start  time.Time
	count  int
}

// NewWindowRateLimiter creates a fixed-window rate limiter.
func NewWindowRateLimiter(limit int, window time.Duration) *WindowRateLimiter {
	return &WindowRateLimiter{limit: limit, window: window, start: time.Now()}
}

// Allow implements the RateLimiter interface
func (l *WindowRateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.start) >= l.window {
		l.start = now
		l.count = 0
	}
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

// Reset implements the RateLimiter interface
func (l *WindowRateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.start = time.Now()
	l.count = 0
}

// AllowedOrigins validates origins against a configured list. "*" allows
// every origin; loopback origins are always allowed.
type AllowedOrigins []string

// IsAllowedOrigin implements OriginValidator.
func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	for _, allowed := range a {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return u.Scheme == "http" || u.Scheme == "https"
	}
	return false
}
