package admission

import (
	"fmt"
	"sync"
	"time"

	"burnt-beats-be/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
)

// RejectedError reports a rate-limited request along with the time until the
// caller's window resets.
type RejectedError struct {
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", int(e.RetryAfter.Seconds()))
}

// ticket tracks one caller's fixed window. Each ticket has its own lock so
// unrelated keys never contend.
type ticket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// Limiter implements fixed-window admission per key. Tickets live in a TTL
// cache sized to the window, so memory is bounded by recently-active keys
// rather than every key ever seen.
type Limiter struct {
	mu      sync.Mutex // guards ticket creation only
	tickets *cache.Cache
	window  time.Duration
	max     int
	logger  logger.ILogger
	now     func() time.Time
}

func NewLimiter(window time.Duration, max int, log logger.ILogger) *Limiter {
	return &Limiter{
		tickets: cache.New(window, 2*window),
		window:  window,
		max:     max,
		logger:  log,
		now:     time.Now,
	}
}

// TryAdmit returns nil when the request is admitted, or a *RejectedError
// carrying the retry-after duration.
func (l *Limiter) TryAdmit(key string) error {
	l.mu.Lock()
	var t *ticket
	if x, found := l.tickets.Get(key); found {
		t = x.(*ticket)
	} else {
		t = &ticket{windowStart: l.now()}
	}
	// Renew the entry on every lookup. Otherwise it can be evicted between
	// this Get and the count update below, and a concurrent caller would
	// start a second window for the same key.
	l.tickets.Set(key, t, l.window)
	l.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	now := l.now()
	if now.Sub(t.windowStart) >= l.window {
		// Window elapsed, start a fresh one in place.
		t.windowStart = now
		t.count = 0
	}

	if t.count >= l.max {
		retryAfter := t.windowStart.Add(l.window).Sub(now)
		l.logger.Warn("AdmissionController", "Request rejected", map[string]interface{}{
			"key": key, "retry_after": retryAfter.String(),
		})
		return &RejectedError{RetryAfter: retryAfter}
	}

	t.count++
	return nil
}
