package admission

import (
	"errors"
	"sync"
	"testing"
	"time"

	"burnt-beats-be/internal/pkg/logger"
)

func newTestLimiter(window time.Duration, max int) (*Limiter, *time.Time) {
	l := NewLimiter(window, max, logger.NopLogger{})
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestLimiterAdmitsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		if err := l.TryAdmit("user-a"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}

	err := l.TryAdmit("user-a")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.RetryAfter <= 0 || rejected.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %s", rejected.RetryAfter)
	}
}

func TestLimiterRetryAfterCountsDown(t *testing.T) {
	l, current := newTestLimiter(time.Minute, 1)

	if err := l.TryAdmit("user-a"); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}

	*current = current.Add(40 * time.Second)
	err := l.TryAdmit("user-a")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.RetryAfter != 20*time.Second {
		t.Fatalf("expected retry-after 20s, got %s", rejected.RetryAfter)
	}
}

func TestLimiterWindowResets(t *testing.T) {
	l, current := newTestLimiter(time.Minute, 2)

	l.TryAdmit("user-a")
	l.TryAdmit("user-a")
	if err := l.TryAdmit("user-a"); err == nil {
		t.Fatal("expected rejection at limit")
	}

	*current = current.Add(time.Minute)
	if err := l.TryAdmit("user-a"); err != nil {
		t.Fatalf("expected admission in fresh window, got %v", err)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)

	if err := l.TryAdmit("user-a"); err != nil {
		t.Fatalf("user-a: %v", err)
	}
	if err := l.TryAdmit("user-b"); err != nil {
		t.Fatalf("user-b must have their own window: %v", err)
	}
	if err := l.TryAdmit("user-a"); err == nil {
		t.Fatal("user-a should be limited")
	}
	if err := l.TryAdmit("user-b"); err == nil {
		t.Fatal("user-b should be limited")
	}
}

// Every admit must extend the ticket's cache lifetime. A ticket that lapses
// between two requests inside one window would be recreated with a zero
// count, quietly doubling the quota.
func TestLimiterRenewsTicketLifetime(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 10)

	if err := l.TryAdmit("user-a"); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	first, exp1, found := l.tickets.GetWithExpiration("user-a")
	if !found {
		t.Fatal("ticket missing after admit")
	}

	time.Sleep(5 * time.Millisecond)
	if err := l.TryAdmit("user-a"); err != nil {
		t.Fatalf("second request rejected: %v", err)
	}
	second, exp2, found := l.tickets.GetWithExpiration("user-a")
	if !found {
		t.Fatal("ticket missing after second admit")
	}

	if first.(*ticket) != second.(*ticket) {
		t.Fatal("ticket was replaced between admits")
	}
	if !exp2.After(exp1) {
		t.Fatalf("expiration not renewed: %s then %s", exp1, exp2)
	}
	if got := second.(*ticket).count; got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
}

func TestLimiterConcurrentAdmissions(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.TryAdmit("shared"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Fatalf("expected exactly 10 admissions, got %d", admitted)
	}
}
