// limiter.go bounds the number of inbound messages accepted per time
// window. The limiter runs after decryption, so only an authenticated
// peer can consume budget and an attacker cannot force drops of
// legitimate encrypted traffic. Exceeding the limit never closes the
// connection; the offending message is dropped and the sender receives a
// RateLimited error response.
package channel

import (
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most max events within the trailing
// window. Expired timestamps are pruned on every attempt, so the retained
// set never exceeds max entries after pruning.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewSlidingWindowLimiter creates a limiter admitting max events per
// window. max <= 0 disables limiting.
func NewSlidingWindowLimiter(max int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// TryAcquire reports whether one more event fits in the current window,
// recording it if so.
func (l *SlidingWindowLimiter) TryAcquire() bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Len returns the number of events currently inside the window.
func (l *SlidingWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// prune drops timestamps older than the window. Caller holds the lock.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
