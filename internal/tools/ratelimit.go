package tools

// file: internal/tools/ratelimit.go

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// maxRateWait is the longest a caller queues for a token before being refused.
const maxRateWait = 5 * time.Second

// ErrRateLimited is returned when a token would take longer than maxRateWait.
var ErrRateLimited = errors.New("completion rate limit exceeded: try again later")

// RateLimiter is a token bucket. A caller reserves its token up front, so the
// bucket may go negative while reservations are waiting out their delay.
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter refilling at rate tokens per second with a full
// bucket of burst tokens.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

// Wait blocks until the caller's token is due or ctx ends.
func (l *RateLimiter) Wait(ctx context.Context) error {
	delay, err := l.reserve()
	if err != nil || delay == 0 {
		return err
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.cancel()
		return ctx.Err()
	}
}

func (l *RateLimiter) reserve() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	l.lastUpdate = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= 1 {
		l.tokens--
		return 0, nil
	}
	wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
	if wait > maxRateWait {
		return 0, ErrRateLimited
	}
	l.tokens--
	return wait, nil
}

// cancel returns an abandoned reservation to the bucket.
func (l *RateLimiter) cancel() {
	l.mu.Lock()
	l.tokens++
	l.mu.Unlock()
}

// LimitedCompleter throttles calls to an inner Completer.
type LimitedCompleter struct {
	Inner   Completer
	Limiter *RateLimiter
}

// Complete implements Completer.
func (c LimitedCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.Inner.Complete(ctx, system, prompt)
}
