package forecast

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

// Policy bounds how forecasts are dispatched and retried: at most Width run at
// once, and each is attempted up to MaxAttempts times with exponential backoff
// between attempts.
type Policy struct {
	Width       int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultPolicy is 3 wide, 3 attempts, 200ms doubling to at most 5s.
func DefaultPolicy() Policy {
	return Policy{
		Width:       3,
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
	}
}

func (p Policy) width() int {
	if p.Width <= 0 {
		return 1
	}
	return p.Width
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempt budget is spent, or ctx is done. It returns the last error.
func (p Policy) Retry(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 1; attempt <= p.attempts(); attempt++ {
		err = fn(ctx, attempt)
		if err == nil || !domain.IsRetryable(err) || attempt == p.attempts() {
			return err
		}
		if !sleepWithContext(ctx, p.Delay(attempt)) {
			return err
		}
	}
	return err
}

// Each calls fn for every index in [0,n) with at most Width calls in flight.
// fn owns its own error handling; one failure never stops the others. No new
// calls start once ctx is done, including calls that were waiting for a slot.
func (p Policy) Each(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(p.width())
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
