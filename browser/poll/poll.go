// Package poll provides a deadline-driven predicate poller.
package poll

import (
	"context"
	"time"
)

// DefaultTick is the interval used when the caller passes a non-positive tick.
const DefaultTick = 100 * time.Millisecond

// ErrorPolicy decides what a predicate error means to the poller.
type ErrorPolicy int

const (
	// AbortOnError returns the predicate error immediately.
	AbortOnError ErrorPolicy = iota
	// TolerateErrors treats a predicate error as "not yet satisfied".
	TolerateErrors
)

// String returns the policy name.
func (p ErrorPolicy) String() string {
	switch p {
	case AbortOnError:
		return "abort"
	case TolerateErrors:
		return "tolerate"
	default:
		return "unknown"
	}
}

// Predicate is evaluated on every attempt.
type Predicate func(ctx context.Context) (bool, error)

// Poller evaluates predicates until success or deadline.
type Poller struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Poller backed by the wall clock.
func New() *Poller {
	return &Poller{now: time.Now, sleep: sleepContext}
}

// NewWithClock creates a Poller driven by now. A nil sleep waits on a timer
// against the wall clock.
func NewWithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Poller {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &Poller{now: now, sleep: sleep}
}

// Until evaluates pred until it returns true or the deadline (now + timeout)
// passes. A timeout <= 0 evaluates pred exactly once. Deadline exhaustion
// returns (false, nil); callers decide whether that is an error.
func (p *Poller) Until(ctx context.Context, pred Predicate, timeout, tick time.Duration, policy ErrorPolicy) (bool, error) {
	if tick <= 0 {
		tick = DefaultTick
	}
	deadline := p.now().Add(timeout)

	for {
		ok, err := pred(ctx)
		if err != nil {
			if policy == AbortOnError {
				return false, err
			}
			ok = false
		}
		if ok {
			return true, nil
		}
		if !p.now().Before(deadline) {
			return false, nil
		}
		if err := p.sleep(ctx, tick); err != nil {
			return false, err
		}
	}
}

// Until polls with the default wall-clock Poller.
func Until(ctx context.Context, pred Predicate, timeout, tick time.Duration, policy ErrorPolicy) (bool, error) {
	return New().Until(ctx, pred, timeout, tick, policy)
}

// Not inverts the polarity of pred. Errors pass through unchanged.
func Not(pred Predicate) Predicate {
	return func(ctx context.Context) (bool, error) {
		ok, err := pred(ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// NoError turns a probe into a predicate that succeeds once probe stops failing.
func NoError(probe func(ctx context.Context) error) Predicate {
	return func(ctx context.Context) (bool, error) {
		if err := probe(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
