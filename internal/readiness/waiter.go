// Package readiness polls dependent services until they become reachable.
package readiness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TimeoutError is returned once every attempt against Target has failed.
type TimeoutError struct {
	Target   string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s after %d attempts", e.Target, e.Attempts)
}

// Waiter polls a probe at a fixed interval.
type Waiter struct {
	log   *zap.SugaredLogger
	sleep func(time.Duration)
}

func NewWaiter(log *zap.SugaredLogger) *Waiter {
	return &Waiter{log: log, sleep: time.Sleep}
}

// WaitFor runs exactly maxAttempts checks spaced interval apart and returns
// true on the first success. The loop is bounded by the attempt count only;
// ctx is handed to the individual probe requests.
func (w *Waiter) WaitFor(ctx context.Context, p Probe, interval time.Duration, maxAttempts int) (bool, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	w.log.Infow("waiting for target", "target", p.Target(), "interval", interval, "attempts", maxAttempts)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ok, err := p.Check(ctx)
		if ok {
			w.log.Infow("target online", "target", p.Target(), "attempt", attempt)
			return true, nil
		}
		if err != nil {
			w.log.Debugw("probe failed", "target", p.Target(), "attempt", attempt, "err", err)
		}
		if attempt < maxAttempts {
			w.sleep(interval)
		}
	}
	return false, &TimeoutError{Target: p.Target(), Attempts: maxAttempts}
}
