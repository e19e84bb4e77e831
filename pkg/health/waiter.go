package health

import (
	"context"
	"fmt"
	"time"
)

// Waiter polls a Checker until it reports healthy or the timeout expires
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// WaitFor checks immediately and then on every tick. The last unhealthy
// message is included in the timeout error.
func (w *Waiter) WaitFor(ctx context.Context, checker Checker, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last := checker.Check(ctx)
	if last.Healthy {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s (timeout: %v): %s", description, w.timeout, last.Message)
		case <-ticker.C:
			last = checker.Check(ctx)
			if last.Healthy {
				return nil
			}
		}
	}
}
