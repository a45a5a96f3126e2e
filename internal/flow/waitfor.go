package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/powerfold/powerfold/internal/logging"
)

// Predicate is evaluated repeatedly until it reports true.
// A returned error is logged and counted as a false evaluation, not as a
// terminal failure: an unreadable reading is never success.
type Predicate func(ctx context.Context) (bool, error)

// Poll describes one bounded wait
type Poll struct {
	Name     string        // What is being waited on, for log lines
	Interval time.Duration // Fixed re-evaluation interval
	Timeout  time.Duration // Absolute budget from loop entry; 0 means unbounded
}

// WaitUntil polls pred at a fixed interval until it reports true or the
// budget elapses. Elapsed time is measured against the supplied clock from
// loop entry, so predicate latency does not skew the accounting. On expiry
// it returns a KindWaitTimeout error the caller must treat as fatal to the
// enclosing workflow.
func WaitUntil(ctx context.Context, clock clockwork.Clock, logger *logging.Logger, p Poll, pred Predicate) error {
	start := clock.Now()
	attempt := 0

	for {
		attempt++
		ok, err := pred(ctx)
		if err != nil {
			logger.Warn("Check failed, retrying",
				"check", p.Name, "attempt", attempt, "error", err)
		} else if ok {
			logger.Debug("Check satisfied",
				"check", p.Name, "attempt", attempt, "elapsed", clock.Since(start))
			return nil
		} else {
			logger.Info("Still waiting",
				"check", p.Name, "attempt", attempt, "elapsed", clock.Since(start))
		}

		select {
		case <-clock.After(p.Interval):
		case <-ctx.Done():
			return WrapError(KindWaitTimeout,
				fmt.Sprintf("wait for %s interrupted", p.Name), ctx.Err())
		}

		if p.Timeout > 0 && clock.Since(start) >= p.Timeout {
			return NewErrorWithDetails(KindWaitTimeout,
				fmt.Sprintf("timed out waiting for %s after %s", p.Name, p.Timeout),
				map[string]interface{}{
					"check":    p.Name,
					"attempts": attempt,
					"timeout":  p.Timeout.String(),
				})
		}
	}
}

// WaitForever polls pred with no budget. It only returns a non-nil error
// when the context is cancelled.
func WaitForever(ctx context.Context, clock clockwork.Clock, logger *logging.Logger, name string, interval time.Duration, pred Predicate) error {
	return WaitUntil(ctx, clock, logger, Poll{Name: name, Interval: interval}, pred)
}
