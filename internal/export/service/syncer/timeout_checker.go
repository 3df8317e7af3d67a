package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// timeoutChecker requeues prepared or fetched heights that nobody finished in time.
type timeoutChecker struct {
	pool    TaskPool
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// Check requeues timed out heights except the ones owned elsewhere: stored heights waiting for
// commit and heights held by the error queue.
func (c *timeoutChecker) Check(ctx context.Context, owned map[uint64]struct{}) ([]uint64, error) {
	timedOut, err := c.pool.TimedOut(ctx, c.now().Add(-c.timeout))
	if err != nil {
		return nil, fmt.Errorf("find timed out tasks: %w", err)
	}

	requeue := make([]uint64, 0, len(timedOut))
	for _, h := range timedOut {
		if _, skip := owned[h]; !skip {
			requeue = append(requeue, h)
		}
	}
	if len(requeue) == 0 {
		return nil, nil
	}
	if err := c.pool.Requeue(ctx, requeue); err != nil {
		return nil, fmt.Errorf("requeue %d timed out tasks: %w", len(requeue), err)
	}
	c.logger.Warn("timed out tasks requeued", zap.Uint64s("heights", requeue))
	return requeue, nil
}
