package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// taskChecker finds heights missing from the task pool below its highest entry and prepares them again.
type taskChecker struct {
	pool   TaskPool
	limit  uint64
	logger *zap.Logger
}

func (c *taskChecker) Check(ctx context.Context, from uint64) ([]uint64, error) {
	next, ok, err := c.pool.NextHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read next height: %w", err)
	}
	if !ok || next == 0 || next-1 < from {
		return nil, nil
	}

	missing, err := c.pool.MissingHeights(ctx, from, next-1, c.limit)
	if err != nil {
		return nil, fmt.Errorf("find missing heights in [%d, %d]: %w", from, next-1, err)
	}
	for _, r := range ranges(missing) {
		if err := c.pool.Prepare(ctx, r[0], r[1], false); err != nil {
			return nil, fmt.Errorf("prepare missing heights [%d, %d]: %w", r[0], r[1], err)
		}
	}
	if len(missing) > 0 {
		c.logger.Warn("task pool gap re-prepared",
			zap.Uint64("first", missing[0]),
			zap.Int("count", len(missing)),
		)
	}
	return missing, nil
}

// ranges groups ascending heights into inclusive contiguous runs.
func ranges(heights []uint64) [][2]uint64 {
	var out [][2]uint64
	for _, h := range heights {
		if n := len(out); n > 0 && out[n-1][1]+1 == h {
			out[n-1][1] = h
			continue
		}
		out = append(out, [2]uint64{h, h})
	}
	return out
}
