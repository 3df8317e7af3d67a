package syncer

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"go.uber.org/zap"
)

// errorRemediator retries due failures through the block handler. A height that exhausts
// its retries is parked as stuck: it keeps blocking the cursor, is reported once and is
// retried at the queue's slow stuck pace.
type errorRemediator struct {
	queue      ErrorQueue
	handler    *blockHandler
	committer  *committer
	alerts     Alerts
	forkWindow uint64
	metrics    Metrics
	logger     *zap.Logger
}

type remediation struct {
	retried  int
	resolved int
	stuck    []uint64
}

func (r *errorRemediator) Remediate(ctx context.Context, chainHeight uint64) (remediation, error) {
	var out remediation

	due, err := r.queue.Due(ctx)
	if err != nil {
		return out, fmt.Errorf("load failed blocks: %w", err)
	}
	if len(due) == 0 {
		return out, r.reportStuck(ctx)
	}

	heights := make([]uint64, len(due))
	wasStuck := make(map[uint64]bool, len(due))
	for i, fb := range due {
		heights[i] = fb.Height
		wasStuck[fb.Height] = fb.Stuck
	}
	out.retried = len(heights)

	for _, res := range r.handler.Handle(ctx, heights) {
		if res.err == nil {
			r.committer.Stored(model.Task{
				Height:    res.height,
				BlockHash: res.hash,
				Certain:   isCertain(res.height, chainHeight, r.forkWindow),
			})
			if err := r.queue.Resolve(ctx, res.height); err != nil {
				return out, fmt.Errorf("resolve failed block %d: %w", res.height, err)
			}
			out.resolved++
			if wasStuck[res.height] {
				r.logger.Info("stuck height recovered", zap.Uint64("height", res.height))
			}
			continue
		}

		fb, err := r.queue.Fail(ctx, res.height, res.err)
		if err != nil {
			return out, fmt.Errorf("record retry of block %d: %w", res.height, err)
		}
		if !fb.Stuck {
			r.logger.Warn("retry failed",
				zap.Uint64("height", res.height),
				zap.Int("attempts", fb.Attempts),
				zap.Time("next_retry", fb.NextRetry),
				zap.Error(res.err),
			)
			continue
		}
		out.stuck = append(out.stuck, res.height)
		if wasStuck[res.height] {
			r.logger.Warn("stuck height still failing", zap.Uint64("height", res.height), zap.Int("attempts", fb.Attempts), zap.Error(res.err))
			continue
		}
		r.logger.Error("height is stuck",
			zap.Uint64("height", res.height),
			zap.Int("attempts", fb.Attempts),
			zap.Error(res.err),
		)
		r.alerts.Raise(ctx, model.Alert{
			Kind:    model.AlertStuckHeight,
			Height:  res.height,
			Message: fmt.Sprintf("parked as stuck after %d attempts: %s", fb.Attempts, fb.Error),
		})
	}

	return out, r.reportStuck(ctx)
}

func (r *errorRemediator) reportStuck(ctx context.Context) error {
	stuck, err := r.queue.Stuck(ctx)
	if err != nil {
		return fmt.Errorf("load stuck blocks: %w", err)
	}
	r.metrics.SetStuckHeights(len(stuck))
	return nil
}
