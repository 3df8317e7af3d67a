package syncer

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RollbackCoordinator deletes everything at or above a height from every participant in a fixed
// order: the task pool, each sink in registration order, then in-memory retry state.
// A failing participant does not stop the others; rollbacks are idempotent and a later fork
// check may repeat them.
type RollbackCoordinator struct {
	participants []Rollbacker
	alerts       Alerts
	metrics      Metrics
	logger       *zap.Logger
}

type namedRollbacker struct {
	name string
	fn   func(ctx context.Context, height uint64) error
}

func (n namedRollbacker) Name() string {
	return n.name
}

func (n namedRollbacker) RollbackFrom(ctx context.Context, height uint64) error {
	return n.fn(ctx, height)
}

func NewRollbackCoordinator(
	pool TaskPool,
	sinks []Rollbacker,
	queue ErrorQueue,
	alerts Alerts,
	metrics Metrics,
	logger *zap.Logger,
) *RollbackCoordinator {
	participants := make([]Rollbacker, 0, len(sinks)+2)
	participants = append(participants, namedRollbacker{name: "task_pool", fn: pool.RollbackFrom})
	participants = append(participants, sinks...)
	participants = append(participants, namedRollbacker{name: "error_queue", fn: queue.RollbackFrom})
	return &RollbackCoordinator{
		participants: participants,
		alerts:       alerts,
		metrics:      metrics,
		logger:       logger.Named("rollback"),
	}
}

// With appends participants that roll back after the configured ones.
func (c *RollbackCoordinator) With(extra ...Rollbacker) *RollbackCoordinator {
	c.participants = append(c.participants, extra...)
	return c
}

func (c *RollbackCoordinator) RollbackFrom(ctx context.Context, height uint64) error {
	c.logger.Warn("rolling back", zap.Uint64("from_height", height), zap.Int("participants", len(c.participants)))

	var errs error
	for _, p := range c.participants {
		err := p.RollbackFrom(ctx, height)
		if err == nil {
			c.logger.Info("participant rolled back", zap.String("participant", p.Name()), zap.Uint64("from_height", height))
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		c.logger.Error("participant rollback failed",
			zap.String("participant", p.Name()),
			zap.Uint64("from_height", height),
			zap.Error(err),
		)
		c.alerts.Raise(ctx, model.Alert{
			Kind:    model.AlertRollbackFailed,
			Height:  height,
			Message: fmt.Sprintf("%s: %v", p.Name(), err),
		})
	}
	c.metrics.ObserveRollback(errs)
	return errs
}
