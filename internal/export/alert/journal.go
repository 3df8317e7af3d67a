// Package alert records conditions that need an operator: forks, failed rollbacks, stuck heights and task gaps.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/pkg/batcher"
	"go.uber.org/zap"
)

type Config struct {
	FlushSize     int
	FlushInterval time.Duration
	RPS           int
	// Keep is the number of recent alerts kept in memory for the status endpoint.
	Keep int
}

func (c Config) withDefaults() Config {
	if c.FlushSize < 1 {
		c.FlushSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.RPS < 1 {
		c.RPS = 10
	}
	if c.Keep < 1 {
		c.Keep = 50
	}
	return c
}

// Journal logs every alert, counts it and, when a store is configured, appends it to the journal table.
type Journal struct {
	batcher *batcher.Batcher[model.Alert]
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	recent []model.Alert
	keep   int
}

// New builds a journal. A nil store keeps alerts in logs and metrics only.
func New(store Store, cfg Config, metrics Metrics, logger *zap.Logger) *Journal {
	cfg = cfg.withDefaults()
	j := &Journal{
		metrics: metrics,
		logger:  logger.Named("alerts"),
		now:     time.Now,
		keep:    cfg.Keep,
	}
	if store != nil {
		j.batcher = batcher.New(j.logger, store.InsertAlerts, cfg.FlushSize, cfg.FlushInterval, cfg.RPS).
			OnFlushError(func(_ error, size int) {
				j.metrics.ObserveDropped(size)
			})
	}
	return j
}

func (j *Journal) Start(ctx context.Context) {
	if j.batcher != nil {
		j.batcher.Start(ctx)
	}
}

// Stop flushes pending alerts.
func (j *Journal) Stop() {
	if j.batcher != nil {
		j.batcher.Stop()
	}
}

// Raise never fails: an alert that cannot be queued is still logged and counted.
func (j *Journal) Raise(ctx context.Context, a model.Alert) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = j.now()
	}

	fields := []zap.Field{
		zap.String("kind", string(a.Kind)),
		zap.Uint64("height", a.Height),
		zap.String("message", a.Message),
	}
	if a.Kind == model.AlertFork || a.Kind == model.AlertTaskGap {
		j.logger.Warn("alert", fields...)
	} else {
		j.logger.Error("alert", fields...)
	}
	j.metrics.ObserveRaised(string(a.Kind))

	j.mu.Lock()
	j.recent = append(j.recent, a)
	if len(j.recent) > j.keep {
		j.recent = j.recent[len(j.recent)-j.keep:]
	}
	j.mu.Unlock()

	if j.batcher == nil {
		return
	}
	if err := j.batcher.Add(ctx, a); err != nil {
		j.metrics.ObserveDropped(1)
		j.logger.Warn("alert not journaled", zap.Error(err))
	}
}

// Recent returns the latest alerts, oldest first.
func (j *Journal) Recent() []model.Alert {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]model.Alert(nil), j.recent...)
}
