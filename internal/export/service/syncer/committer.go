package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"go.uber.org/zap"
)

// committer holds stored heights until every lower height is committed, then commits them
// in ascending order so the task pool never reports a height above a hole.
type committer struct {
	pool    TaskPool
	start   uint64
	metrics Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[uint64]model.Task
	cursor  uint64
	ok      bool
}

func newCommitter(pool TaskPool, start uint64, metrics Metrics, logger *zap.Logger) *committer {
	return &committer{
		pool:    pool,
		start:   start,
		metrics: metrics,
		logger:  logger,
		pending: make(map[uint64]model.Task),
	}
}

// Stored records a height whose bundle reached every sink.
func (c *committer) Stored(task model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[task.Height] = task
}

// Commit marks the contiguous run of stored heights above the committed cursor as committed.
// It returns the cursor after the commit and whether anything is committed at all.
func (c *committer) Commit(ctx context.Context) (uint64, bool, error) {
	height, ok, err := c.pool.CommittedHeight(ctx, c.start)
	if err != nil {
		return 0, false, fmt.Errorf("read committed height: %w", err)
	}
	next := c.start
	if ok {
		next = height + 1
	}

	c.mu.Lock()
	var batch []model.Task
	for h, t := range c.pending {
		if h < next {
			batch = append(batch, t)
		}
	}
	for h := next; ; h++ {
		t, found := c.pending[h]
		if !found {
			break
		}
		batch = append(batch, t)
		height, ok = h, true
	}
	c.mu.Unlock()

	if len(batch) == 0 {
		c.setCursor(height, ok)
		return height, ok, nil
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Height < batch[j].Height })

	if err := c.pool.MarkCommitted(ctx, batch); err != nil {
		return 0, false, fmt.Errorf("mark %d heights committed: %w", len(batch), err)
	}

	c.mu.Lock()
	for _, t := range batch {
		delete(c.pending, t.Height)
	}
	c.mu.Unlock()

	c.setCursor(height, ok)
	c.logger.Debug("heights committed",
		zap.Uint64("from", batch[0].Height),
		zap.Uint64("to", batch[len(batch)-1].Height),
		zap.Uint64("cursor", height),
	)
	return height, ok, nil
}

func (c *committer) setCursor(height uint64, ok bool) {
	c.mu.Lock()
	c.cursor, c.ok = height, ok
	c.mu.Unlock()
	if ok {
		c.metrics.SetCommittedHeight(height)
	}
}

// Cursor returns the last committed height observed and whether one exists.
func (c *committer) Cursor() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.ok
}

// PendingLen returns the number of stored but uncommitted heights.
func (c *committer) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Pending returns the stored but uncommitted heights in ascending order.
func (c *committer) Pending() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]uint64, 0, len(c.pending))
	for h := range c.pending {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *committer) Name() string {
	return "committer"
}

// RollbackFrom forgets stored heights at or above height.
func (c *committer) RollbackFrom(_ context.Context, height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for h := range c.pending {
		if h >= height {
			delete(c.pending, h)
		}
	}
	if c.ok && c.cursor >= height {
		if height > c.start {
			c.cursor = height - 1
		} else {
			c.ok = false
			c.cursor = c.start
		}
	}
	return nil
}
