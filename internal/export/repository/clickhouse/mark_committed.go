package clickhouse

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

// MarkCommitted records tasks as committed together with the hash each block was stored with.
func (r *Repository) MarkCommitted(ctx context.Context, tasks []model.Task) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("mark_committed", err, started)
	}()

	committed := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		t.Status = model.TaskCommitted
		t.UpdatedAt = time.Time{}
		committed = append(committed, t)
	}
	return r.appendTasks(ctx, committed)
}
