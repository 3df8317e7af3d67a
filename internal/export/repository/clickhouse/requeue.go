package clickhouse

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

// Requeue moves heights back to prepared so the next fetch picks them up again.
func (r *Repository) Requeue(ctx context.Context, heights []uint64) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("requeue", err, started)
	}()

	tasks := make([]model.Task, 0, len(heights))
	for _, h := range heights {
		tasks = append(tasks, model.Task{Height: h, Status: model.TaskPrepared})
	}
	return r.appendTasks(ctx, tasks)
}
