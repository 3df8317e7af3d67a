package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

const existingHeightsQuery = `
SELECT DISTINCT height
FROM export_tasks
WHERE chain = ? AND height BETWEEN ? AND ?`

// Prepare inserts a prepared task for every height of [from, to] the pool does not know yet.
func (r *Repository) Prepare(ctx context.Context, from, to uint64, certain bool) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("prepare", err, started)
	}()

	if from > to {
		return nil
	}

	rows, err := r.conn.Query(ctx, existingHeightsQuery, r.chain, from, to)
	if err != nil {
		return fmt.Errorf("query existing heights: %w", err)
	}
	existing, err := scanHeights(rows)
	if err != nil {
		return err
	}
	known := make(map[uint64]struct{}, len(existing))
	for _, h := range existing {
		known[h] = struct{}{}
	}

	tasks := make([]model.Task, 0, to-from+1-uint64(len(known)))
	for h := from; h <= to; h++ {
		if _, ok := known[h]; ok {
			continue
		}
		tasks = append(tasks, model.Task{Height: h, Status: model.TaskPrepared, Certain: certain})
	}
	return r.appendTasks(ctx, tasks)
}
