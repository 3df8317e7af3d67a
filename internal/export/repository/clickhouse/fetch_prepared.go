package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

const preparedTasksQuery = `
SELECT height, certain
FROM (
    SELECT
        height,
        argMax(status, updated_at) AS status,
        argMax(certain, updated_at) AS certain
    FROM export_tasks
    WHERE chain = ?
    GROUP BY height
)
WHERE status = 'prepared'
ORDER BY height
LIMIT ?`

// FetchPrepared claims up to limit prepared heights in ascending order and marks them fetched.
func (r *Repository) FetchPrepared(ctx context.Context, limit uint64) (heights []uint64, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("fetch_prepared", err, started)
	}()

	if limit == 0 {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, preparedTasksQuery, r.chain, limit)
	if err != nil {
		return nil, fmt.Errorf("query prepared tasks: %w", err)
	}

	tasks, err := scanPreparedTasks(rows)
	if err != nil {
		return nil, err
	}

	if err = r.appendTasks(ctx, tasks); err != nil {
		return nil, err
	}
	heights = make([]uint64, 0, len(tasks))
	for _, t := range tasks {
		heights = append(heights, t.Height)
	}
	return heights, nil
}

func scanPreparedTasks(rows driver.Rows) (tasks []model.Task, err error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		t := model.Task{Status: model.TaskFetched}
		if err = rows.Scan(&t.Height, &t.Certain); err != nil {
			return nil, fmt.Errorf("scan prepared task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prepared tasks: %w", err)
	}
	return tasks, nil
}
