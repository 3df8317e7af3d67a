package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

const recentCommittedQuery = `
SELECT height, block_hash, certain, updated_at
FROM (
    SELECT
        height,
        argMax(status, updated_at) AS status,
        argMax(block_hash, updated_at) AS block_hash,
        argMax(certain, updated_at) AS certain,
        max(updated_at) AS updated_at
    FROM export_tasks
    WHERE chain = ? AND height >= ?
    GROUP BY height
)
WHERE status = 'committed'
ORDER BY height`

// RecentCommitted returns committed tasks at or above fromHeight with the hash they were stored with.
func (r *Repository) RecentCommitted(ctx context.Context, fromHeight uint64) (tasks []model.Task, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("recent_committed", err, started)
	}()

	rows, err := r.conn.Query(ctx, recentCommittedQuery, r.chain, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("query recent committed tasks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		t := model.Task{Status: model.TaskCommitted}
		if err = rows.Scan(&t.Height, &t.BlockHash, &t.Certain, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan committed task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate committed tasks: %w", err)
	}
	return tasks, nil
}
