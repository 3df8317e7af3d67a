package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

const insertTasksQuery = `
INSERT INTO export_tasks (
	chain,
	height,
	status,
	block_hash,
	certain,
	updated_at
) VALUES`

// appendTasks writes a new version of every task. The newest updated_at wins on read.
func (r *Repository) appendTasks(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertTasksQuery)
	if err != nil {
		return fmt.Errorf("prepare tasks batch: %w", err)
	}

	now := time.Now().UTC()
	for _, t := range tasks {
		updated := t.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if err = batch.Append(
			r.chain,
			t.Height,
			string(t.Status),
			t.BlockHash,
			t.Certain,
			updated,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append task %d: %w", t.Height, err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert tasks: %w", err)
	}
	return nil
}

func scanHeights(rows driver.Rows) (heights []uint64, err error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var height uint64
		if err = rows.Scan(&height); err != nil {
			return nil, fmt.Errorf("scan height: %w", err)
		}
		heights = append(heights, height)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate heights: %w", err)
	}
	return heights, nil
}
