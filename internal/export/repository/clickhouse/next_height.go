package clickhouse

import (
	"context"
	"fmt"
	"time"
)

const nextHeightQuery = `
SELECT count() AS tasks, max(height) AS max_height
FROM export_tasks
WHERE chain = ?`

// NextHeight returns the height following the highest task ever prepared.
// ok is false when the pool is empty.
func (r *Repository) NextHeight(ctx context.Context) (next uint64, ok bool, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("next_height", err, started)
	}()

	rows, err := r.conn.Query(ctx, nextHeightQuery, r.chain)
	if err != nil {
		return 0, false, fmt.Errorf("query next height: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	if !rows.Next() {
		return 0, false, fmt.Errorf("not found next height")
	}
	var count, height uint64
	if err = rows.Scan(&count, &height); err != nil {
		return 0, false, fmt.Errorf("scan next height: %w", err)
	}
	if err = rows.Err(); err != nil {
		return 0, false, fmt.Errorf("iterate next height: %w", err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return height + 1, true, nil
}
