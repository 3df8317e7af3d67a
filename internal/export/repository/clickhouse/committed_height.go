package clickhouse

import (
	"context"
	"fmt"
	"time"
)

const committedHeightQuery = `
WITH data AS (
    SELECT
        height,
        row_number() OVER (ORDER BY height) - 1 AS rn
    FROM (
        SELECT height
        FROM export_tasks
        WHERE chain = ? AND height >= ?
        GROUP BY height
        HAVING argMax(status, updated_at) = 'committed'
    )
)
SELECT count() AS committed, max(height) AS max_contiguous_height
FROM data
WHERE rn + ? = height`

// CommittedHeight returns the last height of the committed run starting at start.
// ok is false when start itself is not committed.
func (r *Repository) CommittedHeight(ctx context.Context, start uint64) (height uint64, ok bool, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("committed_height", err, started)
	}()

	rows, err := r.conn.Query(ctx, committedHeightQuery, r.chain, start, start)
	if err != nil {
		return 0, false, fmt.Errorf("query committed height: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	if !rows.Next() {
		return 0, false, fmt.Errorf("not found committed height")
	}
	var count uint64
	if err = rows.Scan(&count, &height); err != nil {
		return 0, false, fmt.Errorf("scan committed height: %w", err)
	}
	if err = rows.Err(); err != nil {
		return 0, false, fmt.Errorf("iterate committed height: %w", err)
	}
	return height, count > 0, nil
}
