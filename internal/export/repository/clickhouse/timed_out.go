package clickhouse

import (
	"context"
	"fmt"
	"time"
)

const timedOutQuery = `
SELECT height
FROM export_tasks
WHERE chain = ?
GROUP BY height
HAVING argMax(status, updated_at) IN ('prepared', 'fetched') AND max(updated_at) < ?
ORDER BY height`

// TimedOut returns prepared or fetched heights whose last transition happened before olderThan.
func (r *Repository) TimedOut(ctx context.Context, olderThan time.Time) (heights []uint64, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("timed_out", err, started)
	}()

	rows, err := r.conn.Query(ctx, timedOutQuery, r.chain, olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("query timed out tasks: %w", err)
	}
	return scanHeights(rows)
}
