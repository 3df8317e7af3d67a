package clickhouse

import (
	"context"
	"fmt"
	"time"
)

const missingHeightsQuery = `
WITH toUInt64(?) AS lo, toUInt64(?) AS hi
SELECT lo + m.number AS height
FROM numbers(hi - lo + 1) AS m
LEFT ANTI JOIN (
	SELECT DISTINCT height - lo AS delta
	FROM export_tasks
	WHERE chain = ? AND height BETWEEN lo AND hi
) AS t ON t.delta = m.number
ORDER BY height
LIMIT ?`

// MissingHeights returns up to limit heights of [from, to] that have no task at all.
func (r *Repository) MissingHeights(ctx context.Context, from, to, limit uint64) (heights []uint64, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("missing_heights", err, started)
	}()

	if from > to || limit == 0 {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, missingHeightsQuery, from, to, r.chain, limit)
	if err != nil {
		return nil, fmt.Errorf("query missing heights: %w", err)
	}
	return scanHeights(rows)
}
