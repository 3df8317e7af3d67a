package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const rollbackFromQuery = `DELETE FROM export_tasks WHERE chain = ? AND height >= ?`

// RollbackFrom deletes every task at or above height. Deleting an empty range is a no-op.
func (r *Repository) RollbackFrom(ctx context.Context, height uint64) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("rollback_from", err, started)
	}()

	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"lightweight_deletes_sync": 2,
	}))
	if err = r.conn.Exec(ctx, rollbackFromQuery, r.chain, height); err != nil {
		return fmt.Errorf("delete tasks from %d: %w", height, err)
	}
	return nil
}
