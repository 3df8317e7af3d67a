package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

const insertAlertsQuery = `
INSERT INTO export_alerts (
	chain,
	kind,
	height,
	message,
	created_at
) VALUES`

// InsertAlerts appends alerts to the journal table.
func (r *Repository) InsertAlerts(ctx context.Context, alerts []model.Alert) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("insert_alerts", err, started)
	}()

	if len(alerts) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertAlertsQuery)
	if err != nil {
		return fmt.Errorf("prepare alerts batch: %w", err)
	}
	for _, a := range alerts {
		if err = batch.Append(r.chain, string(a.Kind), a.Height, a.Message, a.CreatedAt.UTC()); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append alert: %w", err)
		}
	}
	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert alerts: %w", err)
	}
	return nil
}
