// Package postgres is the relational sink: one table per data type, one transaction per block.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"go.uber.org/zap"
)

const Name = "postgres"

type Sink struct {
	tx           TxRunner
	writers      []TableWriter
	contractInfo bool
	metrics      Metrics
	logger       *zap.Logger
}

// New builds the sink. Data types in disabled get no writer and never take part in rollback.
func New(tx TxRunner, disabled model.DataTypeSet, metrics Metrics, logger *zap.Logger) *Sink {
	var writers []TableWriter
	for _, w := range defaultWriters() {
		if disabled.Contains(w.DataType()) {
			continue
		}
		writers = append(writers, w)
	}
	return &Sink{
		tx:           tx,
		writers:      writers,
		contractInfo: !disabled.Contains(model.DataContractInfo),
		metrics:      metrics,
		logger:       logger.Named("postgresSink"),
	}
}

func (s *Sink) Name() string {
	return Name
}

// DataTypes lists the data types this sink writes, in write order.
func (s *Sink) DataTypes() []model.DataType {
	out := make([]model.DataType, 0, len(s.writers)+1)
	for _, w := range s.writers {
		out = append(out, w.DataType())
	}
	if s.contractInfo {
		out = append(out, model.DataContractInfo)
	}
	return out
}

// StoreBundle writes every enabled record type of the bundle in one transaction.
func (s *Sink) StoreBundle(ctx context.Context, bundle *model.BlockBundle) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("store_bundle", err, started)
	}()

	if len(s.writers) == 0 {
		return nil
	}
	err = s.tx.InTx(ctx, func(q Querier) error {
		for _, w := range s.writers {
			if err := w.Store(ctx, q, bundle); err != nil {
				return fmt.Errorf("store %s: %w", w.DataType(), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store block %d: %w", bundle.Height, err)
	}
	return nil
}

const upsertContractInfoQuery = `
INSERT INTO contract_info (contract_name, version, contract_address, abi, abi_hash, runtime_bin, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (contract_name, version) DO UPDATE SET
	contract_address = EXCLUDED.contract_address,
	abi = EXCLUDED.abi,
	abi_hash = EXCLUDED.abi_hash,
	runtime_bin = EXCLUDED.runtime_bin,
	updated_at = EXCLUDED.updated_at`

func (s *Sink) StoreContractInfo(ctx context.Context, info model.ContractInfo) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("store_contract_info", err, started)
	}()

	if !s.contractInfo {
		return nil
	}
	err = s.tx.InTx(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, upsertContractInfoQuery,
			info.Name, info.Version, info.Address, info.ABI, info.ABIHash, info.Binary)
		return err
	})
	if err != nil {
		return fmt.Errorf("store contract info %s: %w", info.Name, err)
	}
	return nil
}

// RollbackFrom deletes rows at or above height from every enabled table in one transaction.
func (s *Sink) RollbackFrom(ctx context.Context, height uint64) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("rollback_from", err, started)
	}()

	if len(s.writers) == 0 {
		return nil
	}
	err = s.tx.InTx(ctx, func(q Querier) error {
		for _, w := range s.writers {
			if err := w.RollbackFrom(ctx, q, height); err != nil {
				return fmt.Errorf("rollback %s: %w", w.DataType(), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rollback from %d: %w", height, err)
	}
	s.logger.Info("rolled back", zap.Uint64("from_height", height), zap.Int("tables", len(s.writers)))
	return nil
}
