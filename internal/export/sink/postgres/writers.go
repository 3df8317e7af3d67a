package postgres

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/pkg/safe"
)

type writer struct {
	dataType model.DataType
	table    string
	store    func(ctx context.Context, q Querier, bundle *model.BlockBundle) error
}

func (w writer) DataType() model.DataType {
	return w.dataType
}

func (w writer) Store(ctx context.Context, q Querier, bundle *model.BlockBundle) error {
	return w.store(ctx, q, bundle)
}

func (w writer) RollbackFrom(ctx context.Context, q Querier, height uint64) error {
	h, err := safe.Int64(height)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE block_height >= $1", w.table), h); err != nil {
		return fmt.Errorf("delete from %s: %w", w.table, err)
	}
	return nil
}

func defaultWriters() []TableWriter {
	return []TableWriter{
		writer{dataType: model.DataBlockDetail, table: "block_detail_info", store: storeBlockDetail},
		writer{dataType: model.DataBlockRaw, table: "block_raw_data", store: storeBlockRaw},
		writer{dataType: model.DataTxRaw, table: "tx_raw_data", store: storeTxRaw},
		writer{dataType: model.DataTxReceiptRaw, table: "tx_receipt_raw_data", store: storeTxReceipts},
		writer{dataType: model.DataBlockTxDetail, table: "block_tx_detail_info", store: storeBlockTxDetails},
		writer{dataType: model.DataDeployedAccount, table: "deployed_account_info", store: storeDeployedAccounts},
		writer{dataType: model.DataContractEvent, table: "contract_event_data", store: storeEvents},
		writer{dataType: model.DataContractMethod, table: "contract_method_data", store: storeMethods},
	}
}

const upsertBlockDetailQuery = `
INSERT INTO block_detail_info (block_height, block_hash, parent_hash, block_timestamp, tx_count, gas_used, miner)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (block_height) DO UPDATE SET
	block_hash = EXCLUDED.block_hash,
	parent_hash = EXCLUDED.parent_hash,
	block_timestamp = EXCLUDED.block_timestamp,
	tx_count = EXCLUDED.tx_count,
	gas_used = EXCLUDED.gas_used,
	miner = EXCLUDED.miner`

func storeBlockDetail(ctx context.Context, q Querier, b *model.BlockBundle) error {
	d := b.BlockDetail
	height, err := safe.Int64(d.Height)
	if err != nil {
		return err
	}
	gasUsed, err := safe.Int64(d.GasUsed)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, upsertBlockDetailQuery, height, d.Hash, d.ParentHash, d.Timestamp, d.TxCount, gasUsed, d.Miner)
	return err
}

const upsertBlockRawQuery = `
INSERT INTO block_raw_data (block_height, block_hash, data)
VALUES ($1, $2, $3)
ON CONFLICT (block_height) DO UPDATE SET
	block_hash = EXCLUDED.block_hash,
	data = EXCLUDED.data`

func storeBlockRaw(ctx context.Context, q Querier, b *model.BlockBundle) error {
	height, err := safe.Int64(b.BlockRaw.Height)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, upsertBlockRawQuery, height, b.BlockRaw.Hash, b.BlockRaw)
	return err
}

const upsertTxRawQuery = `
INSERT INTO tx_raw_data (tx_hash, block_height, data)
VALUES ($1, $2, $3)
ON CONFLICT (tx_hash) DO UPDATE SET
	block_height = EXCLUDED.block_height,
	data = EXCLUDED.data`

func storeTxRaw(ctx context.Context, q Querier, b *model.BlockBundle) error {
	height, err := safe.Int64(b.Height)
	if err != nil {
		return err
	}
	for _, tx := range b.TxRaw {
		if _, err := q.Exec(ctx, upsertTxRawQuery, tx.TxHash, height, tx); err != nil {
			return fmt.Errorf("tx %s: %w", tx.TxHash, err)
		}
	}
	return nil
}

const upsertTxReceiptQuery = `
INSERT INTO tx_receipt_raw_data (tx_hash, block_height, data)
VALUES ($1, $2, $3)
ON CONFLICT (tx_hash) DO UPDATE SET
	block_height = EXCLUDED.block_height,
	data = EXCLUDED.data`

func storeTxReceipts(ctx context.Context, q Querier, b *model.BlockBundle) error {
	height, err := safe.Int64(b.Height)
	if err != nil {
		return err
	}
	for _, r := range b.TxReceipts {
		if _, err := q.Exec(ctx, upsertTxReceiptQuery, r.TxHash, height, r); err != nil {
			return fmt.Errorf("receipt %s: %w", r.TxHash, err)
		}
	}
	return nil
}

const upsertBlockTxDetailQuery = `
INSERT INTO block_tx_detail_info (tx_hash, block_height, from_address, to_address, contract_name, method_name, block_timestamp)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (tx_hash) DO UPDATE SET
	block_height = EXCLUDED.block_height,
	from_address = EXCLUDED.from_address,
	to_address = EXCLUDED.to_address,
	contract_name = EXCLUDED.contract_name,
	method_name = EXCLUDED.method_name,
	block_timestamp = EXCLUDED.block_timestamp`

func storeBlockTxDetails(ctx context.Context, q Querier, b *model.BlockBundle) error {
	height, err := safe.Int64(b.Height)
	if err != nil {
		return err
	}
	for _, d := range b.BlockTxDetails {
		if _, err := q.Exec(ctx, upsertBlockTxDetailQuery,
			d.TxHash, height, d.From, d.To, d.ContractName, d.MethodName, d.Timestamp); err != nil {
			return fmt.Errorf("tx detail %s: %w", d.TxHash, err)
		}
	}
	return nil
}

const upsertDeployedAccountQuery = `
INSERT INTO deployed_account_info (contract_address, block_height, tx_hash, contract_name, code_hash, block_timestamp)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (contract_address) DO UPDATE SET
	block_height = EXCLUDED.block_height,
	tx_hash = EXCLUDED.tx_hash,
	contract_name = EXCLUDED.contract_name,
	code_hash = EXCLUDED.code_hash,
	block_timestamp = EXCLUDED.block_timestamp`

func storeDeployedAccounts(ctx context.Context, q Querier, b *model.BlockBundle) error {
	height, err := safe.Int64(b.Height)
	if err != nil {
		return err
	}
	for _, a := range b.DeployedAccounts {
		if _, err := q.Exec(ctx, upsertDeployedAccountQuery,
			a.Address, height, a.TxHash, a.ContractName, a.CodeHash, a.Timestamp); err != nil {
			return fmt.Errorf("deployed account %s: %w", a.Address, err)
		}
	}
	return nil
}

const upsertEventQuery = `
INSERT INTO contract_event_data (tx_hash, log_index, table_name, block_height, contract_name, contract_address, event_name, params, block_timestamp)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tx_hash, log_index) DO UPDATE SET
	table_name = EXCLUDED.table_name,
	block_height = EXCLUDED.block_height,
	contract_name = EXCLUDED.contract_name,
	contract_address = EXCLUDED.contract_address,
	event_name = EXCLUDED.event_name,
	params = EXCLUDED.params,
	block_timestamp = EXCLUDED.block_timestamp`

func storeEvents(ctx context.Context, q Querier, b *model.BlockBundle) error {
	height, err := safe.Int64(b.Height)
	if err != nil {
		return err
	}
	for _, e := range b.Events {
		logIndex, err := safe.Int64(e.LogIndex)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, upsertEventQuery,
			e.TxHash, logIndex, e.Table, height, e.ContractName, e.ContractAddress, e.EventName, e.Params, e.Timestamp); err != nil {
			return fmt.Errorf("event %s/%d: %w", e.TxHash, e.LogIndex, err)
		}
	}
	return nil
}

const upsertMethodQuery = `
INSERT INTO contract_method_data (tx_hash, table_name, block_height, contract_name, contract_address, method_name, from_address, params, block_timestamp)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tx_hash) DO UPDATE SET
	table_name = EXCLUDED.table_name,
	block_height = EXCLUDED.block_height,
	contract_name = EXCLUDED.contract_name,
	contract_address = EXCLUDED.contract_address,
	method_name = EXCLUDED.method_name,
	from_address = EXCLUDED.from_address,
	params = EXCLUDED.params,
	block_timestamp = EXCLUDED.block_timestamp`

func storeMethods(ctx context.Context, q Querier, b *model.BlockBundle) error {
	height, err := safe.Int64(b.Height)
	if err != nil {
		return err
	}
	for _, m := range b.Methods {
		if _, err := q.Exec(ctx, upsertMethodQuery,
			m.TxHash, m.Table, height, m.ContractName, m.ContractAddress, m.MethodName, m.From, m.Params, m.Timestamp); err != nil {
			return fmt.Errorf("method %s: %w", m.TxHash, err)
		}
	}
	return nil
}
