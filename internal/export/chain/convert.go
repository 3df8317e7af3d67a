package chain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/pkg/safe"
)

func convertBlock(b *types.Block, signer types.Signer) (*model.Block, error) {
	if b == nil {
		return nil, fmt.Errorf("nil block: %w", ErrNotFound)
	}
	ts, err := safe.Int64(b.Time())
	if err != nil {
		return nil, fmt.Errorf("block time: %w", err)
	}

	block := &model.Block{
		Height:       b.NumberU64(),
		Hash:         b.Hash().Hex(),
		ParentHash:   b.ParentHash().Hex(),
		Timestamp:    time.Unix(ts, 0).UTC(),
		Miner:        b.Coinbase().Hex(),
		GasLimit:     b.GasLimit(),
		GasUsed:      b.GasUsed(),
		StateRoot:    b.Root().Hex(),
		TxRoot:       b.TxHash().Hex(),
		ReceiptRoot:  b.ReceiptHash().Hex(),
		ExtraData:    b.Extra(),
		Size:         b.Size(),
		Transactions: make([]model.Transaction, 0, len(b.Transactions())),
	}

	for i, tx := range b.Transactions() {
		converted, err := convertTransaction(tx, signer)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		converted.BlockHeight = block.Height
		converted.BlockHash = block.Hash
		converted.Index = uint(i)
		block.Transactions = append(block.Transactions, converted)
	}

	return block, nil
}

func convertTransaction(tx *types.Transaction, signer types.Signer) (model.Transaction, error) {
	if tx == nil {
		return model.Transaction{}, fmt.Errorf("nil transaction: %w", ErrNotFound)
	}
	from, err := types.Sender(signer, tx)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("recover sender of %s: %w", tx.Hash().Hex(), err)
	}

	converted := model.Transaction{
		Hash:     tx.Hash().Hex(),
		From:     from.Hex(),
		Nonce:    tx.Nonce(),
		Value:    tx.Value().String(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice().String(),
		Input:    tx.Data(),
		Type:     tx.Type(),
	}
	if to := tx.To(); to != nil {
		converted.To = to.Hex()
	}
	return converted, nil
}

func convertReceipt(r *types.Receipt) model.Receipt {
	receipt := model.Receipt{
		TxHash:            r.TxHash.Hex(),
		BlockHash:         r.BlockHash.Hex(),
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		CumulativeGasUsed: r.CumulativeGasUsed,
		Logs:              make([]model.Log, 0, len(r.Logs)),
	}
	if r.BlockNumber != nil {
		receipt.BlockHeight = r.BlockNumber.Uint64()
	}
	if r.ContractAddress != (common.Address{}) {
		receipt.ContractAddress = r.ContractAddress.Hex()
	}

	for _, l := range r.Logs {
		topics := make([]string, 0, len(l.Topics))
		for _, topic := range l.Topics {
			topics = append(topics, topic.Hex())
		}
		receipt.Logs = append(receipt.Logs, model.Log{
			Address: l.Address.Hex(),
			Topics:  topics,
			Data:    l.Data,
			Index:   l.Index,
		})
	}
	return receipt
}
