// Package decoder turns raw blocks into bundles ready for the sinks.
package decoder

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/contract"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReceiptWorkers = 8

	unknownAddressTTL      = time.Hour
	unknownAddressCapacity = 100_000
)

// Decoder fetches receipts for a block and decodes its calls and events with the registered ABIs.
type Decoder struct {
	client   ChainClient
	registry Registry
	workers  int
	logger   *zap.Logger

	// addresses whose code matched no registered contract
	unknown *ttlcache.Cache[string, struct{}]
}

// New creates a Decoder. workers bounds concurrent receipt fetches per block.
func New(client ChainClient, registry Registry, workers int, logger *zap.Logger) *Decoder {
	if workers < 1 {
		workers = defaultReceiptWorkers
	}
	return &Decoder{
		client:   client,
		registry: registry,
		workers:  workers,
		logger:   logger.Named("decoder"),
		unknown:  ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](unknownAddressTTL),
			ttlcache.WithCapacity[string, struct{}](unknownAddressCapacity),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// Decode builds the bundle of block. Any RPC failure fails the whole block.
func (d *Decoder) Decode(ctx context.Context, block *model.Block) (*model.BlockBundle, error) {
	receipts, err := d.fetchReceipts(ctx, block)
	if err != nil {
		return nil, err
	}

	bundle := &model.BlockBundle{
		Height:    block.Height,
		BlockHash: block.Hash,
		BlockDetail: model.BlockDetail{
			Height:     block.Height,
			Hash:       block.Hash,
			ParentHash: block.ParentHash,
			Timestamp:  block.Timestamp,
			TxCount:    len(block.Transactions),
			GasUsed:    block.GasUsed,
			Miner:      block.Miner,
		},
		BlockRaw: model.BlockRawData{
			Height:      block.Height,
			Hash:        block.Hash,
			ParentHash:  block.ParentHash,
			Timestamp:   block.Timestamp,
			Miner:       block.Miner,
			GasLimit:    block.GasLimit,
			GasUsed:     block.GasUsed,
			StateRoot:   block.StateRoot,
			TxRoot:      block.TxRoot,
			ReceiptRoot: block.ReceiptRoot,
			ExtraData:   block.ExtraData,
			Size:        block.Size,
			TxHashes:    make([]string, 0, len(block.Transactions)),
		},
	}

	// deployments first so that constructor events of a registered contract decode in the same block
	for i, tx := range block.Transactions {
		if receipts[i].ContractAddress == "" {
			continue
		}
		account, err := d.deployedAccount(ctx, block, tx, receipts[i])
		if err != nil {
			return nil, err
		}
		bundle.DeployedAccounts = append(bundle.DeployedAccounts, account)
	}

	for i, tx := range block.Transactions {
		receipt := receipts[i]
		bundle.BlockRaw.TxHashes = append(bundle.BlockRaw.TxHashes, tx.Hash)
		bundle.TxRaw = append(bundle.TxRaw, model.TxRawData{
			TxHash:    tx.Hash,
			Height:    block.Height,
			BlockHash: block.Hash,
			TxIndex:   tx.Index,
			From:      tx.From,
			To:        tx.To,
			Nonce:     tx.Nonce,
			Value:     tx.Value,
			Gas:       tx.Gas,
			GasPrice:  tx.GasPrice,
			Input:     tx.Input,
			Timestamp: block.Timestamp,
		})
		bundle.TxReceipts = append(bundle.TxReceipts, model.TxReceiptRawData{
			TxHash:            tx.Hash,
			Height:            block.Height,
			Status:            receipt.Status,
			GasUsed:           receipt.GasUsed,
			CumulativeGasUsed: receipt.CumulativeGasUsed,
			ContractAddress:   receipt.ContractAddress,
			Logs:              receipt.Logs,
			Timestamp:         block.Timestamp,
		})

		detail := model.BlockTxDetail{
			TxHash:    tx.Hash,
			Height:    block.Height,
			From:      tx.From,
			To:        tx.To,
			Timestamp: block.Timestamp,
		}
		if !tx.IsContractCreation() {
			c, err := d.contractAt(ctx, tx.To)
			if err != nil {
				return nil, fmt.Errorf("identify contract of tx %s in block %d: %w", tx.Hash, block.Height, err)
			}
			if c != nil {
				detail.ContractName = c.Info.Name
				if method, ok := d.decodeMethod(block, tx, c); ok {
					detail.MethodName = method.MethodName
					bundle.Methods = append(bundle.Methods, method)
				}
			}
		}
		bundle.BlockTxDetails = append(bundle.BlockTxDetails, detail)

		for _, l := range receipt.Logs {
			if len(l.Topics) == 0 {
				continue
			}
			c, err := d.contractAt(ctx, l.Address)
			if err != nil {
				return nil, fmt.Errorf("identify emitter of log %d in block %d: %w", l.Index, block.Height, err)
			}
			if c == nil {
				continue
			}
			if event, ok := d.decodeEvent(block, tx, l, c); ok {
				bundle.Events = append(bundle.Events, event)
			}
		}
	}
	return bundle, nil
}

// contractAt returns the registered contract deployed at address, or nil. Addresses missing from
// the registry are identified by their runtime code, so the answer does not depend on which
// deployment blocks were decoded before.
func (d *Decoder) contractAt(ctx context.Context, address string) (*contract.Contract, error) {
	if c, ok := d.registry.ByAddress(address); ok {
		return c, nil
	}
	if !common.IsHexAddress(address) || !d.registry.HasRuntimeCode() {
		return nil, nil
	}
	key := common.HexToAddress(address).Hex()
	if d.unknown.Get(key) != nil {
		return nil, nil
	}

	code, err := d.client.Code(ctx, key)
	if err != nil {
		return nil, err
	}
	c, ok := d.registry.ByCode(code)
	if !ok {
		d.unknown.Set(key, struct{}{}, ttlcache.DefaultTTL)
		return nil, nil
	}
	if err := d.registry.Register(key, c.Info.Name); err != nil {
		return nil, fmt.Errorf("register contract %s: %w", key, err)
	}
	d.logger.Info("identified contract by code", zap.String("contract", c.Info.Name), zap.String("address", key))
	return c, nil
}

func (d *Decoder) fetchReceipts(ctx context.Context, block *model.Block) ([]*model.Receipt, error) {
	receipts := make([]*model.Receipt, len(block.Transactions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, tx := range block.Transactions {
		g.Go(func() error {
			r, err := d.client.TransactionReceipt(gctx, tx.Hash)
			if err != nil {
				return fmt.Errorf("fetch receipt %s of block %d: %w", tx.Hash, block.Height, err)
			}
			receipts[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (d *Decoder) deployedAccount(ctx context.Context, block *model.Block, tx model.Transaction, receipt *model.Receipt) (model.DeployedAccount, error) {
	code, err := d.client.Code(ctx, receipt.ContractAddress)
	if err != nil {
		return model.DeployedAccount{}, fmt.Errorf("fetch code of deployed contract in block %d: %w", block.Height, err)
	}
	account := model.DeployedAccount{
		Address:   receipt.ContractAddress,
		Height:    block.Height,
		TxHash:    tx.Hash,
		CodeHash:  crypto.Keccak256Hash(code).Hex(),
		Timestamp: block.Timestamp,
	}
	if c, ok := d.registry.ByCode(code); ok {
		account.ContractName = c.Info.Name
		if err := d.registry.Register(receipt.ContractAddress, c.Info.Name); err != nil {
			return model.DeployedAccount{}, fmt.Errorf("register deployed contract %s: %w", receipt.ContractAddress, err)
		}
		d.logger.Info("registered deployed contract",
			zap.String("contract", c.Info.Name),
			zap.String("address", receipt.ContractAddress),
			zap.Uint64("height", block.Height))
	}
	return account, nil
}

func (d *Decoder) decodeMethod(block *model.Block, tx model.Transaction, c *contract.Contract) (model.DecodedMethod, bool) {
	if len(tx.Input) < 4 {
		return model.DecodedMethod{}, false
	}
	method, err := c.ABI.MethodById(tx.Input[:4])
	if err != nil {
		d.logger.Debug("unknown method selector", zap.String("tx", tx.Hash), zap.String("contract", c.Info.Name))
		return model.DecodedMethod{}, false
	}
	if method.IsConstant() {
		return model.DecodedMethod{}, false
	}
	params := map[string]any{}
	if err := method.Inputs.UnpackIntoMap(params, tx.Input[4:]); err != nil {
		d.logger.Debug("unpack method input", zap.String("tx", tx.Hash), zap.String("method", method.RawName), zap.Error(err))
		return model.DecodedMethod{}, false
	}
	return model.DecodedMethod{
		Table:           contract.MethodTable(c.Info.Name, method.RawName),
		TxHash:          tx.Hash,
		Height:          block.Height,
		ContractName:    c.Info.Name,
		ContractAddress: tx.To,
		MethodName:      method.RawName,
		From:            tx.From,
		Params:          normalizeParams(params),
		Timestamp:       block.Timestamp,
	}, true
}

func (d *Decoder) decodeEvent(block *model.Block, tx model.Transaction, l model.Log, c *contract.Contract) (model.DecodedEvent, bool) {
	event, err := c.ABI.EventByID(common.HexToHash(l.Topics[0]))
	if err != nil {
		d.logger.Debug("unknown event topic", zap.String("tx", tx.Hash), zap.String("contract", c.Info.Name))
		return model.DecodedEvent{}, false
	}

	params := map[string]any{}
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	topics := make([]common.Hash, 0, len(l.Topics)-1)
	for _, t := range l.Topics[1:] {
		topics = append(topics, common.HexToHash(t))
	}
	if err := abi.ParseTopicsIntoMap(params, indexed, topics); err != nil {
		d.logger.Debug("parse event topics", zap.String("tx", tx.Hash), zap.String("event", event.RawName), zap.Error(err))
		return model.DecodedEvent{}, false
	}
	if len(event.Inputs.NonIndexed()) > 0 {
		if err := event.Inputs.UnpackIntoMap(params, l.Data); err != nil {
			d.logger.Debug("unpack event data", zap.String("tx", tx.Hash), zap.String("event", event.RawName), zap.Error(err))
			return model.DecodedEvent{}, false
		}
	}
	return model.DecodedEvent{
		Table:           contract.EventTable(c.Info.Name, event.RawName),
		TxHash:          tx.Hash,
		LogIndex:        l.Index,
		Height:          block.Height,
		ContractName:    c.Info.Name,
		ContractAddress: l.Address,
		EventName:       event.RawName,
		Params:          normalizeParams(params),
		Timestamp:       block.Timestamp,
	}, true
}
