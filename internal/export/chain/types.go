package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// EthClient is the subset of ethclient.Client used by Client.
	EthClient interface {
		BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
		HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
		BlockNumber(ctx context.Context) (uint64, error)
		CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
		TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	}

	// RPCMetrics records metrics for RPC calls.
	RPCMetrics interface {
		Observe(operation string, err error, started time.Time)
		ObserveRetry(operation string)
	}
)
