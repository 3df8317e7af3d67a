// Package chain exposes the node capabilities the exporter needs over an EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the node does not know the requested object.
var ErrNotFound = errors.New("not found")

// RetryPolicy bounds the exponential backoff applied to every RPC call.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// Options configures a Client.
type Options struct {
	// RPS caps outgoing requests per second; zero disables limiting.
	RPS   int
	Retry RetryPolicy
}

// Client is a rate limited, retrying and instrumented chain client.
type Client struct {
	eth     EthClient
	signer  types.Signer
	metrics RPCMetrics
	limiter ratelimit.Limiter
	retry   RetryPolicy
	logger  *zap.Logger
}

// NewClient wraps eth. chainID selects the signer used to recover transaction senders.
func NewClient(eth EthClient, chainID *big.Int, metrics RPCMetrics, opts Options, logger *zap.Logger) (*Client, error) {
	if eth == nil {
		return nil, errors.New("eth client is required")
	}
	if chainID == nil {
		return nil, errors.New("chain id is required")
	}
	if metrics == nil {
		return nil, errors.New("rpc metrics is required")
	}
	limiter := ratelimit.NewUnlimited()
	if opts.RPS > 0 {
		limiter = ratelimit.New(opts.RPS)
	}
	return &Client{
		eth:     eth,
		signer:  types.LatestSignerForChainID(chainID),
		metrics: metrics,
		limiter: limiter,
		retry:   opts.Retry,
		logger:  logger.Named("chainClient"),
	}, nil
}

// BlockByHeight returns the block with its transactions.
func (c *Client) BlockByHeight(ctx context.Context, height uint64) (*model.Block, error) {
	block, err := call(ctx, c, "block_by_height", func(ctx context.Context) (*types.Block, error) {
		return c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", height, err)
	}
	converted, err := convertBlock(block, c.signer)
	if err != nil {
		return nil, fmt.Errorf("convert block %d: %w", height, err)
	}
	return converted, nil
}

// CurrentHeight returns the latest block number known to the node.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	height, err := call(ctx, c, "current_height", c.eth.BlockNumber)
	if err != nil {
		return 0, fmt.Errorf("fetch current height: %w", err)
	}
	return height, nil
}

// BlockHash returns the canonical hash at height using a header-only request.
func (c *Client) BlockHash(ctx context.Context, height uint64) (string, error) {
	header, err := call(ctx, c, "block_hash", func(ctx context.Context) (*types.Header, error) {
		return c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	})
	if err != nil {
		return "", fmt.Errorf("fetch header %d: %w", height, err)
	}
	return header.Hash().Hex(), nil
}

// Code returns the runtime bytecode deployed at address.
func (c *Client) Code(ctx context.Context, address string) ([]byte, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	code, err := call(ctx, c, "code", func(ctx context.Context) ([]byte, error) {
		return c.eth.CodeAt(ctx, common.HexToAddress(address), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch code %s: %w", address, err)
	}
	return code, nil
}

// TransactionByHash returns a transaction. Block fields are left empty.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*model.Transaction, error) {
	tx, err := call(ctx, c, "transaction_by_hash", func(ctx context.Context) (*types.Transaction, error) {
		tx, _, err := c.eth.TransactionByHash(ctx, common.HexToHash(hash))
		return tx, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", hash, err)
	}
	converted, err := convertTransaction(tx, c.signer)
	if err != nil {
		return nil, fmt.Errorf("convert transaction %s: %w", hash, err)
	}
	return &converted, nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*model.Receipt, error) {
	receipt, err := call(ctx, c, "transaction_receipt", func(ctx context.Context) (*types.Receipt, error) {
		return c.eth.TransactionReceipt(ctx, common.HexToHash(hash))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch receipt %s: %w", hash, err)
	}
	converted := convertReceipt(receipt)
	return &converted, nil
}

func call[T any](ctx context.Context, c *Client, operation string, fn func(context.Context) (T, error)) (res T, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe(operation, err, started)
	}()

	return backoff.RetryNotifyWithData(func() (T, error) {
		c.limiter.Take()
		v, callErr := fn(ctx)
		switch {
		case callErr == nil:
			return v, nil
		case errors.Is(callErr, ethereum.NotFound):
			return v, backoff.Permanent(ErrNotFound)
		case ctx.Err() != nil:
			return v, backoff.Permanent(callErr)
		default:
			return v, callErr
		}
	}, backoff.WithContext(c.newBackOff(), ctx), func(err error, next time.Duration) {
		c.metrics.ObserveRetry(operation)
		c.logger.Debug("rpc call failed, retrying",
			zap.String("operation", operation),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
}

// newBackOff returns a single-attempt policy when no retry budget is configured.
func (c *Client) newBackOff() backoff.BackOff {
	if c.retry.MaxElapsedTime <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		b.InitialInterval = c.retry.InitialInterval
	}
	if c.retry.MaxInterval > 0 {
		b.MaxInterval = c.retry.MaxInterval
	}
	b.MaxElapsedTime = c.retry.MaxElapsedTime
	return b
}
