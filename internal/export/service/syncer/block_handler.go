package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/pkg/workerpool"
	"go.uber.org/zap"
)

type blockResult struct {
	height uint64
	hash   string
	err    error
}

// blockHandler fetches, decodes and stores heights on a bounded worker pool.
// A failing height never aborts the others.
type blockHandler struct {
	chain   ChainClient
	decoder Decoder
	storage Storage
	workers int
	metrics Metrics
	logger  *zap.Logger
}

// Handle returns one result per height, in input order.
func (h *blockHandler) Handle(ctx context.Context, heights []uint64) []blockResult {
	results := make([]*blockResult, len(heights))
	for i, height := range heights {
		results[i] = &blockResult{height: height}
	}

	errs := workerpool.Collect(ctx, h.workers, results, func(ctx context.Context, r *blockResult) error {
		r.hash, r.err = h.handle(ctx, r.height)
		return r.err
	})

	out := make([]blockResult, len(results))
	for i, r := range results {
		out[i] = *r
		// heights skipped after cancellation only carry the context error
		if out[i].err == nil {
			out[i].err = errs[i]
		}
	}
	return out
}

func (h *blockHandler) handle(ctx context.Context, height uint64) (hash string, err error) {
	started := time.Now()
	defer func() {
		h.metrics.ObserveBlock(err, started)
	}()

	block, err := h.chain.BlockByHeight(ctx, height)
	if err != nil {
		return "", fmt.Errorf("fetch block %d: %w", height, err)
	}
	bundle, err := h.decoder.Decode(ctx, block)
	if err != nil {
		return "", fmt.Errorf("decode block %d: %w", height, err)
	}
	if err := h.storage.StoreBundle(ctx, bundle); err != nil {
		return "", fmt.Errorf("store block %d: %w", height, err)
	}

	h.logger.Debug("block stored",
		zap.Uint64("height", height),
		zap.String("hash", block.Hash),
		zap.Int("txs", len(block.Transactions)),
		zap.Int("events", len(bundle.Events)),
	)
	return block.Hash, nil
}
