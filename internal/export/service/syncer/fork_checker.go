package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/chain"
	"go.uber.org/zap"
)

// forkChecker compares the hashes recorded at commit time with the live chain.
type forkChecker struct {
	pool       TaskPool
	chain      ChainClient
	start      uint64
	forkWindow uint64
	depth      uint64
	logger     *zap.Logger
}

// Check returns the lowest committed height inside the fork window whose block changed.
func (f *forkChecker) Check(ctx context.Context, chainHeight uint64) (uint64, bool, error) {
	from := f.start
	if chainHeight > f.forkWindow && chainHeight-f.forkWindow > from {
		from = chainHeight - f.forkWindow
	}
	tasks, err := f.pool.RecentCommitted(ctx, from)
	if err != nil {
		return 0, false, fmt.Errorf("load recent commits from %d: %w", from, err)
	}
	if uint64(len(tasks)) > f.depth {
		tasks = tasks[uint64(len(tasks))-f.depth:]
	}

	for _, t := range tasks {
		if t.BlockHash == "" {
			continue
		}
		hash, err := f.chain.BlockHash(ctx, t.Height)
		if errors.Is(err, chain.ErrNotFound) {
			f.logger.Warn("committed block no longer on chain", zap.Uint64("height", t.Height))
			return t.Height, true, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("fetch block hash %d: %w", t.Height, err)
		}
		if !strings.EqualFold(hash, t.BlockHash) {
			f.logger.Warn("fork detected",
				zap.Uint64("height", t.Height),
				zap.String("stored_hash", t.BlockHash),
				zap.String("chain_hash", hash),
			)
			return t.Height, true, nil
		}
	}
	return 0, false, nil
}
