package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// HeadSubscriber is implemented by websocket capable clients.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// HeadSignal emits a coalesced notification for every new head until ctx is done.
// The idle sleep of the loop uses it to wake up as soon as a block arrives.
func HeadSignal(ctx context.Context, sub HeadSubscriber, logger *zap.Logger) (<-chan struct{}, error) {
	headers := make(chan *types.Header, 16)
	subscription, err := sub.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("subscribe new heads: %w", err)
	}

	signal := make(chan struct{}, 1)
	go func() {
		defer subscription.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-subscription.Err():
				if err != nil {
					logger.Warn("head subscription ended", zap.Error(err))
				}
				return
			case header := <-headers:
				logger.Debug("new head", zap.Uint64("height", header.Number.Uint64()))
				select {
				case signal <- struct{}{}:
				default:
				}
			}
		}
	}()
	return signal, nil
}
