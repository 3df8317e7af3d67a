package sink

import (
	"context"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// Sink is an independent storage backend receiving every decoded bundle.
type Sink interface {
	Name() string
	StoreBundle(ctx context.Context, bundle *model.BlockBundle) error
	StoreContractInfo(ctx context.Context, info model.ContractInfo) error
	RollbackFrom(ctx context.Context, height uint64) error
}
