package syncer

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	ChainClient interface {
		CurrentHeight(ctx context.Context) (uint64, error)
		BlockByHeight(ctx context.Context, height uint64) (*model.Block, error)
		BlockHash(ctx context.Context, height uint64) (string, error)
	}

	Decoder interface {
		Decode(ctx context.Context, block *model.Block) (*model.BlockBundle, error)
	}

	TaskPool interface {
		CommittedHeight(ctx context.Context, start uint64) (uint64, bool, error)
		NextHeight(ctx context.Context) (uint64, bool, error)
		Prepare(ctx context.Context, from, to uint64, certain bool) error
		FetchPrepared(ctx context.Context, limit uint64) ([]uint64, error)
		MarkCommitted(ctx context.Context, tasks []model.Task) error
		Requeue(ctx context.Context, heights []uint64) error
		TimedOut(ctx context.Context, olderThan time.Time) ([]uint64, error)
		MissingHeights(ctx context.Context, from, to, limit uint64) ([]uint64, error)
		RecentCommitted(ctx context.Context, fromHeight uint64) ([]model.Task, error)
		RollbackFrom(ctx context.Context, height uint64) error
	}

	// Storage is the sink fan-out.
	Storage interface {
		StoreBundle(ctx context.Context, bundle *model.BlockBundle) error
		// StoreContracts returns how many contracts could not be stored in every sink.
		StoreContracts(ctx context.Context, contracts []model.ContractInfo) int
	}

	// Rollbacker is a named participant of a rollback.
	Rollbacker interface {
		Name() string
		RollbackFrom(ctx context.Context, height uint64) error
	}

	ErrorQueue interface {
		Add(ctx context.Context, height uint64, cause error) error
		Due(ctx context.Context) ([]model.FailedBlock, error)
		Fail(ctx context.Context, height uint64, cause error) (model.FailedBlock, error)
		Resolve(ctx context.Context, height uint64) error
		Heights(ctx context.Context) ([]uint64, error)
		Stuck(ctx context.Context) ([]model.FailedBlock, error)
		RollbackFrom(ctx context.Context, height uint64) error
	}

	Alerts interface {
		Raise(ctx context.Context, a model.Alert)
	}

	ContractSource interface {
		Contracts() []model.ContractInfo
	}

	Metrics interface {
		ObserveCycle(outcome string, started time.Time)
		ObserveBlock(err error, started time.Time)
		ObserveBatch(heights int)
		SetCommittedHeight(height uint64)
		SetChainHeight(height uint64)
		ObserveFork()
		ObserveRollback(err error)
		SetStuckHeights(n int)
	}
)
