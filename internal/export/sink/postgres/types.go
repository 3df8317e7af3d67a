package postgres

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
	Querier interface {
		Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	}

	// TxRunner runs fn inside a single transaction, committing when fn returns nil.
	TxRunner interface {
		InTx(ctx context.Context, fn func(q Querier) error) error
	}

	// TableWriter stores one data type of a bundle.
	TableWriter interface {
		DataType() model.DataType
		Store(ctx context.Context, q Querier, bundle *model.BlockBundle) error
		RollbackFrom(ctx context.Context, q Querier, height uint64) error
	}

	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)
