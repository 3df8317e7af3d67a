package sink

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/sink/postgres"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/sink/search"
	"github.com/goodnatureofminers/blockexport-backend/internal/metrics"
	"go.uber.org/zap"
)

// Config selects the sinks to build. A sink is built only when its store is configured and enabled.
type Config struct {
	DryRun bool

	PostgresEnabled  bool
	PostgresDSN      string
	PostgresMaxConns int32

	SearchEnabled   bool
	SearchAddresses []string
	SearchUsername  string
	SearchPassword  string
	SearchWorkers   int

	Disabled   model.DataTypeSet
	IndexNames []string
}

func (c Config) postgres() bool {
	return c.PostgresEnabled && c.PostgresDSN != ""
}

func (c Config) search() bool {
	return c.SearchEnabled && len(c.SearchAddresses) > 0
}

// Builder evaluates the sink configuration once at startup.
type Builder struct {
	cfg    Config
	logger *zap.Logger

	connectPostgres func(ctx context.Context, dsn string, maxConns int32) (postgres.TxRunner, func(), error)
	connectSearch   func(ctx context.Context, addresses []string, username, password string) (search.Transport, error)
}

func NewBuilder(cfg Config, logger *zap.Logger) *Builder {
	return &Builder{
		cfg:    cfg,
		logger: logger,
		connectPostgres: func(ctx context.Context, dsn string, maxConns int32) (postgres.TxRunner, func(), error) {
			pool, err := postgres.Connect(ctx, dsn, maxConns)
			if err != nil {
				return nil, nil, err
			}
			return postgres.NewPoolRunner(pool), pool.Close, nil
		},
		connectSearch: func(ctx context.Context, addresses []string, username, password string) (search.Transport, error) {
			return search.Connect(ctx, addresses, username, password)
		},
	}
}

// Build connects the enabled sinks and returns them as a fan-out in a fixed order:
// relational first, search second. The returned close function releases every connection.
func (b *Builder) Build(ctx context.Context) (*Fanout, func(), error) {
	var (
		sinks   []Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if b.cfg.DryRun {
		b.logger.Warn("dry run, bundles are decoded but not stored")
		return NewFanout(b.logger), closeAll, nil
	}

	if b.cfg.postgres() {
		tx, closeFn, err := b.connectPostgres(ctx, b.cfg.PostgresDSN, b.cfg.PostgresMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("build postgres sink: %w", err)
		}
		closers = append(closers, closeFn)
		sinks = append(sinks, postgres.New(tx, b.cfg.Disabled, metrics.NewSink(postgres.Name), b.logger))
	}

	if b.cfg.search() {
		transport, err := b.connectSearch(ctx, b.cfg.SearchAddresses, b.cfg.SearchUsername, b.cfg.SearchPassword)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("build search sink: %w", err)
		}
		s, err := search.New(ctx, transport, b.cfg.IndexNames, b.cfg.Disabled, b.cfg.SearchWorkers, metrics.NewSink(search.Name), b.logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("build search sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	fanout := NewFanout(b.logger, sinks...)
	b.logger.Info("sinks built",
		zap.Strings("sinks", fanout.Names()),
		zap.Stringer("disabled", b.cfg.Disabled),
	)
	return fanout, closeAll, nil
}
