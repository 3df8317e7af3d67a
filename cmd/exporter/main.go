package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/alert"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/chain"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/contract"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/decoder"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/errqueue"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/repository/clickhouse"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/service/syncer"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/sink"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/taskpool"
	"github.com/goodnatureofminers/blockexport-backend/internal/metrics"
	"github.com/goodnatureofminers/blockexport-backend/internal/transport"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Chain     string `long:"chain" env:"EXPORTER_CHAIN" description:"chain name, scopes task pool and error queue keys" required:"true"`
	LogFormat string `long:"log-format" env:"EXPORTER_LOG_FORMAT" description:"console or json" default:"console"`

	RPCURL             string        `long:"rpc-url" env:"EXPORTER_RPC_URL" description:"node JSON-RPC endpoint (http or ws)" default:"http://127.0.0.1:8545"`
	RPCRPS             int           `long:"rpc-rps" env:"EXPORTER_RPC_RPS" description:"max RPC requests per second, 0 disables limiting" default:"50"`
	RPCInitialInterval time.Duration `long:"rpc-initial-interval" env:"EXPORTER_RPC_INITIAL_INTERVAL" description:"first RPC retry delay" default:"500ms"`
	RPCMaxInterval     time.Duration `long:"rpc-max-interval" env:"EXPORTER_RPC_MAX_INTERVAL" description:"max RPC retry delay" default:"10s"`
	RPCMaxElapsed      time.Duration `long:"rpc-max-elapsed" env:"EXPORTER_RPC_MAX_ELAPSED" description:"give up retrying an RPC call after" default:"2m"`
	HeadSubscribe      bool          `long:"head-subscribe" env:"EXPORTER_HEAD_SUBSCRIBE" description:"wake the idle loop on new heads (ws endpoints only)"`

	StartHeight    uint64        `long:"start-height" env:"EXPORTER_START_HEIGHT" description:"first height to export"`
	BatchUnit      uint64        `long:"batch-unit" env:"EXPORTER_BATCH_UNIT" description:"heights per cycle" default:"100"`
	ForkWindow     uint64        `long:"fork-window" env:"EXPORTER_FORK_WINDOW" description:"blocks below the tip where reorganizations are checked" default:"12"`
	ForkCheckDepth uint64        `long:"fork-check-depth" env:"EXPORTER_FORK_CHECK_DEPTH" description:"committed heights re-fetched per fork check" default:"12"`
	Frequency      time.Duration `long:"frequency" env:"EXPORTER_FREQUENCY" description:"idle poll interval" default:"5s"`
	ErrorBackoff   time.Duration `long:"error-backoff" env:"EXPORTER_ERROR_BACKOFF" description:"sleep after a failed cycle" default:"60s"`
	TaskTimeout    time.Duration `long:"task-timeout" env:"EXPORTER_TASK_TIMEOUT" description:"requeue tasks untouched for this long" default:"10m"`
	ShutdownGrace  time.Duration `long:"shutdown-grace" env:"EXPORTER_SHUTDOWN_GRACE" description:"time an in-flight batch may keep running after stop" default:"30s"`
	MaxRetries     int           `long:"max-retries" env:"EXPORTER_MAX_RETRIES" description:"retries before a failed height is parked as stuck" default:"5"`
	RetryInitial   time.Duration `long:"retry-initial-interval" env:"EXPORTER_RETRY_INITIAL_INTERVAL" description:"delay before the first retry of a failed height, doubled per attempt" default:"10s"`
	RetryMax       time.Duration `long:"retry-max-interval" env:"EXPORTER_RETRY_MAX_INTERVAL" description:"max delay between retries of a failed height" default:"5m"`
	StuckRetry     time.Duration `long:"stuck-retry-interval" env:"EXPORTER_STUCK_RETRY_INTERVAL" description:"delay between retries of a stuck height" default:"30m"`
	Workers        int           `long:"workers" env:"EXPORTER_WORKERS" description:"heights handled concurrently" default:"8"`
	DecodeWorkers  int           `long:"decode-workers" env:"EXPORTER_DECODE_WORKERS" description:"receipt fetches per block" default:"8"`
	GapCheckLimit  uint64        `long:"gap-check-limit" env:"EXPORTER_GAP_CHECK_LIMIT" description:"max missing heights re-prepared per cycle" default:"1000"`
	MaxPending     int           `long:"max-pending-batches" env:"EXPORTER_MAX_PENDING_BATCHES" description:"batches stored above an uncommitted height before new work is held back" default:"10"`

	ContractsFile     string `long:"contracts-file" env:"EXPORTER_CONTRACTS_FILE" description:"contract registry YAML"`
	DisabledDataTypes string `long:"disabled-data-types" env:"EXPORTER_DISABLED_DATA_TYPES" description:"comma separated data types that are not stored"`
	DryRun            bool   `long:"dry-run" env:"EXPORTER_DRY_RUN" description:"crawl and decode without storing"`

	TaskPool      string `long:"task-pool" env:"EXPORTER_TASK_POOL" description:"task pool store" choice:"clickhouse" choice:"memory" default:"clickhouse"`
	ClickhouseDSN string `long:"clickhouse-dsn" env:"EXPORTER_CLICKHOUSE_DSN" description:"ClickHouse DSN for the task pool and alert journal"`

	PostgresDSN      string `long:"postgres-dsn" env:"EXPORTER_POSTGRES_DSN" description:"relational sink DSN"`
	PostgresDisabled bool   `long:"postgres-disabled" env:"EXPORTER_POSTGRES_DISABLED" description:"skip the relational sink even when a DSN is set"`
	PostgresMaxConns int32  `long:"postgres-max-conns" env:"EXPORTER_POSTGRES_MAX_CONNS" description:"relational sink pool size" default:"10"`

	ESAddresses []string `long:"es-addresses" env:"EXPORTER_ES_ADDRESSES" env-delim:"," description:"search cluster addresses"`
	ESUsername  string   `long:"es-username" env:"EXPORTER_ES_USERNAME" description:"search cluster username"`
	ESPassword  string   `long:"es-password" env:"EXPORTER_ES_PASSWORD" description:"search cluster password"`
	ESDisabled  bool     `long:"es-disabled" env:"EXPORTER_ES_DISABLED" description:"skip the search sink even when addresses are set"`
	ESWorkers   int      `long:"es-workers" env:"EXPORTER_ES_WORKERS" description:"concurrent index checks at startup" default:"4"`

	ErrorQueue    string        `long:"error-queue" env:"EXPORTER_ERROR_QUEUE" description:"failed block store" choice:"memory" choice:"redis" default:"memory"`
	RedisURL      string        `long:"redis-url" env:"EXPORTER_REDIS_URL" description:"redis URL for the error queue" default:"redis://localhost:6379/0"`
	ErrorEntryTTL time.Duration `long:"error-entry-ttl" env:"EXPORTER_ERROR_ENTRY_TTL" description:"lifetime of a failed block entry in redis" default:"24h"`

	MetricsAddr string `long:"metrics-addr" env:"EXPORTER_METRICS_ADDR" description:"metrics and status listen address" default:":9100"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, syncer.ErrInvalidBatchUnit) {
			logger.Fatal("invalid configuration", zap.Error(err))
		}
		logger.Fatal("exporter failed", zap.Error(err))
	}
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	logger = logger.With(zap.String("chain", cfg.Chain))

	syncCfg := syncer.Config{
		Chain:          cfg.Chain,
		StartHeight:    cfg.StartHeight,
		BatchUnit:      cfg.BatchUnit,
		ForkWindow:     cfg.ForkWindow,
		ForkCheckDepth: cfg.ForkCheckDepth,
		Frequency:      cfg.Frequency,
		ErrorBackoff:   cfg.ErrorBackoff,
		TaskTimeout:    cfg.TaskTimeout,
		ShutdownGrace:  cfg.ShutdownGrace,
		Workers:        cfg.Workers,
		GapCheckLimit:  cfg.GapCheckLimit,

		MaxPendingBatches: cfg.MaxPending,
	}
	if err := syncCfg.Validate(); err != nil {
		return err
	}
	disabled, err := model.ParseDataTypes(cfg.DisabledDataTypes)
	if err != nil {
		return fmt.Errorf("parse disabled data types: %w", err)
	}
	registry, err := contract.Load(cfg.ContractsFile)
	if err != nil {
		return err
	}
	logger.Info("contract registry loaded", zap.Int("contracts", registry.Len()))

	eth, chainID, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer eth.Close()
	client, err := chain.NewClient(eth, chainID, metrics.NewChainClient(cfg.Chain), chain.Options{
		RPS: cfg.RPCRPS,
		Retry: chain.RetryPolicy{
			InitialInterval: cfg.RPCInitialInterval,
			MaxInterval:     cfg.RPCMaxInterval,
			MaxElapsedTime:  cfg.RPCMaxElapsed,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("init chain client: %w", err)
	}
	var heads <-chan struct{}
	if cfg.HeadSubscribe {
		if heads, err = chain.HeadSignal(ctx, eth, logger.Named("heads")); err != nil {
			logger.Warn("head subscription unavailable, polling only", zap.Error(err))
		}
	}

	var (
		pool  syncer.TaskPool
		store alert.Store
	)
	switch cfg.TaskPool {
	case "memory":
		logger.Warn("in-memory task pool, progress is lost on restart")
		pool = taskpool.NewMemory()
	default:
		if cfg.ClickhouseDSN == "" {
			return errors.New("ClickHouse DSN is required for the clickhouse task pool")
		}
		repo, err := clickhouse.NewRepository(cfg.ClickhouseDSN, cfg.Chain, metrics.NewClickhouseRepository())
		if err != nil {
			return fmt.Errorf("init task pool repository: %w", err)
		}
		defer func() {
			if err := repo.Close(); err != nil {
				logger.Warn("close task pool repository", zap.Error(err))
			}
		}()
		pool, store = repo, repo
	}

	fanout, closeSinks, err := sink.NewBuilder(sink.Config{
		DryRun:           cfg.DryRun,
		PostgresEnabled:  !cfg.PostgresDisabled,
		PostgresDSN:      cfg.PostgresDSN,
		PostgresMaxConns: cfg.PostgresMaxConns,
		SearchEnabled:    !cfg.ESDisabled,
		SearchAddresses:  cfg.ESAddresses,
		SearchUsername:   cfg.ESUsername,
		SearchPassword:   cfg.ESPassword,
		SearchWorkers:    cfg.ESWorkers,
		Disabled:         disabled,
		IndexNames:       registry.IndexNames(),
	}, logger).Build(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()
	sinks := make([]syncer.Rollbacker, 0, len(fanout.Sinks()))
	for _, s := range fanout.Sinks() {
		sinks = append(sinks, s)
	}

	queue, closeQueue, err := newErrorQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	journal := alert.New(store, alert.Config{}, metrics.NewAlerts(), logger)
	journal.Start(ctx)
	defer journal.Stop()

	loop, err := syncer.New(syncCfg, syncer.Dependencies{
		Chain:      client,
		Decoder:    decoder.New(client, registry, cfg.DecodeWorkers, logger),
		TaskPool:   pool,
		Storage:    fanout,
		Sinks:      sinks,
		ErrorQueue: queue,
		Alerts:     journal,
		Contracts:  registry,
		Metrics:    metrics.NewSyncer(cfg.Chain),
	}, heads, logger.Named("syncer"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveStatus(gctx, cfg.MetricsAddr, transport.NewStatusHandler(loop, journal, logger), logger)
	})
	g.Go(func() error {
		err := loop.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func newErrorQueue(ctx context.Context, cfg config, logger *zap.Logger) (syncer.ErrorQueue, func(), error) {
	policy := errqueue.Policy{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInitial,
		MaxInterval:     cfg.RetryMax,
		StuckInterval:   cfg.StuckRetry,
	}
	if cfg.ErrorQueue != "redis" {
		return errqueue.NewMemory(policy), func() {}, nil
	}
	rdb, err := errqueue.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
	return errqueue.NewRedis(rdb, cfg.Chain, policy, cfg.ErrorEntryTTL, metrics.NewErrorQueue("redis")), closeFn, nil
}

func serveStatus(ctx context.Context, addr string, status *transport.StatusHandler, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	status.Register(mux)

	s := &http.Server{
		Addr:              addr,
		Handler:           cors.Default().Handler(mux),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down the http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown http server", zap.Error(err))
		}
	}()

	logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
