// Package syncer drives block export: it advances the task pool window, stores decoded bundles
// in every sink, commits heights in order and compensates chain reorganizations.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/clock"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"go.uber.org/zap"
)

// Outcome is the result of one cycle, consumed by the Run dispatcher.
type Outcome int

const (
	OutcomeProgress Outcome = iota
	OutcomeIdle
	OutcomeRetryable
	OutcomeStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProgress:
		return "progress"
	case OutcomeIdle:
		return "idle"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeStopped:
		return "stopped"
	}
	return "unknown"
}

// ErrBatchFailed reports a batch in which no height could be stored.
var ErrBatchFailed = errors.New("every height of the batch failed")

type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
)

// Dependencies are the collaborators of a Syncer.
type Dependencies struct {
	Chain      ChainClient
	Decoder    Decoder
	TaskPool   TaskPool
	Storage    Storage
	Sinks      []Rollbacker
	ErrorQueue ErrorQueue
	Alerts     Alerts
	Contracts  ContractSource
	Metrics    Metrics
}

// Snapshot is the externally visible state of the loop.
type Snapshot struct {
	Chain        string    `json:"chain"`
	State        State     `json:"state"`
	Cursor       uint64    `json:"cursor"`
	HasCommitted bool      `json:"has_committed"`
	ChainHeight  uint64    `json:"chain_height"`
	Window       Window    `json:"window"`
	LastOutcome  string    `json:"last_outcome"`
	LastError    string    `json:"last_error,omitempty"`
	LastCycleAt  time.Time `json:"last_cycle_at"`
	Pending      []uint64  `json:"pending"`
	Stuck        []uint64  `json:"stuck"`
	Forks        int       `json:"forks"`
}

type Syncer struct {
	cfg       Config
	chain     ChainClient
	pool      TaskPool
	storage   Storage
	queue     ErrorQueue
	alerts    Alerts
	contracts ContractSource
	metrics   Metrics
	logger    *zap.Logger
	sleep     clock.SleepFunc
	idleSleep clock.SleepFunc

	handler    *blockHandler
	committer  *committer
	forks      *forkChecker
	gaps       *taskChecker
	timeouts   *timeoutChecker
	remediator *errorRemediator
	rollback   *RollbackCoordinator

	mu       sync.RWMutex
	snapshot Snapshot
}

// New validates cfg and wires the loop. headSignal, when not nil, cuts the idle sleep short
// as soon as a new block is announced.
func New(cfg Config, deps Dependencies, headSignal <-chan struct{}, logger *zap.Logger) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Chain == nil:
		return nil, errors.New("chain client is required")
	case deps.Decoder == nil:
		return nil, errors.New("decoder is required")
	case deps.TaskPool == nil:
		return nil, errors.New("task pool is required")
	case deps.Storage == nil:
		return nil, errors.New("storage is required")
	case deps.ErrorQueue == nil:
		return nil, errors.New("error queue is required")
	case deps.Alerts == nil:
		return nil, errors.New("alerts are required")
	case deps.Metrics == nil:
		return nil, errors.New("syncer metrics is required")
	}

	logger = logger.With(zap.String("chain", cfg.Chain))
	handler := &blockHandler{
		chain:   deps.Chain,
		decoder: deps.Decoder,
		storage: deps.Storage,
		workers: cfg.Workers,
		metrics: deps.Metrics,
		logger:  logger.Named("blockHandler"),
	}
	committer := newCommitter(deps.TaskPool, cfg.StartHeight, deps.Metrics, logger.Named("committer"))

	s := &Syncer{
		cfg:       cfg,
		chain:     deps.Chain,
		pool:      deps.TaskPool,
		storage:   deps.Storage,
		queue:     deps.ErrorQueue,
		alerts:    deps.Alerts,
		contracts: deps.Contracts,
		metrics:   deps.Metrics,
		logger:    logger,
		sleep:     clock.SleepWithContext,
		idleSleep: clock.SleepOrSignal(headSignal),
		handler:   handler,
		committer: committer,
		forks: &forkChecker{
			pool:       deps.TaskPool,
			chain:      deps.Chain,
			start:      cfg.StartHeight,
			forkWindow: cfg.ForkWindow,
			depth:      cfg.ForkCheckDepth,
			logger:     logger.Named("forkChecker"),
		},
		gaps: &taskChecker{
			pool:   deps.TaskPool,
			limit:  cfg.GapCheckLimit,
			logger: logger.Named("taskChecker"),
		},
		timeouts: &timeoutChecker{
			pool:    deps.TaskPool,
			timeout: cfg.TaskTimeout,
			now:     time.Now,
			logger:  logger.Named("timeoutChecker"),
		},
		remediator: &errorRemediator{
			queue:      deps.ErrorQueue,
			handler:    handler,
			committer:  committer,
			alerts:     deps.Alerts,
			forkWindow: cfg.ForkWindow,
			metrics:    deps.Metrics,
			logger:     logger.Named("errorRemediator"),
		},
		rollback: NewRollbackCoordinator(deps.TaskPool, deps.Sinks, deps.ErrorQueue, deps.Alerts, deps.Metrics, logger).
			With(committer),
		snapshot: Snapshot{Chain: cfg.Chain, State: StateStopped},
	}
	return s, nil
}

// Run executes cycles until ctx is canceled. A cycle in flight when ctx ends is allowed to finish
// within the shutdown grace period.
func (s *Syncer) Run(ctx context.Context) error {
	s.setState(StateStarting)
	s.startup(ctx)
	s.setState(StateRunning)
	defer s.setState(StateStopped)

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("sync loop stopped")
			return err
		}

		started := time.Now()
		work, release := detach(ctx, s.cfg.ShutdownGrace)
		outcome, err := s.cycle(ctx, work)
		release()
		if err != nil && ctx.Err() != nil {
			outcome = OutcomeStopped
		}
		s.metrics.ObserveCycle(outcome.String(), started)
		s.recordOutcome(outcome, err)

		switch outcome {
		case OutcomeProgress:
		case OutcomeIdle:
			s.logger.Debug("no new blocks, sleeping", zap.Duration("sleep", s.cfg.Frequency))
			if err := s.idleSleep(ctx, s.cfg.Frequency); err != nil {
				return err
			}
		case OutcomeRetryable:
			s.logger.Error("sync cycle failed, backing off", zap.Error(err), zap.Duration("sleep", s.cfg.ErrorBackoff))
			if err := s.sleep(ctx, s.cfg.ErrorBackoff); err != nil {
				return err
			}
		case OutcomeStopped:
			s.logger.Info("sync loop stopped during cycle", zap.Error(err))
			return ctx.Err()
		}
	}
}

// startup stores contract metadata and reads the cursor. Neither failure prevents crawling.
func (s *Syncer) startup(ctx context.Context) {
	if s.contracts != nil {
		contracts := s.contracts.Contracts()
		if failed := s.storage.StoreContracts(ctx, contracts); failed > 0 {
			s.logger.Warn("contract info incomplete", zap.Int("failed", failed), zap.Int("contracts", len(contracts)))
		}
	}

	height, ok, err := s.pool.CommittedHeight(ctx, s.cfg.StartHeight)
	switch {
	case err != nil:
		s.logger.Warn("committed height unavailable, starting from configured height",
			zap.Uint64("start_height", s.cfg.StartHeight), zap.Error(err))
	case ok:
		s.committer.setCursor(height, true)
		s.logger.Info("resuming", zap.Uint64("cursor", height))
	default:
		s.logger.Info("starting from configured height", zap.Uint64("start_height", s.cfg.StartHeight))
	}
}

// cycle runs one iteration. ctx is the stop signal, work carries the I/O of the iteration and
// outlives ctx by the shutdown grace so an in-flight batch is not cut mid-write.
func (s *Syncer) cycle(ctx, work context.Context) (Outcome, error) {
	chainHeight, err := s.chain.CurrentHeight(work)
	if err != nil {
		return OutcomeRetryable, fmt.Errorf("read chain height: %w", err)
	}
	s.metrics.SetChainHeight(chainHeight)

	from := s.cfg.StartHeight
	next, ok, err := s.pool.NextHeight(work)
	if err != nil {
		return OutcomeRetryable, fmt.Errorf("read task pool height: %w", err)
	}
	if ok && next > from {
		from = next
	}

	w := window(from, chainHeight, s.cfg.BatchUnit, s.cfg.ForkWindow)
	cursor, _ := s.committer.Cursor()
	s.logger.Info("sync cycle",
		zap.Uint64("cursor", cursor),
		zap.Uint64("chain_height", chainHeight),
		zap.Uint64("from", w.From),
		zap.Uint64("to", w.To),
		zap.Bool("certain", w.Certain),
	)
	s.recordWindow(w, chainHeight)

	outcome := OutcomeIdle
	var batchErr error
	pending := s.committer.PendingLen()
	switch {
	case w.Empty():
	case pending >= s.cfg.maxPending():
		s.logger.Warn("stored heights wait for a lower height, not preparing new work",
			zap.Int("pending", pending),
			zap.Uint64("cursor", cursor),
		)
	default:
		if err := s.pool.Prepare(work, w.From, w.To, w.Certain); err != nil {
			return OutcomeRetryable, fmt.Errorf("prepare [%d, %d]: %w", w.From, w.To, err)
		}
		outcome = OutcomeProgress
		if err := s.processBatch(work, chainHeight); err != nil {
			if !errors.Is(err, ErrBatchFailed) {
				return OutcomeRetryable, err
			}
			// the checks below still run, the loop backs off afterwards
			outcome, batchErr = OutcomeRetryable, err
		}
	}
	if ctx.Err() != nil {
		return outcome, batchErr
	}

	if !w.Certain {
		forked, err := s.checkFork(work, chainHeight)
		if err != nil {
			return OutcomeRetryable, err
		}
		if forked {
			return OutcomeProgress, nil
		}
		if err := s.checkGaps(work); err != nil {
			return OutcomeRetryable, err
		}
	}

	if err := s.requeueTimedOut(work); err != nil {
		return OutcomeRetryable, err
	}
	if err := s.remediate(work, chainHeight); err != nil {
		return OutcomeRetryable, err
	}
	return outcome, batchErr
}

func (s *Syncer) processBatch(ctx context.Context, chainHeight uint64) error {
	heights, err := s.pool.FetchPrepared(ctx, s.cfg.BatchUnit)
	if err != nil {
		return fmt.Errorf("fetch prepared tasks: %w", err)
	}
	s.metrics.ObserveBatch(len(heights))
	if len(heights) == 0 {
		return nil
	}

	failed := 0
	for _, res := range s.handler.Handle(ctx, heights) {
		if res.err != nil {
			failed++
			s.logger.Warn("height failed", zap.Uint64("height", res.height), zap.Error(res.err))
			if err := s.queue.Add(ctx, res.height, res.err); err != nil {
				return fmt.Errorf("queue failed block %d: %w", res.height, err)
			}
			continue
		}
		s.committer.Stored(model.Task{
			Height:    res.height,
			BlockHash: res.hash,
			Certain:   isCertain(res.height, chainHeight, s.cfg.ForkWindow),
		})
	}

	cursor, _, err := s.committer.Commit(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("batch processed",
		zap.Int("heights", len(heights)),
		zap.Int("failed", failed),
		zap.Uint64("cursor", cursor),
	)
	if failed == len(heights) {
		return fmt.Errorf("heights %d..%d: %w", heights[0], heights[len(heights)-1], ErrBatchFailed)
	}
	return nil
}

func (s *Syncer) checkFork(ctx context.Context, chainHeight uint64) (bool, error) {
	height, forked, err := s.forks.Check(ctx, chainHeight)
	if err != nil {
		return false, fmt.Errorf("fork check: %w", err)
	}
	if !forked {
		return false, nil
	}

	s.metrics.ObserveFork()
	s.incForks()
	s.alerts.Raise(ctx, model.Alert{
		Kind:    model.AlertFork,
		Height:  height,
		Message: fmt.Sprintf("stored block at %d differs from chain at tip %d", height, chainHeight),
	})
	if err := s.rollback.RollbackFrom(ctx, height); err != nil {
		s.logger.Error("rollback incomplete", zap.Uint64("from_height", height), zap.Error(err))
	}
	return true, nil
}

func (s *Syncer) checkGaps(ctx context.Context) error {
	from := s.cfg.StartHeight
	if cursor, ok := s.committer.Cursor(); ok {
		from = cursor + 1
	}
	missing, err := s.gaps.Check(ctx, from)
	if err != nil {
		return fmt.Errorf("task check: %w", err)
	}
	if len(missing) > 0 {
		s.alerts.Raise(ctx, model.Alert{
			Kind:    model.AlertTaskGap,
			Height:  missing[0],
			Message: fmt.Sprintf("%d heights missing from the task pool", len(missing)),
		})
	}
	return nil
}

func (s *Syncer) requeueTimedOut(ctx context.Context) error {
	owned := map[uint64]struct{}{}
	for _, h := range s.committer.Pending() {
		owned[h] = struct{}{}
	}
	queued, err := s.queue.Heights(ctx)
	if err != nil {
		return fmt.Errorf("load failed heights: %w", err)
	}
	for _, h := range queued {
		owned[h] = struct{}{}
	}
	if _, err := s.timeouts.Check(ctx, owned); err != nil {
		return fmt.Errorf("timeout check: %w", err)
	}
	return nil
}

func (s *Syncer) remediate(ctx context.Context, chainHeight uint64) error {
	res, err := s.remediator.Remediate(ctx, chainHeight)
	if err != nil {
		return fmt.Errorf("error remediation: %w", err)
	}
	if res.retried == 0 {
		return nil
	}
	s.logger.Info("failed heights retried",
		zap.Int("retried", res.retried),
		zap.Int("resolved", res.resolved),
		zap.Uint64s("stuck", res.stuck),
	)
	if res.resolved == 0 {
		return nil
	}
	if _, _, err := s.committer.Commit(ctx); err != nil {
		return err
	}
	return nil
}

// RollbackFrom runs the rollback coordinator outside of fork detection, e.g. from an operator action.
func (s *Syncer) RollbackFrom(ctx context.Context, height uint64) error {
	return s.rollback.RollbackFrom(ctx, height)
}

// Snapshot returns a copy of the loop state.
func (s *Syncer) Snapshot(ctx context.Context) Snapshot {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	snap.Cursor, snap.HasCommitted = s.committer.Cursor()
	snap.Pending = s.committer.Pending()
	snap.Stuck = []uint64{}
	if stuck, err := s.queue.Stuck(ctx); err == nil {
		for _, fb := range stuck {
			snap.Stuck = append(snap.Stuck, fb.Height)
		}
	}
	return snap
}

func (s *Syncer) setState(state State) {
	s.mu.Lock()
	s.snapshot.State = state
	s.mu.Unlock()
}

func (s *Syncer) recordWindow(w Window, chainHeight uint64) {
	s.mu.Lock()
	s.snapshot.Window = w
	s.snapshot.ChainHeight = chainHeight
	s.mu.Unlock()
}

func (s *Syncer) recordOutcome(outcome Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastOutcome = outcome.String()
	s.snapshot.LastCycleAt = time.Now()
	s.snapshot.LastError = ""
	if err != nil {
		s.snapshot.LastError = err.Error()
	}
}

func (s *Syncer) incForks() {
	s.mu.Lock()
	s.snapshot.Forks++
	s.mu.Unlock()
}

// detach returns a context that ignores the cancellation of ctx for up to grace.
func detach(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-work.Done():
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-work.Done():
		case <-timer.C:
			cancel()
		}
	}()
	return work, cancel
}
