// Package sink fans decoded bundles out to the configured storage backends.
package sink

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Fanout is an immutable, ordered list of sinks. There is no atomicity across sinks:
// each sink commits on its own and a failed height is replayed as a whole.
// Rollbacks go to each sink separately through Sinks so failures are reported per sink.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:  append([]Sink(nil), sinks...),
		logger: logger.Named("fanout"),
	}
}

// Sinks returns the sinks in registration order.
func (f *Fanout) Sinks() []Sink {
	return append([]Sink(nil), f.sinks...)
}

func (f *Fanout) Names() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (f *Fanout) Empty() bool {
	return len(f.sinks) == 0
}

// StoreBundle hands the bundle to every sink in order. A failing sink does not stop the others.
func (f *Fanout) StoreBundle(ctx context.Context, bundle *model.BlockBundle) error {
	var errs error
	for _, s := range f.sinks {
		if err := s.StoreBundle(ctx, bundle); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errs
}

func (f *Fanout) StoreContractInfo(ctx context.Context, info model.ContractInfo) error {
	var errs error
	for _, s := range f.sinks {
		if err := s.StoreContractInfo(ctx, info); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errs
}

// StoreContracts stores every contract in every sink, logging and counting failures.
// It returns the number of contract records that could not be stored everywhere.
func (f *Fanout) StoreContracts(ctx context.Context, contracts []model.ContractInfo) int {
	failed := 0
	for _, info := range contracts {
		if err := f.StoreContractInfo(ctx, info); err != nil {
			failed++
			f.logger.Warn("contract info not stored", zap.String("contract", info.Name), zap.Error(err))
		}
	}
	return failed
}
