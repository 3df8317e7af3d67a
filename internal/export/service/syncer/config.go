package syncer

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBatchUnit is returned by Validate when the batch unit is below one.
var ErrInvalidBatchUnit = errors.New("batch unit must be at least 1")

// Config is the read-only synchronization context built once at startup.
type Config struct {
	Chain       string
	StartHeight uint64
	BatchUnit   uint64
	// ForkWindow is the number of blocks below the tip where reorganizations are plausible.
	ForkWindow uint64
	// ForkCheckDepth caps how many committed heights a fork check re-fetches.
	ForkCheckDepth uint64
	Frequency      time.Duration
	ErrorBackoff   time.Duration
	TaskTimeout    time.Duration
	ShutdownGrace  time.Duration
	Workers        int
	GapCheckLimit  uint64
	// MaxPendingBatches caps, in batch units, the stored heights waiting above an uncommitted one.
	// No new window is prepared while the cap is reached.
	MaxPendingBatches int
}

// Validate rejects unusable settings and fills defaults for optional ones.
func (c *Config) Validate() error {
	if c.BatchUnit < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidBatchUnit, c.BatchUnit)
	}
	if c.Chain == "" {
		return errors.New("chain is required")
	}
	if c.Workers < 1 {
		c.Workers = defaultWorkers
	}
	if c.Frequency <= 0 {
		c.Frequency = defaultFrequency
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaultErrorBackoff
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = defaultTaskTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	if c.ForkCheckDepth == 0 {
		c.ForkCheckDepth = defaultForkCheckDepth
	}
	if c.GapCheckLimit == 0 {
		c.GapCheckLimit = defaultGapCheckLimit
	}
	if c.MaxPendingBatches < 1 {
		c.MaxPendingBatches = defaultMaxPendingBatches
	}
	return nil
}

func (c *Config) maxPending() int {
	return c.MaxPendingBatches * int(c.BatchUnit)
}
