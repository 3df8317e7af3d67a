package syncer

import "time"

const (
	defaultWorkers        = 8
	defaultFrequency      = 5 * time.Second
	defaultErrorBackoff   = 60 * time.Second
	defaultTaskTimeout    = 10 * time.Minute
	defaultShutdownGrace  = 30 * time.Second
	defaultForkCheckDepth = 12
	defaultGapCheckLimit  = 1000

	defaultMaxPendingBatches = 10
)
