// Package errqueue records heights whose fetch, decode or store failed so they can be retried
// with exponential backoff. A height that exhausts its retries is parked as stuck and retried
// at a slow fixed pace until it succeeds or is rolled back.
package errqueue

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/google/uuid"
)

const (
	DefaultMaxRetries      = 5
	DefaultInitialInterval = 10 * time.Second
	DefaultMaxInterval     = 5 * time.Minute
	DefaultStuckInterval   = 30 * time.Minute
)

// ErrNotQueued is returned when an operation targets a height that is not in the queue.
var ErrNotQueued = errors.New("height is not queued")

// Policy paces the retries of a failed height. Zero fields take the defaults.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// StuckInterval separates the retries of a height parked as stuck.
	StuckInterval time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 1 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.StuckInterval <= 0 {
		p.StuckInterval = DefaultStuckInterval
	}
	return p
}

// delay is the wait before the retry that follows the given number of failed retries.
func (p Policy) delay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < attempts && d < p.MaxInterval; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (p Policy) newEntry(height uint64, cause error, now time.Time) model.FailedBlock {
	return model.FailedBlock{
		ID:        uuid.NewString(),
		Height:    height,
		Error:     errorText(cause),
		FirstSeen: now,
		LastTried: now,
		NextRetry: now.Add(p.delay(0)),
	}
}

// recordFailure applies one failed retry to fb.
func (p Policy) recordFailure(fb model.FailedBlock, cause error, now time.Time) model.FailedBlock {
	fb.Attempts++
	fb.Error = errorText(cause)
	fb.LastTried = now
	fb.Stuck = fb.Attempts >= p.MaxRetries
	if fb.Stuck {
		fb.NextRetry = now.Add(p.StuckInterval)
	} else {
		fb.NextRetry = now.Add(p.delay(fb.Attempts))
	}
	return fb
}

func isDue(fb model.FailedBlock, now time.Time) bool {
	return !fb.NextRetry.After(now)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
