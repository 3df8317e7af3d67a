package errqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

// Memory keeps failed heights in process memory. Entries are lost on restart, which is
// harmless: an uncommitted height is re-fetched through timeout remediation.
type Memory struct {
	mu      sync.Mutex
	entries map[uint64]model.FailedBlock
	policy  Policy
	now     func() time.Time
}

func NewMemory(policy Policy) *Memory {
	return &Memory{
		entries: make(map[uint64]model.FailedBlock),
		policy:  policy.withDefaults(),
		now:     time.Now,
	}
}

// WithClock replaces the time source used to schedule retries.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Add records a failed height. A height already queued keeps its attempts and only refreshes the error.
func (m *Memory) Add(_ context.Context, height uint64, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fb, ok := m.entries[height]; ok {
		fb.Error = errorText(cause)
		m.entries[height] = fb
		return nil
	}
	m.entries[height] = m.policy.newEntry(height, cause, m.now())
	return nil
}

// Due returns the entries whose next retry time has passed, in ascending height order.
func (m *Memory) Due(_ context.Context) ([]model.FailedBlock, error) {
	m.mu.Lock()
	now := m.now()
	m.mu.Unlock()
	return m.list(func(fb model.FailedBlock) bool { return isDue(fb, now) }), nil
}

// Fail records a failed retry and reports the updated entry.
func (m *Memory) Fail(_ context.Context, height uint64, cause error) (model.FailedBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fb, ok := m.entries[height]
	if !ok {
		return model.FailedBlock{}, ErrNotQueued
	}
	fb = m.policy.recordFailure(fb, cause, m.now())
	m.entries[height] = fb
	return fb, nil
}

func (m *Memory) Resolve(_ context.Context, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, height)
	return nil
}

// Heights returns every queued height, stuck or not.
func (m *Memory) Heights(_ context.Context) ([]uint64, error) {
	all := m.list(func(model.FailedBlock) bool { return true })
	out := make([]uint64, 0, len(all))
	for _, fb := range all {
		out = append(out, fb.Height)
	}
	return out, nil
}

func (m *Memory) Stuck(_ context.Context) ([]model.FailedBlock, error) {
	return m.list(func(fb model.FailedBlock) bool { return fb.Stuck }), nil
}

// RollbackFrom forgets every entry at or above height.
func (m *Memory) RollbackFrom(_ context.Context, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for h := range m.entries {
		if h >= height {
			delete(m.entries, h)
		}
	}
	return nil
}

func (m *Memory) list(keep func(model.FailedBlock) bool) []model.FailedBlock {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.FailedBlock, 0, len(m.entries))
	for _, fb := range m.entries {
		if keep(fb) {
			out = append(out, fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out
}
