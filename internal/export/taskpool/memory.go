// Package taskpool holds an in-memory task pool used for dry runs and tests.
package taskpool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
)

// Memory mirrors the ClickHouse task pool without persistence.
type Memory struct {
	mu    sync.Mutex
	tasks map[uint64]model.Task
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[uint64]model.Task),
		now:   time.Now,
	}
}

func (m *Memory) CommittedHeight(_ context.Context, start uint64) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	height, ok := start, false
	for h := start; ; h++ {
		t, exists := m.tasks[h]
		if !exists || t.Status != model.TaskCommitted {
			break
		}
		height, ok = h, true
	}
	return height, ok, nil
}

func (m *Memory) NextHeight(_ context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) == 0 {
		return 0, false, nil
	}
	var highest uint64
	for h := range m.tasks {
		if h > highest {
			highest = h
		}
	}
	return highest + 1, true, nil
}

func (m *Memory) Prepare(_ context.Context, from, to uint64, certain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for h := from; h <= to; h++ {
		if _, ok := m.tasks[h]; ok {
			continue
		}
		m.tasks[h] = model.Task{Height: h, Status: model.TaskPrepared, Certain: certain, UpdatedAt: now}
		if h == ^uint64(0) {
			break
		}
	}
	return nil
}

func (m *Memory) FetchPrepared(_ context.Context, limit uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	heights := m.heightsLocked(func(t model.Task) bool { return t.Status == model.TaskPrepared })
	if uint64(len(heights)) > limit {
		heights = heights[:limit]
	}
	now := m.now()
	for _, h := range heights {
		t := m.tasks[h]
		t.Status = model.TaskFetched
		t.UpdatedAt = now
		m.tasks[h] = t
	}
	return heights, nil
}

func (m *Memory) MarkCommitted(_ context.Context, tasks []model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, t := range tasks {
		t.Status = model.TaskCommitted
		t.UpdatedAt = now
		m.tasks[t.Height] = t
	}
	return nil
}

func (m *Memory) Requeue(_ context.Context, heights []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, h := range heights {
		m.tasks[h] = model.Task{Height: h, Status: model.TaskPrepared, UpdatedAt: now}
	}
	return nil
}

func (m *Memory) TimedOut(_ context.Context, olderThan time.Time) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.heightsLocked(func(t model.Task) bool {
		return t.Status != model.TaskCommitted && t.UpdatedAt.Before(olderThan)
	}), nil
}

func (m *Memory) MissingHeights(_ context.Context, from, to, limit uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []uint64
	for h := from; h <= to && uint64(len(missing)) < limit; h++ {
		if _, ok := m.tasks[h]; !ok {
			missing = append(missing, h)
		}
		if h == ^uint64(0) {
			break
		}
	}
	return missing, nil
}

func (m *Memory) RecentCommitted(_ context.Context, fromHeight uint64) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	heights := m.heightsLocked(func(t model.Task) bool {
		return t.Status == model.TaskCommitted && t.Height >= fromHeight
	})
	tasks := make([]model.Task, 0, len(heights))
	for _, h := range heights {
		tasks = append(tasks, m.tasks[h])
	}
	return tasks, nil
}

func (m *Memory) RollbackFrom(_ context.Context, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for h := range m.tasks {
		if h >= height {
			delete(m.tasks, h)
		}
	}
	return nil
}

// Tasks returns a snapshot ordered by height.
func (m *Memory) Tasks() []model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	heights := m.heightsLocked(func(model.Task) bool { return true })
	tasks := make([]model.Task, 0, len(heights))
	for _, h := range heights {
		tasks = append(tasks, m.tasks[h])
	}
	return tasks
}

func (m *Memory) heightsLocked(match func(model.Task) bool) []uint64 {
	var heights []uint64
	for h, t := range m.tasks {
		if match(t) {
			heights = append(heights, h)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}
