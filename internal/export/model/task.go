package model

import "time"

// TaskStatus is the lifecycle state of a height in the task pool.
type TaskStatus string

const (
	TaskPrepared  TaskStatus = "prepared"
	TaskFetched   TaskStatus = "fetched"
	TaskCommitted TaskStatus = "committed"
)

// Task is the task pool entry of a single height.
type Task struct {
	Height    uint64
	Status    TaskStatus
	BlockHash string
	Certain   bool
	UpdatedAt time.Time
}

// FailedBlock is a height whose decode or store failed and awaits a retry.
type FailedBlock struct {
	ID        string    `json:"id"`
	Height    uint64    `json:"height"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	Stuck     bool      `json:"stuck"`
	FirstSeen time.Time `json:"first_seen"`
	LastTried time.Time `json:"last_tried"`
	NextRetry time.Time `json:"next_retry"`
}
