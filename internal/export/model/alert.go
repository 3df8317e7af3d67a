package model

import "time"

// AlertKind classifies alerts raised by the synchronization loop.
type AlertKind string

const (
	AlertFork           AlertKind = "fork"
	AlertRollbackFailed AlertKind = "rollback_failed"
	AlertStuckHeight    AlertKind = "stuck_height"
	AlertTaskGap        AlertKind = "task_gap"
)

// Alert is a condition that needs operator attention.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Height    uint64    `json:"height"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
