package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Processing task states. Transitions: pending -> processing -> completed,
// processing -> pending (retry), processing -> failed, failed -> pending
// (manual retry).
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Task priority bounds. Higher is more urgent.
const (
	TaskPriorityMin = 1
	TaskPriorityMax = 5
)

// ProcessingTask is a unit of asynchronous work in the queue
type ProcessingTask struct {
	ID       string `json:"id" badgerhold:"key"` // task_{uuid}
	TaskType string `json:"task_type" badgerhold:"index"`
	Priority int    `json:"priority"` // 1..5, higher dequeues first

	Payload map[string]interface{} `json:"payload"`
	Result  map[string]interface{} `json:"result,omitempty"`

	Status      string    `json:"status" badgerhold:"index"`
	ScheduledAt time.Time `json:"scheduled_at"` // earliest eligible time

	WorkerID    string     `json:"worker_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	LastUpdate  time.Time  `json:"last_update"`

	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
	ErrorMessage string `json:"error_message,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"` // task IDs that must be completed

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateTaskPayload rejects payloads that do not round-trip through JSON,
// so enqueue fails fast instead of a consumer failing late.
func ValidateTaskPayload(payload map[string]interface{}) error {
	if payload == nil {
		return nil
	}
	if _, err := json.Marshal(payload); err != nil {
		return fmt.Errorf("payload is not JSON-serializable: %w", err)
	}
	return nil
}

// SerializableResult returns result if it is JSON-serializable, otherwise a
// placeholder recording that the original result was dropped.
func SerializableResult(result map[string]interface{}) map[string]interface{} {
	if result == nil {
		return nil
	}
	if _, err := json.Marshal(result); err != nil {
		return map[string]interface{}{
			"status": "completed",
			"error":  "Result not serializable",
		}
	}
	return result
}

// QueueStatus summarizes the processing queue
type QueueStatus struct {
	CountsByStatus       map[string]int `json:"counts_by_status"`
	OldestPendingCreated *time.Time     `json:"oldest_pending_created,omitempty"`
	AvgProcessingSeconds float64        `json:"avg_processing_seconds"`
}
