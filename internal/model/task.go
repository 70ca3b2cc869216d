package model

import "time"

// TaskStatus represents the lifecycle state of one worker invocation.
// Transitions: pending -> running -> {completed | failed}. There is no
// re-entry to pending; failed is reachable from both launch errors and
// worker-reported failures.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task tracks a single worker invocation. Created by the dispatcher
// before launch and terminal-transitioned exactly once, either by the
// worker or by the dispatcher's launch-failure path.
// Invariant: CompletedAt is set iff Status is terminal.
type Task struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Status       TaskStatus     `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ExecutionARN string         `json:"execution_arn,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]int `json:"metadata,omitempty"`
}

// TriggerMessage is one queue message asking for a lead to be scored.
// Delivery is at-least-once; consumers must tolerate redelivery.
type TriggerMessage struct {
	LeadID string `json:"leadId"`
	Ref    string `json:"ref"`
}

// JobDescriptor is passed to a launched worker via environment override.
type JobDescriptor struct {
	BatchRef string `json:"batchRef"`
	TaskID   string `json:"taskId"`
}
