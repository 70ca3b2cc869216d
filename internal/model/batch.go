package model

import "time"

// BatchItem is one lead reference inside a batch payload.
type BatchItem struct {
	LeadID string `json:"leadId"`
	Ref    string `json:"ref"`
}

// Manifest describes one planning run: the object-store locations of the
// per-batch payloads plus totals. Manifests are immutable once written;
// re-planning the same job overwrites rather than appends.
type Manifest struct {
	Bucket       string   `json:"bucket"`
	Key          string   `json:"key"`
	JobID        string   `json:"jobId"`
	TotalItems   int      `json:"totalItems"`
	TotalBatches int      `json:"totalBatches"`
	BatchKeys    []string `json:"batchKeys"`
}

// BatchResult is the per-task summary object a worker writes under the
// run's results prefix. The aggregator tallies these into run counters.
type BatchResult struct {
	JobID     string    `json:"job_id"`
	TaskID    string    `json:"task_id"`
	Processed int       `json:"processed"`
	Scored    int       `json:"scored"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunStats holds run-level counters for one planning job. Counter
// updates are additive; re-aggregating the same result set double-counts
// (documented operational assumption, not a correctness guarantee).
type RunStats struct {
	JobID          string     `json:"job_id"`
	TotalItems     int        `json:"total_items"`
	TotalBatches   int        `json:"total_batches"`
	LeadsProcessed int        `json:"leads_processed"`
	LeadsScored    int        `json:"leads_scored"`
	LeadsFailed    int        `json:"leads_failed"`
	LeadsSkipped   int        `json:"leads_skipped"`
	Status         string     `json:"status"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
