// -----------------------------------------------------------------------
// Workflow Stats - Aggregate status snapshot for operators
// -----------------------------------------------------------------------

package models

import "time"

// WorkflowStats is the aggregate status returned by GetWorkflowStats.
// Active counts come from the in-memory store; historical counts are
// sourced from the archive storage.
type WorkflowStats struct {
	ActiveJobs      int            `json:"active_jobs"`
	MaxConcurrent   int            `json:"max_concurrent"`
	ByStage         map[string]int `json:"by_stage"`
	TotalHistorical int            `json:"total_jobs"`
	CompletedJobs   int            `json:"completed_jobs"`
	FailedJobs      int            `json:"failed_jobs"`
	SuccessRate     float64        `json:"success_rate"`
	Timestamp       time.Time      `json:"timestamp"`
}

// JobSummary is the per-job view returned by the operator API.
type JobSummary struct {
	ID            string    `json:"id"`
	Stage         Stage     `json:"stage"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	ErrorCount    int       `json:"error_count"`
	RetryCount    int       `json:"retry_count"`
	LastError     string    `json:"last_error,omitempty"`
	Paused        bool      `json:"paused"`
}
