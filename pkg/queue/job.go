package queue

import (
	"time"

	"github.com/finsight-ai/finsight/pkg/model"
)

// JobStatus represents the lifecycle state of a submitted query.
type JobStatus string

// Job status constants.
const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job tracks one query through the pool. The pool hands out snapshots;
// callers never see the live record.
type Job struct {
	ID          string
	Query       string
	Status      JobStatus
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time

	// State is the run's final state, populated when the run finishes.
	// It may be partially filled for failed and cancelled runs.
	State *model.FinanceState
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// PoolHealth is a point-in-time snapshot of the pool for health endpoints.
type PoolHealth struct {
	IsHealthy     bool `json:"is_healthy"`
	TotalWorkers  int  `json:"total_workers"`
	ActiveWorkers int  `json:"active_workers"`
	QueueDepth    int  `json:"queue_depth"`
	JobsProcessed int  `json:"jobs_processed"`
}
