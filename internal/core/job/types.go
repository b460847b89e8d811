package job

import (
	"reviewforge/internal/types"
)

// Job tracks one async composition in Redis.
type Job struct {
	JobID   string    `json:"job_id"`
	Type    Type      `json:"type"`
	Status  Status    `json:"status"`
	Results JobResult `json:"results,omitempty"`
}

type Type string

const (
	TypeCompose Type = "compose"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type JobResult struct {
	Review *types.ComposedReview `json:"review,omitempty"`
	Error  string                `json:"error,omitempty"`
}
