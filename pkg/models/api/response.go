package api

import (
	"time"

	"github.com/duplistack/core/pkg/models"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// JobResponse represents a backup job in API responses. Credentials never
// appear here; the registry strips them before a job reaches a handler.
type JobResponse struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	SourcePath       string           `json:"source_path"`
	StorageURL       string           `json:"storage_url"`
	SnapshotID       string           `json:"snapshot_id"`
	ContentSelection []string         `json:"content_selection,omitempty"`
	Schedule         *models.Schedule `json:"schedule,omitempty"`
	LastBackupAt     *time.Time       `json:"last_backup_at,omitempty"`
	LastBackupStatus string           `json:"last_backup_status,omitempty"`
}

// StartRunRequest is the body of POST /api/backup/start.
type StartRunRequest struct {
	JobID   string `json:"job_id"`
	Threads int    `json:"threads,omitempty"`
}

// CancelRunRequest is the body of POST /api/backup/cancel.
type CancelRunRequest struct {
	JobID string `json:"job_id"`
}

// RunStatusResponse answers the lightweight status poll.
type RunStatusResponse struct {
	Running    bool    `json:"running"`
	StartedAt  string  `json:"started_at,omitempty"`
	ElapsedSec float64 `json:"elapsed_seconds,omitempty"`
	LastOutput string  `json:"last_output,omitempty"`
	Trigger    string  `json:"trigger,omitempty"`
}

// ProgressEvent is one server-sent message on the live progress stream.
type ProgressEvent struct {
	Running   bool               `json:"running"`
	Output    string             `json:"output,omitempty"`
	Done      bool               `json:"done,omitempty"`
	Cancelled bool               `json:"cancelled,omitempty"`
	Outcome   *models.RunOutcome `json:"outcome,omitempty"`
}

// Response represents a general API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}
