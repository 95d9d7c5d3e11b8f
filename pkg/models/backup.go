package models

import "time"

// RunStatus is the terminal classification of a backup run.
type RunStatus string

const (
	RunStatusSuccess   RunStatus = "success"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// Trigger identifies what initiated a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduler Trigger = "scheduler"
)

// Cadence is the recurrence kind of a schedule.
type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// Job is a configured backup task pairing a source path with a storage
// destination and an optional schedule. SnapshotID groups the job's runs
// into one incremental history on the engine side; changing it after runs
// exist breaks the lineage, so it is only ever set explicitly.
type Job struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SourcePath       string    `json:"source_path"`
	StorageURL       string    `json:"storage_url"`
	StorageName      string    `json:"storage_name"`
	SnapshotID       string    `json:"snapshot_id"`
	ContentSelection []string  `json:"content_selection,omitempty"`
	Encrypted        bool      `json:"encrypted"`
	Schedule         *Schedule `json:"schedule,omitempty"`

	LastBackupAt     *time.Time  `json:"last_backup_at,omitempty"`
	LastBackupStatus RunStatus   `json:"last_backup_status,omitempty"`
	LastBackupRun    *RunOutcome `json:"last_backup_run,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Schedule is the recurring-trigger configuration attached to a job.
// NextDueAt is recomputed after every schedule edit and every completed
// run; it is never left stale relative to the current time.
type Schedule struct {
	Enabled   bool     `json:"enabled"`
	Cadence   Cadence  `json:"cadence"`
	TimeOfDay string   `json:"time_of_day"`       // "HH:MM", 24h
	Days      []string `json:"days,omitempty"`    // mon..sun, weekly only
	Threads   int      `json:"threads,omitempty"` // engine concurrency hint

	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	NextDueAt     *time.Time `json:"next_due_at,omitempty"`
}

// RunEventType tags the variants of RunEvent.
type RunEventType string

const (
	RunEventOutput    RunEventType = "output"
	RunEventHeartbeat RunEventType = "heartbeat"
	RunEventDone      RunEventType = "done"
)

// RunEvent is one message on a run's subscriber stream. Done is always
// the final event a subscriber receives for a given run.
type RunEvent struct {
	Type      RunEventType `json:"type"`
	Line      string       `json:"line,omitempty"`
	Outcome   *RunOutcome  `json:"outcome,omitempty"`
	Cancelled bool         `json:"cancelled,omitempty"`
}

// SampleLimit caps the per-category file samples carried by a RunOutcome.
const SampleLimit = 12

// RunSamples holds up to SampleLimit example paths per change category.
type RunSamples struct {
	New     []string `json:"new,omitempty"`
	Changed []string `json:"changed,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

// RunOutcome is the parsed, terminal result of one run. It is produced
// exactly once per run by the output parser and handed to the coordinator
// for persistence and notification. When the engine output could not be
// decomposed into counts, Message carries a human-readable summary instead.
type RunOutcome struct {
	Status           RunStatus  `json:"status"`
	CreatedRevision  *int       `json:"created_revision,omitempty"`
	PreviousRevision *int       `json:"previous_revision,omitempty"`
	TotalFiles       *int       `json:"total_files,omitempty"`
	New              int        `json:"new"`
	Changed          int        `json:"changed"`
	Deleted          int        `json:"deleted"`
	Samples          RunSamples `json:"samples,omitempty"`
	Message          string     `json:"message,omitempty"`
	ExitCode         int        `json:"exit_code"`
	Duration         float64    `json:"duration_seconds"`
}

// Success reports whether the run finished without error or cancellation.
func (o RunOutcome) Success() bool {
	return o.Status == RunStatusSuccess
}

// RunInfo is a point-in-time snapshot of a run's live state, served to
// callers that want "is it running, since when" without subscribing.
type RunInfo struct {
	JobID      string    `json:"job_id"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ElapsedSec float64   `json:"elapsed_seconds,omitempty"`
	LastOutput string    `json:"last_output,omitempty"`
	Trigger    Trigger   `json:"trigger,omitempty"`
}

// Snapshot is one revision of a job's history as reported by the engine's
// list command.
type Snapshot struct {
	SnapshotID string `json:"snapshot_id"`
	Revision   int    `json:"revision"`
	CreatedAt  string `json:"created_at"`
}
