// Package registry is the durable boundary around backup jobs. The core
// only ever reads jobs and writes back last-run fields through this
// interface; each write is an independent, retryable statement — no
// multi-step transactional behavior is assumed of the backing store.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/duplistack/core/pkg/models"
)

// ErrJobNotFound is returned when a job ID has no registry record.
var ErrJobNotFound = errors.New("job not found")

// Credentials holds the secrets the engine needs for one job's storage.
// They are handed to the process runner as environment variables only.
type Credentials struct {
	Password string
	Env      map[string]string
}

// Registry is the job store contract consumed by the coordinator and
// scheduler.
type Registry interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]*models.Job, error)
	// GetSchedulableJobs returns jobs whose schedule is enabled.
	GetSchedulableJobs(ctx context.Context) ([]*models.Job, error)
	GetCredentials(ctx context.Context, id string) (Credentials, error)
	// UpdateLastRun persists the terminal fields of a finished run.
	UpdateLastRun(ctx context.Context, id string, status models.RunStatus, at time.Time, outcome *models.RunOutcome) error
	// UpdateNextDue persists a recomputed next-due timestamp together
	// with the schedule's last-run bookkeeping.
	UpdateNextDue(ctx context.Context, id string, schedule *models.Schedule) error
}
