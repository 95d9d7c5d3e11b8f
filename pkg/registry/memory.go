package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duplistack/core/pkg/models"
	"github.com/duplistack/core/pkg/utils"
)

// MemoryRegistry is an in-process Registry for tests and standalone runs.
type MemoryRegistry struct {
	mu    sync.RWMutex
	jobs  map[string]*models.Job
	creds map[string]Credentials
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs:  make(map[string]*models.Job),
		creds: make(map[string]Credentials),
	}
}

// AddJob stores a job, assigning an ID and snapshot ID when absent.
func (m *MemoryRegistry) AddJob(job *models.Job) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.SnapshotID == "" {
		job.SnapshotID = utils.GenerateSnapshotID(job.Name)
	}
	if job.StorageName == "" {
		job.StorageName = utils.GenerateStorageName(job.ID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Schedule != nil {
		// Normalization recomputes everything except the due bookkeeping,
		// which the scheduler owns.
		next := job.Schedule.NextDueAt
		job.Schedule = models.NormalizeSchedule(nil, job.Schedule)
		job.Schedule.NextDueAt = next
	}
	m.jobs[job.ID] = job
	return job
}

// SetCredentials stores engine credentials for a job.
func (m *MemoryRegistry) SetCredentials(id string, creds Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[id] = creds
}

func (m *MemoryRegistry) GetJob(ctx context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// cloneJob copies a job deeply enough that callers mutating the returned
// schedule cannot bypass UpdateNextDue.
func cloneJob(job *models.Job) *models.Job {
	copied := *job
	if job.Schedule != nil {
		sched := *job.Schedule
		copied.Schedule = &sched
	}
	return &copied
}

func (m *MemoryRegistry) ListJobs(ctx context.Context) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, cloneJob(job))
	}
	return out, nil
}

func (m *MemoryRegistry) GetSchedulableJobs(ctx context.Context) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Schedule == nil || !job.Schedule.Enabled {
			continue
		}
		out = append(out, cloneJob(job))
	}
	return out, nil
}

func (m *MemoryRegistry) GetCredentials(ctx context.Context, id string) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.jobs[id]; !ok {
		return Credentials{}, ErrJobNotFound
	}
	return m.creds[id], nil
}

func (m *MemoryRegistry) UpdateLastRun(ctx context.Context, id string, status models.RunStatus, at time.Time, outcome *models.RunOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.LastBackupAt = &at
	job.LastBackupStatus = status
	job.LastBackupRun = outcome
	if job.Schedule != nil {
		job.Schedule.LastRunAt = &at
		job.Schedule.LastRunStatus = string(status)
		if status == models.RunStatusSuccess {
			job.Schedule.LastError = ""
		} else if outcome != nil {
			job.Schedule.LastError = outcome.Message
		}
	}
	return nil
}

func (m *MemoryRegistry) UpdateNextDue(ctx context.Context, id string, schedule *models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Schedule = schedule
	return nil
}
