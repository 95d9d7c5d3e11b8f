package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/duplistack/core/pkg/models"
)

func TestMemoryRegistry_AddJobDefaults(t *testing.T) {
	reg := NewMemoryRegistry()

	job := reg.AddJob(&models.Job{Name: "Photo Archive", SourcePath: "/srv/photos"})

	if job.ID == "" {
		t.Error("job ID was not assigned")
	}
	if job.SnapshotID == "" {
		t.Error("snapshot ID was not derived")
	}
	if job.StorageName == "" {
		t.Error("storage name was not derived")
	}
	if job.CreatedAt.IsZero() {
		t.Error("created-at was not set")
	}
}

func TestMemoryRegistry_AddJobNormalizesSchedule(t *testing.T) {
	reg := NewMemoryRegistry()

	job := reg.AddJob(&models.Job{
		Name:     "Docs",
		Schedule: &models.Schedule{Enabled: true, Cadence: models.CadenceWeekly, TimeOfDay: "25:00"},
	})

	got, err := reg.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.Schedule.TimeOfDay != "23:00" {
		t.Errorf("time of day = %q, want the 23:00 default", got.Schedule.TimeOfDay)
	}
	if len(got.Schedule.Days) != 1 || got.Schedule.Days[0] != "mon" {
		t.Errorf("days = %v, want the weekly default [mon]", got.Schedule.Days)
	}
	if !got.Schedule.Enabled {
		t.Error("normalization dropped the enabled flag")
	}
}

func TestMemoryRegistry_GetJob(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.AddJob(&models.Job{Name: "Docs"})

	got, err := reg.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.Name != "Docs" {
		t.Errorf("name = %q", got.Name)
	}

	if _, err := reg.GetJob(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryRegistry_GetJobReturnsCopy(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.AddJob(&models.Job{
		Name:     "Docs",
		Schedule: &models.Schedule{Enabled: true, Cadence: models.CadenceDaily, TimeOfDay: "23:00"},
	})

	got, _ := reg.GetJob(context.Background(), job.ID)
	got.Name = "Tampered"
	due := time.Now()
	got.Schedule.NextDueAt = &due

	fresh, _ := reg.GetJob(context.Background(), job.ID)
	if fresh.Name != "Docs" {
		t.Error("caller mutation leaked into the stored job")
	}
	if fresh.Schedule.NextDueAt != nil {
		t.Error("caller mutation leaked into the stored schedule")
	}
}

func TestMemoryRegistry_GetSchedulableJobs(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.AddJob(&models.Job{Name: "No Schedule"})
	reg.AddJob(&models.Job{Name: "Disabled", Schedule: &models.Schedule{Enabled: false}})
	enabled := reg.AddJob(&models.Job{Name: "Enabled", Schedule: &models.Schedule{Enabled: true}})

	jobs, err := reg.GetSchedulableJobs(context.Background())
	if err != nil {
		t.Fatalf("GetSchedulableJobs() error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != enabled.ID {
		t.Errorf("schedulable jobs = %v, want only the enabled one", jobs)
	}
}

func TestMemoryRegistry_Credentials(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.AddJob(&models.Job{Name: "Docs"})

	reg.SetCredentials(job.ID, Credentials{
		Password: "secret",
		Env:      map[string]string{"B2_APPLICATION_KEY": "key"},
	})

	creds, err := reg.GetCredentials(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetCredentials() error: %v", err)
	}
	if creds.Password != "secret" || creds.Env["B2_APPLICATION_KEY"] != "key" {
		t.Errorf("unexpected credentials: %+v", creds)
	}

	if _, err := reg.GetCredentials(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetCredentials(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryRegistry_UpdateLastRun(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.AddJob(&models.Job{
		Name:     "Docs",
		Schedule: &models.Schedule{Enabled: true},
	})

	at := time.Now()
	outcome := &models.RunOutcome{Status: models.RunStatusError, Message: "disk full", ExitCode: 1}
	if err := reg.UpdateLastRun(context.Background(), job.ID, models.RunStatusError, at, outcome); err != nil {
		t.Fatalf("UpdateLastRun() error: %v", err)
	}

	got, _ := reg.GetJob(context.Background(), job.ID)
	if got.LastBackupStatus != models.RunStatusError {
		t.Errorf("last status = %s", got.LastBackupStatus)
	}
	if got.LastBackupRun == nil || got.LastBackupRun.Message != "disk full" {
		t.Errorf("last run = %+v", got.LastBackupRun)
	}
	if got.Schedule.LastError != "disk full" {
		t.Errorf("schedule last error = %q", got.Schedule.LastError)
	}

	if err := reg.UpdateLastRun(context.Background(), "missing", models.RunStatusSuccess, at, nil); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("UpdateLastRun(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryRegistry_UpdateNextDue(t *testing.T) {
	reg := NewMemoryRegistry()
	job := reg.AddJob(&models.Job{
		Name:     "Docs",
		Schedule: &models.Schedule{Enabled: true},
	})

	due := time.Now().Add(24 * time.Hour)
	sched := &models.Schedule{Enabled: true, Cadence: models.CadenceDaily, TimeOfDay: "23:00", NextDueAt: &due}
	if err := reg.UpdateNextDue(context.Background(), job.ID, sched); err != nil {
		t.Fatalf("UpdateNextDue() error: %v", err)
	}

	got, _ := reg.GetJob(context.Background(), job.ID)
	if got.Schedule.NextDueAt == nil || !got.Schedule.NextDueAt.Equal(due) {
		t.Errorf("next due = %v, want %v", got.Schedule.NextDueAt, due)
	}
}
