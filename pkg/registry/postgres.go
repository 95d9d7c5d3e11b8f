package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duplistack/core/pkg/models"
)

// PostgresRegistry stores jobs in Postgres through a pgx pool. Schedules,
// outcomes and credential environments live in jsonb columns so schema
// churn stays out of the hot path.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const jobColumns = `id, name, source_path, storage_url, storage_name, snapshot_id,
	content_selection, encrypted, schedule, last_backup_at, last_backup_status,
	last_backup_run, created_at`

func (p *PostgresRegistry) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (p *PostgresRegistry) ListJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (p *PostgresRegistry) GetSchedulableJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE (schedule ->> 'enabled')::boolean IS TRUE
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list schedulable jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (p *PostgresRegistry) GetCredentials(ctx context.Context, id string) (Credentials, error) {
	var password *string
	var envJSON []byte
	err := p.db.QueryRow(ctx,
		`SELECT storage_password, credentials_env FROM jobs WHERE id = $1`, id).
		Scan(&password, &envJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credentials{}, ErrJobNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("get credentials for job %s: %w", id, err)
	}

	creds := Credentials{}
	if password != nil {
		creds.Password = *password
	}
	if len(envJSON) > 0 {
		if err := json.Unmarshal(envJSON, &creds.Env); err != nil {
			return Credentials{}, fmt.Errorf("decode credentials env for job %s: %w", id, err)
		}
	}
	return creds, nil
}

func (p *PostgresRegistry) UpdateLastRun(ctx context.Context, id string, status models.RunStatus, at time.Time, outcome *models.RunOutcome) error {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode run outcome for job %s: %w", id, err)
	}

	lastError := ""
	if outcome != nil && status != models.RunStatusSuccess {
		lastError = outcome.Message
	}

	tag, err := p.db.Exec(ctx,
		`UPDATE jobs SET
			last_backup_at = $2,
			last_backup_status = $3,
			last_backup_run = $4,
			schedule = CASE WHEN schedule IS NULL THEN NULL
				ELSE schedule || jsonb_build_object(
					'last_run_at', to_char($2::timestamptz, 'YYYY-MM-DD"T"HH24:MI:SSOF'),
					'last_run_status', $3::text,
					'last_error', $5::text)
			END
		 WHERE id = $1`,
		id, at, string(status), outcomeJSON, lastError)
	if err != nil {
		return fmt.Errorf("update last run for job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (p *PostgresRegistry) UpdateNextDue(ctx context.Context, id string, schedule *models.Schedule) error {
	scheduleJSON, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("encode schedule for job %s: %w", id, err)
	}

	tag, err := p.db.Exec(ctx,
		`UPDATE jobs SET schedule = $2 WHERE id = $1`, id, scheduleJSON)
	if err != nil {
		return fmt.Errorf("update schedule for job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var contentJSON, scheduleJSON, outcomeJSON []byte
	var lastStatus *string

	err := row.Scan(
		&job.ID, &job.Name, &job.SourcePath, &job.StorageURL, &job.StorageName,
		&job.SnapshotID, &contentJSON, &job.Encrypted, &scheduleJSON,
		&job.LastBackupAt, &lastStatus, &outcomeJSON, &job.CreatedAt)
	if err != nil {
		return nil, err
	}

	if lastStatus != nil {
		job.LastBackupStatus = models.RunStatus(*lastStatus)
	}
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &job.ContentSelection); err != nil {
			return nil, fmt.Errorf("decode content selection: %w", err)
		}
	}
	if len(scheduleJSON) > 0 {
		if err := json.Unmarshal(scheduleJSON, &job.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", err)
		}
	}
	if len(outcomeJSON) > 0 {
		if err := json.Unmarshal(outcomeJSON, &job.LastBackupRun); err != nil {
			return nil, fmt.Errorf("decode last run: %w", err)
		}
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}
