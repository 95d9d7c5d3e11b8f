// Package notify delivers terminal run outcomes to an external webhook.
// Delivery is fire-and-forget from the core's perspective: failures are
// logged and absorbed here, never surfaced into the run path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/duplistack/core/internal/config"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/models"
)

// Payload is the JSON body posted for each finished run.
type Payload struct {
	JobID      string            `json:"job_id"`
	JobName    string            `json:"job_name"`
	SourcePath string            `json:"source_path"`
	StorageURL string            `json:"storage_url"`
	FinishedAt time.Time         `json:"finished_at"`
	Outcome    models.RunOutcome `json:"outcome"`
}

// WebhookDispatcher posts run outcomes to a configured URL. A circuit
// breaker keeps a dead notification endpoint from adding latency to every
// finalize once it has started failing.
type WebhookDispatcher struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewWebhookDispatcher(cfg config.NotifierConfig, log *logger.Logger) *WebhookDispatcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "notify-webhook",
		Interval: time.Minute,
		Timeout:  2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notification breaker state changed")
		},
	})

	return &WebhookDispatcher{
		url: cfg.WebhookURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: breaker,
		log:     log,
	}
}

// Notify posts the outcome. Errors are logged, never returned: a failed
// notification must not fail or roll back the run it describes.
func (d *WebhookDispatcher) Notify(ctx context.Context, job *models.Job, outcome models.RunOutcome) {
	if d.url == "" {
		return
	}

	start := time.Now()
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.post(ctx, job, outcome)
	})
	d.log.LogNotify(job.ID, err == nil, time.Since(start), err)
}

func (d *WebhookDispatcher) post(ctx context.Context, job *models.Job, outcome models.RunOutcome) error {
	payload := Payload{
		JobID:      job.ID,
		JobName:    job.Name,
		SourcePath: job.SourcePath,
		StorageURL: job.StorageURL,
		FinishedAt: time.Now(),
		Outcome:    outcome,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
