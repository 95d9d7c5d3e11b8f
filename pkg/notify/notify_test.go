package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/duplistack/core/internal/config"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/models"
)

func testJob() *models.Job {
	return &models.Job{
		ID:         "job-1",
		Name:       "Photo Archive",
		SourcePath: "/srv/photos",
		StorageURL: "/mnt/backups",
	}
}

func newDispatcher(url string) *WebhookDispatcher {
	return NewWebhookDispatcher(config.NotifierConfig{
		WebhookURL: url,
		Timeout:    5 * time.Second,
	}, logger.New("notify-test"))
}

func TestNotify_PostsOutcome(t *testing.T) {
	var received Payload
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rev := 7
	newDispatcher(server.URL).Notify(context.Background(), testJob(), models.RunOutcome{
		Status:          models.RunStatusSuccess,
		CreatedRevision: &rev,
		New:             3,
	})

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("webhook called %d times, want 1", calls)
	}
	if received.JobID != "job-1" || received.JobName != "Photo Archive" {
		t.Errorf("payload job = %s/%s", received.JobID, received.JobName)
	}
	if received.Outcome.Status != models.RunStatusSuccess {
		t.Errorf("payload status = %s", received.Outcome.Status)
	}
	if received.Outcome.CreatedRevision == nil || *received.Outcome.CreatedRevision != 7 {
		t.Errorf("payload revision = %v", received.Outcome.CreatedRevision)
	}
}

func TestNotify_EmptyURLIsNoop(t *testing.T) {
	// Must return without network activity or panic.
	newDispatcher("").Notify(context.Background(), testJob(), models.RunOutcome{
		Status: models.RunStatusSuccess,
	})
}

func TestNotify_AbsorbsEndpointErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// No return value to assert; the contract is simply that a failing
	// endpoint does not panic or block the caller.
	newDispatcher(server.URL).Notify(context.Background(), testJob(), models.RunOutcome{
		Status: models.RunStatusError,
	})
}

func TestNotify_BreakerShortCircuits(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := newDispatcher(server.URL)
	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), testJob(), models.RunOutcome{Status: models.RunStatusError})
	}

	// Three consecutive failures trip the breaker; later deliveries are
	// short-circuited instead of hitting the dead endpoint.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("endpoint hit %d times, want 3 before the breaker opens", got)
	}
}
