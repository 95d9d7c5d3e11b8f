// Package backups exposes the run coordinator over HTTP: manual start,
// cancel, a lightweight status poll, and a server-sent live progress
// stream.
package backups

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/duplistack/core/pkg/coordinator"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/models"
	"github.com/duplistack/core/pkg/models/api"
	"github.com/duplistack/core/pkg/registry"
)

// Handler bridges HTTP requests to the run coordinator.
type Handler struct {
	coord  *coordinator.Coordinator
	logger *logger.Logger
}

func NewHandler(coord *coordinator.Coordinator, log *logger.Logger) *Handler {
	return &Handler{coord: coord, logger: log}
}

// Start handles POST /api/backup/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.coord.StartRun(r.Context(), req.JobID, models.TriggerManual, req.Threads)
	switch {
	case errors.Is(err, coordinator.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, api.Response{Success: false, Message: "Backup already running"})
		return
	case errors.Is(err, registry.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, api.Response{Success: false, Message: "Job not found"})
		return
	case err != nil:
		// Spawn failures are already captured as a failed outcome; report
		// the rejection to the caller as well.
		h.logger.Error().Err(err).Str("job_id", req.JobID).Msg("Manual run failed to start")
		writeJSON(w, http.StatusInternalServerError, api.Response{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, api.Response{Success: true})
}

// Cancel handles POST /api/backup/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.CancelRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.coord.Cancel(req.JobID); err != nil {
		if errors.Is(err, coordinator.ErrNotRunning) {
			writeJSON(w, http.StatusNotFound, api.Response{Success: false, Message: "No backup running for this job"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, api.Response{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, api.Response{Success: true, Message: "Cancellation requested"})
}

// Status handles GET /api/backup/status/{id}: the cheap poll for callers
// that do not want the full event stream.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := pathSuffix(r.URL.Path, "/api/backup/status/")
	if jobID == "" {
		http.Error(w, "Missing job id", http.StatusBadRequest)
		return
	}

	info := h.coord.Status(jobID)
	resp := api.RunStatusResponse{
		Running: info.Running,
		Trigger: string(info.Trigger),
	}
	if info.Running {
		resp.StartedAt = info.StartedAt.Format(time.RFC3339)
		resp.ElapsedSec = info.ElapsedSec
		resp.LastOutput = info.LastOutput
	}
	writeJSON(w, http.StatusOK, resp)
}

// Progress handles GET /api/backup/progress/{id} as a server-sent event
// stream: one event per message, ending with a done payload.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := pathSuffix(r.URL.Path, "/api/backup/progress/")
	if jobID == "" {
		http.Error(w, "Missing job id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := h.coord.Subscribe(jobID)
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload := toProgressEvent(event)
			if err := writeSSE(w, payload); err != nil {
				h.logger.Debug().Err(err).Str("job_id", jobID).Msg("Progress subscriber went away")
				return
			}
			flusher.Flush()
			if event.Type == models.RunEventDone {
				return
			}
		}
	}
}

func toProgressEvent(event models.RunEvent) api.ProgressEvent {
	switch event.Type {
	case models.RunEventDone:
		return api.ProgressEvent{
			Done:      true,
			Cancelled: event.Cancelled,
			Outcome:   event.Outcome,
		}
	case models.RunEventOutput:
		return api.ProgressEvent{Running: true, Output: event.Line}
	default:
		return api.ProgressEvent{Running: true}
	}
}

func writeSSE(w http.ResponseWriter, payload api.ProgressEvent) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pathSuffix(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}
