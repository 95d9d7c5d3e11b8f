package jobs

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/models"
	"github.com/duplistack/core/pkg/models/api"
	"github.com/duplistack/core/pkg/registry"
)

// Handler serves the job registry listing.
type Handler struct {
	reg    registry.Registry
	logger *logger.Logger
}

func NewHandler(reg registry.Registry, log *logger.Logger) *Handler {
	return &Handler{reg: reg, logger: log}
}

// List handles GET /api/jobs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	jobs, err := h.reg.ListJobs(r.Context())
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "list_jobs_failed").
			Msg("Failed to list jobs")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	out := make([]api.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResponse(job))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{Success: true, Data: out}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode jobs response")
		return
	}

	h.logger.Debug().
		Str("action", "list_jobs").
		Int("count", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Jobs listed")
}

func toJobResponse(job *models.Job) api.JobResponse {
	resp := api.JobResponse{
		ID:               job.ID,
		Name:             job.Name,
		SourcePath:       job.SourcePath,
		StorageURL:       job.StorageURL,
		SnapshotID:       job.SnapshotID,
		ContentSelection: job.ContentSelection,
		Schedule:         job.Schedule,
		LastBackupAt:     job.LastBackupAt,
		LastBackupStatus: string(job.LastBackupStatus),
	}
	return resp
}
