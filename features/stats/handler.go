package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"tubewatch/backend/internal/middleware"
)

type JobCounter interface {
	Count(ctx context.Context) (int, error)
}

type FailedJobCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	jobs   JobCounter
	failed FailedJobCounter
}

func NewHandler(j JobCounter, f FailedJobCounter) *Handler {
	return &Handler{jobs: j, failed: f}
}

type StatsResponse struct {
	Jobs       int `json:"jobs"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "getting stats")

	jCount, err := h.jobs.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	fCount, err := h.failed.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count failed jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count failed jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Jobs:       jCount,
		FailedJobs: fCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
