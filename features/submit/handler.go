package submit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tubewatch/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.WarnContext(ctx, "invalid submit body", "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":       MsgRequired,
			"code":          "VALIDATION_ERROR",
			"correlationId": correlationID,
		})
		return
	}

	j, err := h.service.Submit(ctx, req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			slog.InfoContext(ctx, "submission rejected", "reason", verr.Message)
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"message":       verr.Message,
				"code":          "VALIDATION_ERROR",
				"correlationId": correlationID,
			})
			return
		}
		slog.ErrorContext(ctx, "submission failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"message":       "Internal Server Error, please retry the submission",
			"code":          "INTERNAL_ERROR",
			"correlationId": correlationID,
		})
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"jobId":   j.ID,
		"message": MsgQueued,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
