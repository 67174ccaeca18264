package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"tubewatch/backend/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load settings", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to load settings", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": s.Masked()})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		YouTubeAPIKey    *string `json:"youtube_api_key"`
		SearchRegionCode string  `json:"search_region_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	current, err := h.svc.Get(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load settings", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to load settings", http.StatusInternalServerError)
		return
	}
	// omitting the key keeps the stored one
	if req.YouTubeAPIKey != nil {
		current.YouTubeAPIKey = *req.YouTubeAPIKey
	}
	current.SearchRegionCode = req.SearchRegionCode

	if err := h.svc.Update(r.Context(), current); err != nil {
		slog.ErrorContext(r.Context(), "failed to update settings", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to update settings", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
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

	json.NewEncoder(w).Encode(resp)
}
