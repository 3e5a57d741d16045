package handlers

import (
	"context"
	"net/http"
	"strconv"

	"reqmon/internal/logger"
	"reqmon/internal/storage"
)

// AlertReader is the read side of the alert store
type AlertReader interface {
	Recent(ctx context.Context, limit int) ([]storage.AlertRow, error)
	CountBySeverity(ctx context.Context) (map[string]int64, error)
}

// AlertsHandler lists recently stored alerts
type AlertsHandler struct {
	reader   AlertReader
	maxLimit int
}

// NewAlertsHandler creates a handler over reader
func NewAlertsHandler(reader AlertReader) *AlertsHandler {
	return &AlertsHandler{reader: reader, maxLimit: 500}
}

// AlertsResponse is the body of GET /api/v1/alerts
type AlertsResponse struct {
	Alerts     []storage.AlertRow `json:"alerts"`
	BySeverity map[string]int64   `json:"by_severity"`
}

func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "limit: must be a positive integer")
			return
		}
		limit = min(n, h.maxLimit)
	}

	log := logger.WithRequestID(r.Header.Get("X-Request-ID"))

	rows, err := h.reader.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read alerts")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	counts, err := h.reader.CountBySeverity(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to count alerts")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if rows == nil {
		rows = []storage.AlertRow{}
	}
	writeJSON(w, http.StatusOK, AlertsResponse{Alerts: rows, BySeverity: counts})
}
