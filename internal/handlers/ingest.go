package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"reqmon/internal/logger"
	"reqmon/internal/metrics"
	"reqmon/internal/models"
)

// Submitter schedules an envelope for background evaluation. It reports
// false when the evaluation was dropped.
type Submitter interface {
	Submit(env *models.Envelope) bool
}

// IngestHandler accepts request descriptors from monitoring clients
type IngestHandler struct {
	submitter Submitter

	// Max body size (default 1MB)
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Submitter   Submitter
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 << 20
	}

	return &IngestHandler{
		submitter:   cfg.Submitter,
		maxBodySize: maxBodySize,
	}
}

// IngestResponse is returned for every accepted descriptor. Evaluation
// happens after the response is written.
type IngestResponse struct {
	Status string `json:"status"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.reject(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	}

	req, err := models.ParseRequest(body)
	if err != nil {
		var fieldErr *models.FieldError
		switch {
		case errors.As(err, &fieldErr) && errors.Is(err, models.ErrMissingField):
			h.reject(w, r, http.StatusUnprocessableEntity, "missing_field", err.Error())
		case errors.As(err, &fieldErr):
			h.reject(w, r, http.StatusUnprocessableEntity, "invalid_type", err.Error())
		default:
			h.reject(w, r, http.StatusBadRequest, "malformed_json", err.Error())
		}
		return
	}

	env := models.NewEnvelope(req).WithRequestID(r.Header.Get("X-Request-ID"))
	// A dropped evaluation is logged by the submitter; the caller is still
	// told the request was accepted.
	h.submitter.Submit(env)

	metrics.IngestRequestsTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, IngestResponse{Status: "accepted"})
}

func (h *IngestHandler) reject(w http.ResponseWriter, r *http.Request, status int, errorType, detail string) {
	log := logger.WithRequestID(r.Header.Get("X-Request-ID"))
	log.Debug().
		Int("status", status).
		Str("error_type", errorType).
		Str("detail", detail).
		Msg("request descriptor rejected")
	metrics.IngestRequestsTotal.WithLabelValues("rejected").Inc()
	metrics.IngestValidationErrors.WithLabelValues(errorType).Inc()
	writeError(w, status, detail)
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
