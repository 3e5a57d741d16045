package models

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a RequestDescriptor with internal metadata for evaluation
type Envelope struct {
	// ID identifies one accepted submission across logs and sinks
	ID string `json:"id"`

	// Original request
	Request RequestDescriptor `json:"request"`

	// Internal processing metadata
	ReceivedAt time.Time `json:"received_at"`
	RequestID  string    `json:"request_id,omitempty"`
}

// NewEnvelope creates a new envelope wrapping a request descriptor
func NewEnvelope(req RequestDescriptor) *Envelope {
	return &Envelope{
		ID:         uuid.New().String(),
		Request:    req,
		ReceivedAt: time.Now().UTC(),
	}
}

// WithRequestID records the HTTP request id the envelope arrived with
func (e *Envelope) WithRequestID(requestID string) *Envelope {
	e.RequestID = requestID
	return e
}
