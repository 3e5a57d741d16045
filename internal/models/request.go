package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RequestDescriptor describes one HTTP request observed by a client.
// It is created once per submission and never modified afterwards.
type RequestDescriptor struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	// Timestamp is supplied by the caller and passed through untouched
	Timestamp string `json:"timestamp"`
}

// Validation errors
var (
	ErrMalformedJSON = errors.New("malformed JSON body")
	ErrMissingField  = errors.New("field required")
	ErrInvalidType   = errors.New("invalid field type")
)

// FieldError reports a missing or mistyped request field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ParseRequest decodes and validates a request descriptor. Field names are
// matched exactly; unknown fields are ignored; every declared field must be
// present with the right JSON shape. A repeated key keeps its last value.
func ParseRequest(body []byte) (RequestDescriptor, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return RequestDescriptor{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	var req RequestDescriptor
	for _, f := range []struct {
		name string
		dst  any
	}{
		{"url", &req.URL},
		{"method", &req.Method},
		{"headers", &req.Headers},
		{"timestamp", &req.Timestamp},
	} {
		raw, ok := fields[f.name]
		if !ok || string(raw) == "null" {
			return RequestDescriptor{}, &FieldError{Field: f.name, Err: ErrMissingField}
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return RequestDescriptor{}, &FieldError{Field: f.name, Err: ErrInvalidType}
		}
	}

	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	return req, nil
}
