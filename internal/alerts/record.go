// Package alerts persists the alerts produced for one request. Every sink
// receives the same Record: the original request plus its alerts.
package alerts

import (
	"time"

	"github.com/tidwall/sjson"

	"reqmon/internal/models"
)

// Record is the unit appended to alert sinks.
type Record struct {
	ID        string
	Timestamp time.Time
	Request   models.RequestDescriptor
	Alerts    []models.Alert
}

// NewRecord builds the record for alerts raised by env.
func NewRecord(env *models.Envelope, alerts []models.Alert) Record {
	return Record{
		ID:        env.ID,
		Timestamp: time.Now().UTC(),
		Request:   env.Request,
		Alerts:    alerts,
	}
}

// MarshalJSON encodes the record in the alert log wire shape:
//
//	{"id", "timestamp", "request": {"url", "method", "headers",
//	"request_timestamp"}, "alerts": [...]}
func (r Record) MarshalJSON() ([]byte, error) {
	headers := r.Request.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	alerts := r.Alerts
	if alerts == nil {
		alerts = []models.Alert{}
	}

	doc := []byte(`{}`)
	var err error
	for _, field := range []struct {
		path  string
		value any
	}{
		{"id", r.ID},
		{"timestamp", r.Timestamp.Format(time.RFC3339Nano)},
		{"request.url", r.Request.URL},
		{"request.method", r.Request.Method},
		{"request.headers", headers},
		{"request.request_timestamp", r.Request.Timestamp},
		{"alerts", alerts},
	} {
		if doc, err = sjson.SetBytes(doc, field.path, field.value); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
