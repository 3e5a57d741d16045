package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"reqmon/internal/storage"
)

// Store is the part of the alert store the sink needs.
type Store interface {
	Save(ctx context.Context, rows []storage.AlertRow) error
	Close() error
}

// StoreSink writes one row per alert so alerts can be queried by rule and
// severity.
type StoreSink struct {
	store Store
}

// NewStoreSink wraps store.
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "sqlite" }

func (s *StoreSink) Append(ctx context.Context, rec Record) error {
	rows := make([]storage.AlertRow, 0, len(rec.Alerts))
	for _, a := range rec.Alerts {
		evidence, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode alert %q: %w", a.Name(), err)
		}
		rows = append(rows, storage.AlertRow{
			RecordID:         rec.ID,
			RuleName:         a.Name(),
			RuleType:         a.Type(),
			Severity:         a.Severity(),
			URL:              rec.Request.URL,
			Method:           rec.Request.Method,
			RequestTimestamp: rec.Request.Timestamp,
			Evidence:         string(evidence),
			CreatedAt:        rec.Timestamp,
		})
	}
	return s.store.Save(ctx, rows)
}

func (s *StoreSink) Close() error { return s.store.Close() }
