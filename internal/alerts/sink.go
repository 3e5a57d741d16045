package alerts

import (
	"context"
	"errors"
	"fmt"

	"reqmon/internal/logger"
	"reqmon/internal/metrics"
)

// Sink durably appends alert records. Implementations must tolerate
// concurrent Append calls.
type Sink interface {
	Name() string
	Append(ctx context.Context, rec Record) error
	Close() error
}

// Multi fans a record out to every sink. One failing sink does not keep the
// record from the others.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Name lists the combined sinks.
func (m *Multi) Name() string {
	return fmt.Sprintf("multi%v", m.Names())
}

// Names returns the name of every combined sink.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Append delivers rec to every sink and joins their errors.
func (m *Multi) Append(ctx context.Context, rec Record) error {
	log := logger.WithComponent("alert_sink")

	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, rec); err != nil {
			log.Error().
				Err(err).
				Str("sink", s.Name()).
				Str("record_id", rec.ID).
				Int("alerts", len(rec.Alerts)).
				Msg("failed to append alerts")
			metrics.SinkAppendTotal.WithLabelValues(s.Name(), "failed").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		metrics.SinkAppendTotal.WithLabelValues(s.Name(), "success").Inc()
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
