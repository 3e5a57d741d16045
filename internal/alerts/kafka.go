package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"reqmon/internal/kafka"
)

// Publisher is the part of the kafka producer the sink needs.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaSink publishes each record as one message keyed by record id.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

// NewKafkaSink wraps publisher. topic is only used for naming.
func NewKafkaSink(publisher Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka:" + s.topic }

func (s *KafkaSink) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	severity := ""
	if len(rec.Alerts) > 0 {
		severity = rec.Alerts[0].Severity()
	}

	return s.publisher.Publish(ctx, kafka.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: map[string]string{
			"record_id":      rec.ID,
			"alert_count":    strconv.Itoa(len(rec.Alerts)),
			"first_severity": severity,
			"request_method": rec.Request.Method,
		},
		Time: rec.Timestamp,
	})
}

func (s *KafkaSink) Close() error { return s.publisher.Close() }
