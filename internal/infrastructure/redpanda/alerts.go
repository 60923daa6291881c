package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/pkg/circuitbreaker"
)

// EventMissedDose is the event_type header of caregiver alert records
const EventMissedDose = "caregiver.alert.missed_dose"

// RecordProducer is the subset of Producer the publisher needs
type RecordProducer interface {
	Produce(ctx context.Context, rec *Record) error
}

// AlertEvent is the payload written to the caregiver alert topic. Downstream
// senders (email, push) fan it out to Recipients and may dedupe on Key.
type AlertEvent struct {
	EventID       string              `json:"event_id"`
	EventType     string              `json:"event_type"`
	SchemaVersion int                 `json:"schema_version"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Alert         *alert.Notification `json:"alert"`
}

// AlertPublisher delivers caregiver alerts by producing them to Redpanda.
// It implements alert.Deliverer.
type AlertPublisher struct {
	producer RecordProducer
	topic    string
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *zap.Logger
	newID    func() string
}

// NewAlertPublisher creates a publisher. breaker and m may be nil.
func NewAlertPublisher(producer RecordProducer, topic string, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, newID func() string, logger *zap.Logger) *AlertPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = TopicCaregiverAlerts
	}
	return &AlertPublisher{
		producer: producer,
		topic:    topic,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
		newID:    newID,
	}
}

// Deliver publishes n, keyed by its dose key so every alert for a dose lands
// on the same partition.
func (p *AlertPublisher) Deliver(ctx context.Context, n *alert.Notification) error {
	event := AlertEvent{
		EventType:     EventMissedDose,
		SchemaVersion: 1,
		OccurredAt:    n.CreatedAt,
		Alert:         n,
	}
	if p.newID != nil {
		event.EventID = p.newID()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	rec := &Record{
		Topic: p.topic,
		Key:   n.Key,
		Value: value,
		Headers: map[string]string{
			"event_type":      EventMissedDose,
			"idempotency_key": n.Key,
			"content_type":    "application/json",
		},
	}

	produce := func(ctx context.Context) error {
		return p.producer.Produce(ctx, rec)
	}
	if p.breaker != nil {
		err = p.breaker.Do(ctx, produce)
	} else {
		err = produce(ctx)
	}
	if err != nil {
		return fmt.Errorf("publish alert %s: %w", n.Key, err)
	}

	if p.metrics != nil {
		p.metrics.AlertsPublished.Inc()
	}
	p.logger.Debug("caregiver alert published",
		zap.String("dose_key", n.Key),
		zap.String("topic", p.topic),
		zap.Int("recipients", len(n.Recipients)))
	return nil
}

// AlertHandler decodes caregiver alert records and passes those addressed to
// accountID to fn. Records of other event types or for other accounts are
// acknowledged and dropped; undecodable records are dropped with a warning.
func AlertHandler(accountID string, fn func(ctx context.Context, n *alert.Notification) error, logger *zap.Logger) MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, msg *ConsumedMessage) error {
		if t := msg.Headers["event_type"]; t != "" && t != EventMissedDose {
			return nil
		}

		var event AlertEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil || event.Alert == nil {
			logger.Warn("dropping undecodable alert record",
				zap.String("key", string(msg.Key)),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}

		for _, r := range event.Alert.Recipients {
			if r == accountID {
				return fn(ctx, event.Alert)
			}
		}
		return nil
	}
}
