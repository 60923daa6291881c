package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/schedule"
	"github.com/caretrack/doseguard/pkg/circuitbreaker"
)

type fakeProducer struct {
	records []*Record
	err     error
}

func (f *fakeProducer) Produce(ctx context.Context, rec *Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func notification() *alert.Notification {
	d := schedule.NewDate(2026, 5, 10)
	t := schedule.MustClockTime("08:00")
	return &alert.Notification{
		Key:             schedule.DoseKey("rx-1", t, d),
		PrescriptionID:  "rx-1",
		PatientID:       "patient-1",
		PatientName:     "Maria",
		MedicationName:  "Losartana 50 mg",
		Date:            d,
		Time:            t,
		LatenessMinutes: 45,
		Recipients:      []string{"acct-1"},
		CreatedAt:       time.Date(2026, 5, 10, 8, 45, 0, 0, time.UTC),
	}
}

func TestAlertPublisher_Deliver(t *testing.T) {
	prod := &fakeProducer{}
	m := metrics.New(prometheus.NewRegistry())
	pub := NewAlertPublisher(prod, "", nil, m, func() string { return "evt-1" }, zaptest.NewLogger(t))

	if err := pub.Deliver(context.Background(), notification()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(prod.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(prod.records))
	}

	rec := prod.records[0]
	if rec.Topic != TopicCaregiverAlerts {
		t.Errorf("expected default topic, got %q", rec.Topic)
	}
	if rec.Key != "rx-1-08:00-2026-05-10" {
		t.Errorf("expected dose key as record key, got %q", rec.Key)
	}
	if rec.Headers["event_type"] != EventMissedDose {
		t.Errorf("missing event_type header: %v", rec.Headers)
	}

	var event AlertEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.EventID != "evt-1" || event.Alert.PatientName != "Maria" || event.Alert.LatenessMinutes != 45 {
		t.Errorf("unexpected payload: %+v", event)
	}
	if got := testutil.ToFloat64(m.AlertsPublished); got != 1 {
		t.Errorf("expected 1 published alert metric, got %v", got)
	}
}

func TestAlertPublisher_BreakerOpens(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker unavailable")}
	cfg := circuitbreaker.DefaultConfig("alerts")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	cb, err := circuitbreaker.New(cfg, nil)
	if err != nil {
		t.Fatalf("breaker: %v", err)
	}
	pub := NewAlertPublisher(prod, "alerts.test", cb, nil, nil, nil)

	for i := 0; i < 2; i++ {
		if err := pub.Deliver(context.Background(), notification()); err == nil {
			t.Fatal("expected delivery error")
		}
	}
	err = pub.Deliver(context.Background(), notification())
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("expected open circuit, got %v", err)
	}
}

func TestAlertHandler_FiltersRecipients(t *testing.T) {
	n := notification()
	n.Recipients = []string{"acct-owner", "acct-caregiver"}
	value, err := json.Marshal(AlertEvent{EventType: EventMissedDose, SchemaVersion: 1, Alert: n})
	if err != nil {
		t.Fatal(err)
	}
	msg := &ConsumedMessage{Key: []byte(n.Key), Value: value, Headers: map[string]string{"event_type": EventMissedDose}}

	var got []*alert.Notification
	collect := func(ctx context.Context, n *alert.Notification) error {
		got = append(got, n)
		return nil
	}

	if err := AlertHandler("acct-caregiver", collect, zaptest.NewLogger(t))(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := AlertHandler("acct-stranger", collect, nil)(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(got) != 1 || got[0].Key != n.Key {
		t.Fatalf("expected one alert for the recipient, got %d", len(got))
	}

	other := &ConsumedMessage{Value: value, Headers: map[string]string{"event_type": "something.else"}}
	garbage := &ConsumedMessage{Value: []byte("{not json")}
	for _, m := range []*ConsumedMessage{other, garbage} {
		if err := AlertHandler("acct-caregiver", collect, nil)(context.Background(), m); err != nil {
			t.Errorf("unexpected error %v", err)
		}
	}
	if len(got) != 1 {
		t.Errorf("foreign and undecodable records must be dropped, got %d", len(got))
	}

	failing := func(ctx context.Context, n *alert.Notification) error { return errors.New("display failed") }
	if err := AlertHandler("acct-owner", failing, nil)(context.Background(), msg); err == nil {
		t.Error("handler errors must propagate so the record stays uncommitted")
	}
}

func TestNewConsumer_Validation(t *testing.T) {
	handler := func(ctx context.Context, msg *ConsumedMessage) error { return nil }
	if _, err := NewConsumer(DefaultConsumerConfig(), nil, nil); err == nil {
		t.Error("expected error without handler")
	}
	cfg := DefaultConsumerConfig()
	cfg.GroupID = ""
	if _, err := NewConsumer(cfg, handler, nil); err == nil {
		t.Error("expected error without group")
	}
}

func TestCommitHold_BlocksPartitionUntilReleased(t *testing.T) {
	h := newCommitHold()
	if h.held(TopicCaregiverAlerts, 0) {
		t.Fatal("nothing is held initially")
	}

	h.hold(TopicCaregiverAlerts, 0)
	if !h.held(TopicCaregiverAlerts, 0) {
		t.Error("later records in a failed partition must not be committed")
	}
	if h.held(TopicCaregiverAlerts, 1) || h.held("other", 0) {
		t.Error("a failure only holds its own partition")
	}

	h.release(map[string][]int32{TopicCaregiverAlerts: {1}})
	if !h.held(TopicCaregiverAlerts, 0) {
		t.Error("releasing another partition must keep the hold")
	}
	h.release(map[string][]int32{TopicCaregiverAlerts: {0}, "unknown": {3}})
	if h.held(TopicCaregiverAlerts, 0) {
		t.Error("a revoked partition is no longer held")
	}
}
