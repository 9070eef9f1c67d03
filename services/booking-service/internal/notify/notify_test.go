package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/venuebook/libs/kafkax"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaNotifier_Notify(t *testing.T) {
	w := &captureWriter{}
	n := &KafkaNotifier{writer: w}

	evt := model.ReservationEvent{
		ID:   "evt-1",
		Type: model.EventReservationCancelled,
		Reservation: model.Reservation{
			ID:             "res-1",
			OrganizationID: "org-1",
			ActivityID:     "act-1",
			Date:           time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC),
			StartMinute:    600,
			EndMinute:      660,
			PartySize:      2,
			Status:         model.StatusCancelled,
			PaymentStatus:  model.PaymentPending,
		},
		Reason:     "expired",
		OccurredAt: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := n.Notify(context.Background(), evt); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "booking.reservation.cancelled.v1" || string(msg.Key) != "res-1" {
		t.Fatalf("unexpected topic/key %s/%s", msg.Topic, msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != "evt-1" {
		t.Fatalf("missing event_id header: %v", msg.Headers)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload["date"] != "2025-06-16" || payload["start_time"] != "10:00" || payload["reason"] != "expired" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestKafkaNotifier_PropagatesWriteError(t *testing.T) {
	n := &KafkaNotifier{writer: &captureWriter{err: errors.New("leader not available")}}
	err := n.Notify(context.Background(), model.ReservationEvent{Type: model.EventReservationConfirmed})
	if err == nil {
		t.Fatal("expected write error")
	}
}
