package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/venuebook/libs/kafkax"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// Topic maps an event type to its Kafka topic, one topic per event.
func Topic(t model.EventType) string {
	return "booking." + string(t) + ".v1"
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes reservation events for the notification service to consume.
type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(brokers []string) *KafkaNotifier {
	return &KafkaNotifier{writer: kafkax.NewWriter(brokers)}
}

type reservationPayload struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	OccurredAt     time.Time `json:"occurred_at"`
	ReservationID  string    `json:"reservation_id"`
	OrganizationID string    `json:"organization_id"`
	ActivityID     string    `json:"activity_id"`
	CustomerID     string    `json:"customer_id"`
	Date           string    `json:"date"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	PartySize      int       `json:"party_size"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	TotalCents     int64     `json:"total_cents"`
	Currency       string    `json:"currency,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

func (n *KafkaNotifier) Notify(ctx context.Context, evt model.ReservationEvent) error {
	r := evt.Reservation
	topic := Topic(evt.Type)
	payload, err := json.Marshal(reservationPayload{
		EventID:        evt.ID,
		EventType:      topic,
		OccurredAt:     evt.OccurredAt.UTC(),
		ReservationID:  r.ID,
		OrganizationID: r.OrganizationID,
		ActivityID:     r.ActivityID,
		CustomerID:     r.CustomerID,
		Date:           clock.FormatDate(r.Date),
		StartTime:      r.StartTime(),
		EndTime:        r.EndTime(),
		PartySize:      r.PartySize,
		Status:         string(r.Status),
		PaymentStatus:  string(r.PaymentStatus),
		TotalCents:     r.TotalCents,
		Currency:       r.Currency,
		Reason:         evt.Reason,
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(r.ID),
		Value:   payload,
		Headers: kafkax.EventHeaders(evt.ID, topic),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return n.writer.WriteMessages(ctx, msg)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier is used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, evt model.ReservationEvent) error {
	n.logger.Info("reservation event",
		"event_id", evt.ID,
		"event_type", Topic(evt.Type),
		"reservation_id", evt.Reservation.ID,
		"status", evt.Reservation.Status,
		"reason", evt.Reason,
	)
	return nil
}
