package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType     = flag.String("type", getenv("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
		org         = flag.String("organization-id", getenv("ORGANIZATION_ID", ""), "organization_id metadata")
		reservation = flag.String("reservation-id", getenv("RESERVATION_ID", ""), "reservation_id metadata")
		amount      = flag.Int64("amount", 0, "amount received in cents")
		eventID     = flag.String("event-id", "", "reuse an event id to test duplicate delivery")
		repeat      = flag.Int("repeat", 1, "deliver the same event this many times")
		secret      = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*org) == "" || strings.TrimSpace(*reservation) == "" {
		fatal("ORGANIZATION_ID and RESERVATION_ID are required")
	}

	now := time.Now().UTC()
	id := *eventID
	if id == "" {
		id = fmt.Sprintf("evt_test_%d", now.UnixNano())
	}

	payload, err := buildEventJSON(id, *evtType, now, *org, *reservation, *amount)
	if err != nil {
		fatal(err.Error())
	}

	url := strings.TrimRight(*baseURL, "/") + "/api/v1/payments/webhooks/stripe"
	for i := 0; i < *repeat; i++ {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    *secret,
			Timestamp: time.Now(),
			Scheme:    "v1",
		})
		if err := deliver(url, payload, signed.Header); err != nil {
			fatal(err.Error())
		}
	}
}

func deliver(url string, payload []byte, signature string) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	return nil
}

func buildEventJSON(eventID, eventType string, t time.Time, organizationID, reservationID string, amount int64) ([]byte, error) {
	metadata := map[string]any{
		"organization_id": organizationID,
		"reservation_id":  reservationID,
	}
	var object map[string]any
	switch eventType {
	case "payment_intent.succeeded":
		object = map[string]any{
			"id":              "pi_test_" + eventID,
			"object":          "payment_intent",
			"status":          "succeeded",
			"amount":          amount,
			"amount_received": amount,
			"metadata":        metadata,
		}
	case "checkout.session.completed":
		object = map[string]any{
			"id":             "cs_test_" + eventID,
			"object":         "checkout.session",
			"payment_status": "paid",
			"amount_total":   amount,
			"metadata":       metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
