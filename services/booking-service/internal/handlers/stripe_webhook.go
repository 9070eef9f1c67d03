package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/venuebook/libs/httpx"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type PaymentWebhookHandler struct {
	bookings  BookingService
	logger    *slog.Logger
	secret    string
	tolerance time.Duration
}

func NewPaymentWebhookHandler(bookings BookingService, logger *slog.Logger, secret string, tolerance time.Duration) *PaymentWebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &PaymentWebhookHandler{
		bookings:  bookings,
		logger:    logger,
		secret:    strings.TrimSpace(secret),
		tolerance: tolerance,
	}
}

// StripeWebhook confirms reservations from Stripe payment events.
// There is no tenant auth on this route; the signature is the auth and the
// organization comes from the metadata set when the payment was created.
func (h *PaymentWebhookHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.secret == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.secret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("stripe: signature verification failed", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", string(evt.Type),
	)

	pc, ok := h.confirmation(evt)
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	res, err := h.bookings.ConfirmPayment(r.Context(), pc)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "reservation_status": string(res.Status)})
	case errors.Is(err, model.ErrDuplicateEvent):
		h.logger.Info("payment provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	case errors.Is(err, model.ErrPersistence):
		// Non-2xx makes Stripe redeliver.
		h.logger.Error("stripe: confirm payment failed", "provider_event_id", evt.ID, "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	case model.IsSemantic(err):
		h.logger.Warn("stripe: payment not applied",
			"provider_event_id", evt.ID,
			"reservation_id", pc.ReservationID,
			"err", err,
		)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		h.logger.Error("stripe: confirm payment failed", "provider_event_id", evt.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *PaymentWebhookHandler) confirmation(evt stripe.Event) (booking.PaymentConfirmation, bool) {
	pc := booking.PaymentConfirmation{Provider: "stripe", EventID: evt.ID}
	var metadata map[string]string

	switch evt.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			return pc, false
		}
		metadata = pi.Metadata
		pc.AmountCents = pi.AmountReceived
		pc.PaymentRef = pi.ID

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			return pc, false
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return pc, false
		}
		metadata = session.Metadata
		pc.AmountCents = session.AmountTotal
		pc.PaymentRef = session.ID
		if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
			pc.PaymentRef = session.PaymentIntent.ID
		}

	default:
		return pc, false
	}

	pc.OrganizationID = strings.TrimSpace(metadata["organization_id"])
	pc.ReservationID = strings.TrimSpace(metadata["reservation_id"])
	if pc.OrganizationID == "" || pc.ReservationID == "" {
		h.logger.Warn("stripe: missing metadata (organization_id/reservation_id)", "provider_event_id", evt.ID)
		return pc, false
	}
	return pc, true
}
