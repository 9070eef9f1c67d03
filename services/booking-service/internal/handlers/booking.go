package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/venuebook/libs/httpx"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

var validate = validator.New()

type AvailabilityService interface {
	GetAvailability(ctx context.Context, organizationID, activityID string, date time.Time) ([]model.TimeSlot, error)
}

type BookingService interface {
	Book(ctx context.Context, req booking.Request) (model.Reservation, error)
	Cancel(ctx context.Context, organizationID, reservationID, reason string) (model.Reservation, error)
	UpdateStatus(ctx context.Context, organizationID, reservationID string, status model.Status) (model.Reservation, error)
	List(ctx context.Context, filter booking.ListFilter) ([]model.Reservation, error)
	ConfirmPayment(ctx context.Context, pc booking.PaymentConfirmation) (model.Reservation, error)
}

type BookingHandler struct {
	availability AvailabilityService
	bookings     BookingService
	logger       *slog.Logger
}

func NewBookingHandler(availability AvailabilityService, bookings BookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		availability: availability,
		bookings:     bookings,
		logger:       logger,
	}
}

type customerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=200"`
	Phone string `json:"phone" validate:"max=40"`
}

type createBookingRequest struct {
	ActivityID string          `json:"activity_id" validate:"required"`
	Date       string          `json:"date" validate:"required"`
	StartTime  string          `json:"start_time" validate:"required"`
	PartySize  int             `json:"party_size"`
	Customer   customerRequest `json:"customer"`
}

type cancelBookingRequest struct {
	ReservationID string `json:"reservation_id" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
}

type updateStatusRequest struct {
	ReservationID string `json:"reservation_id" validate:"required"`
	Status        string `json:"status" validate:"required"`
}

type slotResponse struct {
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Capacity          int    `json:"capacity"`
	RemainingCapacity int    `json:"remaining_capacity"`
	Available         bool   `json:"available"`
	Reason            string `json:"reason,omitempty"`
}

type reservationResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	ActivityID     string `json:"activity_id"`
	CustomerID     string `json:"customer_id"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	PartySize      int    `json:"party_size"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	TotalCents     int64  `json:"total_cents"`
	Currency       string `json:"currency,omitempty"`
	PaymentRef     string `json:"payment_ref,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CreatedAt      string `json:"created_at"`
	ConfirmedAt    string `json:"confirmed_at,omitempty"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
}

// Availability serves GET /api/v1/availability?activity_id=&date=.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	activityID := strings.TrimSpace(r.URL.Query().Get("activity_id"))
	if activityID == "" {
		httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "activity_id required")
		return
	}
	date, err := clock.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	slots, err := h.availability.GetAvailability(r.Context(), httpx.OrganizationIDFromContext(r.Context()), activityID, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			StartTime:         s.Start,
			EndTime:           s.End,
			Capacity:          s.Capacity,
			RemainingCapacity: s.RemainingCapacity,
			Available:         s.Available,
			Reason:            string(s.Reason),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"activity_id": activityID,
		"date":        clock.FormatDate(date),
		"slots":       out,
	})
}

// Bookings serves /api/v1/bookings: POST creates a reservation, GET lists them.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.bookings.Book(r.Context(), booking.Request{
		OrganizationID: httpx.OrganizationIDFromContext(r.Context()),
		ActivityID:     strings.TrimSpace(req.ActivityID),
		Date:           strings.TrimSpace(req.Date),
		StartTime:      strings.TrimSpace(req.StartTime),
		PartySize:      req.PartySize,
		Customer: booking.CustomerInfo{
			Email: req.Customer.Email,
			Name:  strings.TrimSpace(req.Customer.Name),
			Phone: strings.TrimSpace(req.Customer.Phone),
		},
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toReservationResponse(res))
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.ListFilter{
		OrganizationID: httpx.OrganizationIDFromContext(r.Context()),
		ActivityID:     strings.TrimSpace(q.Get("activity_id")),
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		date, err := clock.ParseDate(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		filter.Date = date
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_format", "unknown status")
			return
		}
		filter.Status = st
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_format", "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	items, err := h.bookings.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]reservationResponse, 0, len(items))
	for _, res := range items {
		out = append(out, toReservationResponse(res))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

// Cancel serves POST /api/v1/bookings/cancel. Cancelling twice is not an error.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req cancelBookingRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.bookings.Cancel(r.Context(), httpx.OrganizationIDFromContext(r.Context()), strings.TrimSpace(req.ReservationID), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationResponse(res))
}

// UpdateStatus serves POST /api/v1/bookings/status for the operator lifecycle
// (confirmed, checked-in, completed, no-show).
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateStatusRequest
	if !decode(w, r, &req) {
		return
	}
	status, ok := model.ParseStatus(req.Status)
	if !ok {
		httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_format", "unknown status")
		return
	}
	res, err := h.bookings.UpdateStatus(r.Context(), httpx.OrganizationIDFromContext(r.Context()), strings.TrimSpace(req.ReservationID), status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationResponse(res))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_request", validationMessage(verrs[0]))
			return false
		}
		httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "invalid request")
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	default:
		return field + " failed " + fe.Tag() + " check"
	}
}

func toReservationResponse(r model.Reservation) reservationResponse {
	out := reservationResponse{
		ID:             r.ID,
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
		PaymentRef:     r.PaymentRef,
		CancelReason:   r.CancelReason,
		CreatedAt:      r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.ConfirmedAt != nil {
		out.ConfirmedAt = r.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	if r.CancelledAt != nil {
		out.CancelledAt = r.CancelledAt.UTC().Format(time.RFC3339)
	}
	return out
}
