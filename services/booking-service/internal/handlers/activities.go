package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/venuebook/libs/httpx"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

type ActivityStore interface {
	GetActivity(ctx context.Context, organizationID, activityID string) (model.Activity, error)
	SaveActivity(ctx context.Context, a model.Activity) error
}

type ActivityHandler struct {
	store  ActivityStore
	logger *slog.Logger
}

func NewActivityHandler(store ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{store: store, logger: logger}
}

type activityRequest struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name" validate:"required,max=200"`
	DurationMinutes     int                   `json:"duration_minutes" validate:"min=1,max=1440"`
	Capacity            int                   `json:"capacity" validate:"min=0"`
	MinPartySize        int                   `json:"min_party_size" validate:"min=0"`
	MaxPartySize        int                   `json:"max_party_size" validate:"min=0"`
	PricePerPersonCents int64                 `json:"price_per_person_cents" validate:"min=0"`
	Currency            string                `json:"currency" validate:"omitempty,len=3"`
	Active              *bool                 `json:"active"`
	Config              model.OperatingConfig `json:"operating_config"`
}

type activityResponse struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name"`
	DurationMinutes     int                   `json:"duration_minutes"`
	Capacity            int                   `json:"capacity"`
	MinPartySize        int                   `json:"min_party_size"`
	MaxPartySize        int                   `json:"max_party_size"`
	PricePerPersonCents int64                 `json:"price_per_person_cents"`
	Currency            string                `json:"currency"`
	Active              bool                  `json:"active"`
	Config              model.OperatingConfig `json:"operating_config"`
}

// Activities serves /api/v1/activities: GET ?id= reads, POST creates or replaces.
func (h *ActivityHandler) Activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPost:
		h.save(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ActivityHandler) get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "id required")
		return
	}
	a, err := h.store.GetActivity(r.Context(), httpx.OrganizationIDFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(h, w, r, storeError("load activity", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toActivityResponse(a))
}

func (h *ActivityHandler) save(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Config.Validate(); err != nil {
		writeServiceError(h, w, r, err)
		return
	}
	if req.MaxPartySize > 0 && req.MinPartySize > req.MaxPartySize {
		httpx.WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "min_party_size exceeds max_party_size")
		return
	}

	a := model.Activity{
		ID:                  strings.TrimSpace(req.ID),
		OrganizationID:      httpx.OrganizationIDFromContext(r.Context()),
		Name:                strings.TrimSpace(req.Name),
		DurationMinutes:     req.DurationMinutes,
		Capacity:            req.Capacity,
		MinPartySize:        req.MinPartySize,
		MaxPartySize:        req.MaxPartySize,
		PricePerPersonCents: req.PricePerPersonCents,
		Currency:            strings.ToLower(strings.TrimSpace(req.Currency)),
		Active:              req.Active == nil || *req.Active,
		Config:              req.Config,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Currency == "" {
		a.Currency = "usd"
	}
	if err := h.store.SaveActivity(r.Context(), a); err != nil {
		writeServiceError(h, w, r, storeError("save activity", err))
		return
	}
	h.logger.Info("activity saved", "activity_id", a.ID, "organization_id", a.OrganizationID, "active", a.Active)
	httpx.WriteJSON(w, http.StatusOK, toActivityResponse(a))
}

func (h *ActivityHandler) logError(r *http.Request, msg string, err error) {
	h.logger.Error(msg, "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
}

// storeError marks driver failures as retryable persistence errors.
func storeError(op string, err error) error {
	if model.IsSemantic(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", model.ErrPersistence, op, err)
}

func toActivityResponse(a model.Activity) activityResponse {
	return activityResponse{
		ID:                  a.ID,
		Name:                a.Name,
		DurationMinutes:     a.DurationMinutes,
		Capacity:            a.Capacity,
		MinPartySize:        a.MinPartySize,
		MaxPartySize:        a.MaxPartySize,
		PricePerPersonCents: a.PricePerPersonCents,
		Currency:            a.Currency,
		Active:              a.Active,
		Config:              a.Config,
	}
}
