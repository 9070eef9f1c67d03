package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/venuebook/libs/httpx"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{model.ErrFormat, http.StatusBadRequest, "invalid_format"},
	{model.ErrInvalidPartySize, http.StatusBadRequest, "invalid_party_size"},
	{model.ErrActivityNotFound, http.StatusNotFound, "activity_not_found"},
	{model.ErrReservationNotFound, http.StatusNotFound, "reservation_not_found"},
	{model.ErrSlotNotFound, http.StatusUnprocessableEntity, "slot_not_found"},
	{model.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{model.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{model.ErrActivityMisconfigured, http.StatusInternalServerError, "activity_misconfigured"},
	{model.ErrPersistence, http.StatusServiceUnavailable, "persistence_failure"},
}

func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(h, w, r, err)
}

type errorLogger interface {
	logError(r *http.Request, msg string, err error)
}

func (h *BookingHandler) logError(r *http.Request, msg string, err error) {
	h.logger.Error(msg, "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
}

func writeServiceError(l errorLogger, w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.target == model.ErrActivityMisconfigured {
			l.logError(r, "activity misconfigured", err)
			httpx.WriteErrorCode(w, m.status, m.code, "activity configuration is invalid")
			return
		}
		if m.status >= http.StatusInternalServerError {
			l.logError(r, "booking storage failure", err)
			httpx.WriteErrorCode(w, m.status, m.code, "temporarily unavailable, retry later")
			return
		}
		var unavailable *model.SlotUnavailableError
		if errors.As(err, &unavailable) {
			httpx.WriteJSON(w, m.status, map[string]string{
				"error":  err.Error(),
				"code":   m.code,
				"reason": string(unavailable.Reason),
			})
			return
		}
		httpx.WriteErrorCode(w, m.status, m.code, err.Error())
		return
	}
	l.logError(r, "unexpected booking error", err)
	httpx.WriteErrorCode(w, http.StatusInternalServerError, "internal", "internal error")
}
