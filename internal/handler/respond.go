package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dayobello/gymgate/internal/attendance"
	"github.com/dayobello/gymgate/internal/payment"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, status int, kind string, err error) {
	respondJSON(w, status, errorBody{Error: kind, Message: err.Error()})
}

func errorIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeBusinessError maps engine errors to HTTP statuses with a machine-
// readable kind, so the UI can render a specific message.
func writeBusinessError(w http.ResponseWriter, err error) {
	var notActive *attendance.NotActiveError
	switch {
	case errors.Is(err, payment.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, payment.ErrMemberNotFound),
		errors.Is(err, attendance.ErrMemberNotFound):
		respondError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, payment.ErrVerificationUnavailable):
		respondError(w, http.StatusBadGateway, "verification_unavailable", err)
	case errors.Is(err, payment.ErrPaymentFailed):
		respondError(w, http.StatusUnprocessableEntity, "payment_failed", err)
	case errors.Is(err, payment.ErrAmountMismatch):
		respondError(w, http.StatusUnprocessableEntity, "amount_mismatch", err)
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		respondError(w, http.StatusConflict, "already_checked_in", err)
	case errors.Is(err, attendance.ErrNoOpenSession):
		respondError(w, http.StatusConflict, "no_open_session", err)
	case errors.As(err, &notActive):
		respondJSON(w, http.StatusForbidden, map[string]string{
			"error":   "membership_not_active",
			"message": err.Error(),
			"status":  string(notActive.Status),
		})
	default:
		respondError(w, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}
