package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/logger"
)

type errorBody struct {
	Error     string `json:"error"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	RuleID    *int64 `json:"rule_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// StatusFromError maps an engine error to an HTTP status.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrIdempotencyKeyInFlight),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyKeyReused),
		errors.Is(err, domain.ErrMisconfiguredRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidDiscount),
		errors.Is(err, domain.ErrInvalidBookable),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownItem),
		errors.Is(err, domain.ErrUnknownUnit),
		errors.Is(err, domain.ErrUnknownKit),
		errors.Is(err, domain.ErrUnknownVariant),
		errors.Is(err, domain.ErrUnknownCommitment):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFromError(err)
	body := errorBody{Error: err.Error()}

	var insufficient *domain.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		body.Requested = &insufficient.Requested
		body.Available = &insufficient.Available
	}
	var misconfigured *domain.MisconfiguredRuleError
	if errors.As(err, &misconfigured) {
		body.RuleID = &misconfigured.RuleID
	}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
