package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tradedesk/internal/model"

	"github.com/rs/zerolog"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError maps a service error onto the wire error shape and the
// matching HTTP status. Unrecognised errors become opaque 500s.
func writeError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	status, body := mapError(err)

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("handler error")
	} else {
		logger.Warn().Err(err).Int("status", status).Msg("request rejected")
	}

	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	writeJSON(w, status, body)
}

// mapError resolves the status code and response body for an error.
func mapError(err error) (int, model.ErrorResponse) {
	var (
		domainErr *model.DomainError
		termErr   *model.TerminalStateError
		transErr  *model.InvalidTransitionError
		invErr    *model.InsufficientInventoryError
		dupErr    *model.DuplicateResponseError
		rlErr     *model.RateLimitedError
	)

	switch {
	case errors.As(err, &invErr):
		available, requested := invErr.Available, invErr.Requested
		return http.StatusConflict, model.ErrorResponse{
			Error:     invErr.Error(),
			Available: &available,
			Requested: &requested,
		}

	case errors.As(err, &dupErr):
		id := dupErr.ExistingOrderID
		return http.StatusConflict, model.ErrorResponse{
			Error:           dupErr.Error(),
			ExistingOrderID: &id,
		}

	case errors.As(err, &rlErr):
		return http.StatusTooManyRequests, model.ErrorResponse{
			Error:      rlErr.Error(),
			RetryAfter: rlErr.RetryAfter,
		}

	case errors.As(err, &termErr):
		return http.StatusConflict, model.ErrorResponse{Error: termErr.Error()}

	case errors.As(err, &transErr):
		return http.StatusConflict, model.ErrorResponse{Error: transErr.Error()}

	case errors.As(err, &domainErr):
		return domainStatus(domainErr.Code), model.ErrorResponse{Error: domainErr.Message}

	default:
		return http.StatusInternalServerError, model.ErrorResponse{Error: "internal server error"}
	}
}

// domainStatus maps a domain error code to an HTTP status.
func domainStatus(code string) int {
	switch code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeConflict, model.ErrCodeDuplicateResponse, model.ErrCodeInsufficientInventory:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
