package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/posify/internal/contract"
	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/settings"
)

const maxRequestBodySize = 1 << 20 // 1MB

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, contract.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleError maps domain errors to HTTP statuses. Business rejections keep
// the order service's message as is.
func handleError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		be *domain.BusinessError
	)
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, contract.ErrorResponse{
			Error:   err.Error(),
			Code:    "validation_error",
			Details: ve.Field,
		})
	case errors.As(err, &be):
		code := be.Code
		if code == "" {
			code = "order_rejected"
		}
		respondError(w, http.StatusUnprocessableEntity, code, be.Message)
	case errors.Is(err, domain.ErrSettingsNotLoaded):
		respondError(w, http.StatusBadRequest, "settings_not_loaded", err.Error())
	case errors.Is(err, settings.ErrInvalidSettings):
		respondError(w, http.StatusBadRequest, "invalid_settings", err.Error())
	case errors.Is(err, domain.ErrSubmissionInProgress), errors.Is(err, domain.ErrSyncInProgress):
		respondError(w, http.StatusConflict, "in_progress", err.Error())
	case errors.Is(err, domain.ErrEntryNotFound), errors.Is(err, domain.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.IsNetwork(err):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		slog.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// warningOf splits a persistence failure off err. The change it reports is
// already applied in memory, so callers answer with success plus a warning.
func warningOf(err error) (string, error) {
	if err != nil && domain.IsPersistence(err) {
		return err.Error(), nil
	}
	return "", err
}
