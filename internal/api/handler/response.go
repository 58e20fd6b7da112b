package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, err error) {
	status, message, field, code := http.StatusInternalServerError, "An unexpected error occurred.", "", ""
	var validationError *apperrors.ValidationError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, message, code = http.StatusNotFound, err.Error(), "NOT_FOUND"
	case errors.Is(err, apperrors.ErrUnauthorized):
		status, message, code = http.StatusUnauthorized, err.Error(), "UNAUTHORIZED"
	case errors.Is(err, ledger.ErrInvalidAmount):
		status, message, code = http.StatusBadRequest, businessMessage(err), ledger.Code(err)
	case errors.Is(err, apperrors.ErrBusinessRule):
		status, message, code = http.StatusUnprocessableEntity, businessMessage(err), ledger.Code(err)
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrAlreadyExists):
		status, message, code = http.StatusConflict, err.Error(), "CONFLICT"
	case errors.As(err, &validationError):
		status, message, field, code = http.StatusBadRequest, validationError.Message, validationError.Field, "VALIDATION_FAILED"
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status, message, code = http.StatusBadRequest, err.Error(), "INVALID_ARGUMENT"
	case errors.Is(err, context.DeadlineExceeded):
		status, message, code = http.StatusGatewayTimeout, "The request timed out.", "TIMEOUT"
	case errors.As(err, &appErr):
		message, code = appErr.Message, appErr.Code
		slog.Default().Error("Unhandled application error", "error", err)
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	resp := dto.ErrorResponse{
		Error: dto.ErrorDetail{
			Code:    code,
			Message: message,
			Field:   field,
		},
	}
	respondJSON(w, status, resp)
}

func businessMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func getIDFromURL(r *http.Request, param string) (int64, error) {
	idStr := chi.URLParam(r, param)
	if idStr == "" {
		return 0, fmt.Errorf("%w: %s not found in URL path", apperrors.ErrInvalidArgument, param)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", apperrors.ErrInvalidArgument, param)
	}
	return id, nil
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: invalid request body: %v", apperrors.ErrInvalidArgument, err)
}
