package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"not found", ledger.NotFound("customer", 3), http.StatusNotFound, "NOT_FOUND", ""},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"invalid amount", ledger.Reject(ledger.ErrInvalidAmount, "amount -1 must be positive"), http.StatusBadRequest, "INVALID_AMOUNT", ""},
		{"insufficient points", ledger.Reject(ledger.ErrInsufficientPoints, "balance is 5"), http.StatusUnprocessableEntity, "INSUFFICIENT_POINTS", ""},
		{"below minimum", ledger.Reject(ledger.ErrBelowMinimumRedemption, "minimum is 100"), http.StatusUnprocessableEntity, "BELOW_MINIMUM_REDEMPTION", ""},
		{"conflict", fmt.Errorf("%w: credit has payments", apperrors.ErrConflict), http.StatusConflict, "CONFLICT", ""},
		{"duplicate", apperrors.ErrAlreadyExists, http.StatusConflict, "CONFLICT", ""},
		{"validation", apperrors.NewValidationError("amount", "is required"), http.StatusBadRequest, "VALIDATION_FAILED", "amount"},
		{"invalid argument", apperrors.ErrInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT", ""},
		{"deadline", fmt.Errorf("lock customer: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT", ""},
		{"database", apperrors.WrapDatabaseError(errors.New("boom"), "query failed"), http.StatusInternalServerError, "DB_ERROR", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			respondError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			var resp dto.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantField, resp.Error.Field)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestRespondError_BusinessMessageHidesWrapping(t *testing.T) {
	rr := httptest.NewRecorder()
	respondError(rr, ledger.Reject(ledger.ErrLimitExceeded, "customer 7: credit used 90.00 + 20.00 exceeds limit 100.00"))

	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "customer 7: credit used 90.00 + 20.00 exceeds limit 100.00", resp.Error.Message)
}
