package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/pkg/apperrors"
)

const dateLayout = "2006-01-02"

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type TokenRequest struct {
	Username string `json:"username"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// parseAmount reads a decimal string. Sign checks are left to the ledger so
// negative amounts surface as INVALID_AMOUNT.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, apperrors.NewValidationError(field, "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(field, "must be a decimal number")
	}
	return d, nil
}

// ParseDate accepts YYYY-MM-DD (midnight UTC) or RFC 3339. An empty value yields the zero time.
func ParseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(field, "use YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}
