package ledger

import (
	"errors"
	"fmt"

	"pos-ledger/internal/pkg/apperrors"
)

// Error kinds reported by the ledger. Every one of them means the operation was
// rejected without touching any record.
var (
	ErrNotFound = fmt.Errorf("%w: ledger record", apperrors.ErrNotFound)

	ErrLimitExceeded = errors.New("credit limit exceeded")

	ErrInvalidAmount = errors.New("invalid amount")

	ErrOverpayment = errors.New("payment exceeds outstanding balance")

	ErrInsufficientPoints = errors.New("insufficient loyalty points")

	ErrBelowMinimumRedemption = errors.New("points below minimum redemption")

	ErrCustomerNotActive = errors.New("customer is not active")

	ErrHasOpenCredits = errors.New("customer has unpaid credits")
)

var errorCodes = map[error]string{
	ErrLimitExceeded:          "LIMIT_EXCEEDED",
	ErrInvalidAmount:          "INVALID_AMOUNT",
	ErrOverpayment:            "OVERPAYMENT",
	ErrInsufficientPoints:     "INSUFFICIENT_POINTS",
	ErrBelowMinimumRedemption: "BELOW_MINIMUM_REDEMPTION",
	ErrCustomerNotActive:      "CUSTOMER_NOT_ACTIVE",
	ErrHasOpenCredits:         "HAS_OPEN_CREDITS",
}

// Reject wraps kind into a coded application error carrying a caller-facing message.
func Reject(kind error, format string, args ...any) error {
	return apperrors.NewBusinessError(errorCodes[kind], kind, fmt.Sprintf(format, args...))
}

// NotFound reports a missing customer or credit by id.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// Code returns the stable error code for a ledger rejection, or "" for other errors.
func Code(err error) string {
	if errors.Is(err, ErrNotFound) {
		return "NOT_FOUND"
	}
	for kind, code := range errorCodes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return ""
}

// Outcome labels an operation result for metrics: "success", a ledger code, or "error".
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	if code := Code(err); code != "" {
		return code
	}
	return "error"
}
