package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

type CreateCreditRequest struct {
	Principal string `json:"principal"`
	DueDate   string `json:"dueDate"`
}

func (r *CreateCreditRequest) Parse() (decimal.Decimal, time.Time, error) {
	principal, err := parseAmount("principal", r.Principal)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	due, err := ParseDate("dueDate", r.DueDate)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	if due.IsZero() {
		return decimal.Zero, time.Time{}, apperrors.NewValidationError("dueDate", "is required")
	}
	return principal, due, nil
}

type PaymentRequest struct {
	Amount string `json:"amount"`
}

func (r *PaymentRequest) Parse() (decimal.Decimal, error) {
	return parseAmount("amount", r.Amount)
}

type CreditResponse struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"customerId"`
	Principal   string    `json:"principal"`
	AmountPaid  string    `json:"amountPaid"`
	Outstanding string    `json:"outstanding"`
	DueDate     time.Time `json:"dueDate"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewCreditResponse expects a credit already viewed at the request time.
func NewCreditResponse(c *ledger.Credit) CreditResponse {
	return CreditResponse{
		ID:          c.ID,
		CustomerID:  c.CustomerID,
		Principal:   formatMoney(c.Principal),
		AmountPaid:  formatMoney(c.AmountPaid),
		Outstanding: formatMoney(c.Outstanding()),
		DueDate:     c.DueDate,
		Status:      string(c.Status),
		Note:        c.Note,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func NewCreditListResponse(credits []*ledger.Credit) []CreditResponse {
	resp := make([]CreditResponse, len(credits))
	for i, c := range credits {
		resp[i] = NewCreditResponse(c)
	}
	return resp
}

type OverdueResponse struct {
	AsOf             time.Time        `json:"asOf"`
	Count            int              `json:"count"`
	TotalOutstanding string           `json:"totalOutstanding"`
	Credits          []CreditResponse `json:"credits"`
}
