package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/customer"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

type CreateCustomerRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	CreditLimit string `json:"creditLimit"`
}

func (r *CreateCustomerRequest) ToNewCustomer() (customer.NewCustomer, error) {
	if strings.TrimSpace(r.Name) == "" {
		return customer.NewCustomer{}, apperrors.NewValidationError("name", "is required")
	}
	limit := decimal.Zero
	if strings.TrimSpace(r.CreditLimit) != "" {
		var err error
		if limit, err = parseAmount("creditLimit", r.CreditLimit); err != nil {
			return customer.NewCustomer{}, err
		}
	}
	return customer.NewCustomer{
		Name:        strings.TrimSpace(r.Name),
		Phone:       strings.TrimSpace(r.Phone),
		Email:       strings.TrimSpace(r.Email),
		CreditLimit: limit,
	}, nil
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *UpdateStatusRequest) Parse() (ledger.CustomerStatus, error) {
	status, err := ledger.ParseCustomerStatus(strings.ToUpper(strings.TrimSpace(r.Status)))
	if err != nil {
		return "", apperrors.NewValidationError("status", "must be ACTIVE, INACTIVE or BLOCKED")
	}
	return status, nil
}

type UpdateCreditLimitRequest struct {
	CreditLimit string `json:"creditLimit"`
}

func (r *UpdateCreditLimitRequest) Parse() (decimal.Decimal, error) {
	return parseAmount("creditLimit", r.CreditLimit)
}

type RecordPurchaseRequest struct {
	Amount     string `json:"amount"`
	CreditUsed string `json:"creditUsed,omitempty"`
	Date       string `json:"date,omitempty"`
}

// Parse returns amount, creditUsed (zero when omitted) and the purchase date
// (zero when omitted, meaning now).
func (r *RecordPurchaseRequest) Parse() (decimal.Decimal, decimal.Decimal, time.Time, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, time.Time{}, err
	}
	creditUsed := decimal.Zero
	if strings.TrimSpace(r.CreditUsed) != "" {
		if creditUsed, err = parseAmount("creditUsed", r.CreditUsed); err != nil {
			return decimal.Zero, decimal.Zero, time.Time{}, err
		}
	}
	date, err := ParseDate("date", r.Date)
	if err != nil {
		return decimal.Zero, decimal.Zero, time.Time{}, err
	}
	return amount, creditUsed, date, nil
}

type CustomerResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	Email           string    `json:"email,omitempty"`
	Status          string    `json:"status"`
	LoyaltyPoints   int64     `json:"loyaltyPoints"`
	CreditLimit     string    `json:"creditLimit"`
	CreditUsed      string    `json:"creditUsed"`
	AvailableCredit string    `json:"availableCredit"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func NewCustomerResponse(c *ledger.Customer) CustomerResponse {
	return CustomerResponse{
		ID:              c.ID,
		Name:            c.Name,
		Phone:           c.Phone,
		Email:           c.Email,
		Status:          string(c.Status),
		LoyaltyPoints:   c.LoyaltyPoints,
		CreditLimit:     formatMoney(c.CreditLimit),
		CreditUsed:      formatMoney(c.CreditUsed),
		AvailableCredit: formatMoney(c.AvailableCredit()),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func NewCustomerListResponse(customers []*ledger.Customer) []CustomerResponse {
	resp := make([]CustomerResponse, len(customers))
	for i, c := range customers {
		resp[i] = NewCustomerResponse(c)
	}
	return resp
}

type PurchaseResponse struct {
	ID           int64     `json:"id"`
	CustomerID   int64     `json:"customerId"`
	Amount       string    `json:"amount"`
	CreditUsed   string    `json:"creditUsed"`
	PointsEarned int64     `json:"pointsEarned"`
	CreditID     *int64    `json:"creditId,omitempty"`
	PurchasedAt  time.Time `json:"purchasedAt"`
}

func NewPurchaseResponse(p *ledger.Purchase) PurchaseResponse {
	return PurchaseResponse{
		ID:           p.ID,
		CustomerID:   p.CustomerID,
		Amount:       formatMoney(p.Amount),
		CreditUsed:   formatMoney(p.CreditUsed),
		PointsEarned: p.PointsEarned,
		CreditID:     p.CreditID,
		PurchasedAt:  p.PurchasedAt,
	}
}

type StatisticsResponse struct {
	CustomerID      int64      `json:"customerId"`
	TotalPurchases  string     `json:"totalPurchases"`
	PurchaseCount   int64      `json:"purchaseCount"`
	AveragePurchase string     `json:"averagePurchase"`
	CurrentCredit   string     `json:"currentCredit"`
	CreditLimit     string     `json:"creditLimit"`
	AvailableCredit string     `json:"availableCredit"`
	LoyaltyPoints   int64      `json:"loyaltyPoints"`
	LastPurchaseAt  *time.Time `json:"lastPurchaseAt,omitempty"`
	OpenCredits     int        `json:"openCredits"`
	OverdueCredits  int        `json:"overdueCredits"`
	OverdueAmount   string     `json:"overdueAmount"`
}

func NewStatisticsResponse(s *customer.Statistics) StatisticsResponse {
	return StatisticsResponse{
		CustomerID:      s.CustomerID,
		TotalPurchases:  formatMoney(s.TotalPurchases),
		PurchaseCount:   s.PurchaseCount,
		AveragePurchase: formatMoney(s.AveragePurchase),
		CurrentCredit:   formatMoney(s.CurrentCredit),
		CreditLimit:     formatMoney(s.CreditLimit),
		AvailableCredit: formatMoney(s.AvailableCredit),
		LoyaltyPoints:   s.LoyaltyPoints,
		LastPurchaseAt:  s.LastPurchaseAt,
		OpenCredits:     s.OpenCredits,
		OverdueCredits:  s.OverdueCredits,
		OverdueAmount:   formatMoney(s.OverdueAmount),
	}
}
