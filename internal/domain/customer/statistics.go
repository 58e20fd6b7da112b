package customer

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/ledger"
)

type Statistics struct {
	CustomerID      int64           `json:"customerId"`
	TotalPurchases  decimal.Decimal `json:"totalPurchases"`
	PurchaseCount   int64           `json:"purchaseCount"`
	AveragePurchase decimal.Decimal `json:"averagePurchase"`
	CurrentCredit   decimal.Decimal `json:"currentCredit"`
	CreditLimit     decimal.Decimal `json:"creditLimit"`
	AvailableCredit decimal.Decimal `json:"availableCredit"`
	LoyaltyPoints   int64           `json:"loyaltyPoints"`
	LastPurchaseAt  *time.Time      `json:"lastPurchaseAt,omitempty"`
	OpenCredits     int             `json:"openCredits"`
	OverdueCredits  int             `json:"overdueCredits"`
	OverdueAmount   decimal.Decimal `json:"overdueAmount"`
}

// GetCustomerStatistics only reads; it takes no customer lock.
func (s *service) GetCustomerStatistics(ctx context.Context, customerID int64) (*Statistics, error) {
	cust, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	summary, err := s.store.PurchaseSummary(ctx, customerID)
	if err != nil {
		return nil, err
	}
	credits, err := s.store.CreditsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		CustomerID:      cust.ID,
		TotalPurchases:  summary.Total,
		PurchaseCount:   summary.Count,
		AveragePurchase: decimal.Zero,
		CurrentCredit:   cust.CreditUsed,
		CreditLimit:     cust.CreditLimit,
		AvailableCredit: cust.AvailableCredit(),
		LoyaltyPoints:   cust.LoyaltyPoints,
		LastPurchaseAt:  summary.LastPurchaseAt,
		OverdueAmount:   decimal.Zero,
	}
	if summary.Count > 0 {
		stats.AveragePurchase = summary.Total.Div(decimal.NewFromInt(summary.Count)).Round(2)
	}

	now := s.clock.Now()
	for _, c := range credits {
		if c.Settled() {
			continue
		}
		stats.OpenCredits++
		if c.IsOverdue(now) {
			stats.OverdueCredits++
			stats.OverdueAmount = stats.OverdueAmount.Add(c.Outstanding())
		}
	}
	return stats, nil
}

func sortByID(customers []*ledger.Customer) {
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
}
