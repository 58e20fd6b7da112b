package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Purchase struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customerId"`
	Amount       decimal.Decimal `json:"amount"`
	CreditUsed   decimal.Decimal `json:"creditUsed"`
	PointsEarned int64           `json:"pointsEarned"`
	CreditID     *int64          `json:"creditId,omitempty"`
	PurchasedAt  time.Time       `json:"purchasedAt"`
}

// PurchaseSummary is the store-side aggregate behind customer statistics.
type PurchaseSummary struct {
	Total          decimal.Decimal
	Count          int64
	LastPurchaseAt *time.Time
}
