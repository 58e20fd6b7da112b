package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/pkg/apperrors"
)

// LoyaltyConfig is the single accrual/redemption rule set of a store.
type LoyaltyConfig struct {
	PointsPerUnit     decimal.Decimal `json:"pointsPerUnit"`
	RedemptionValue   decimal.Decimal `json:"redemptionValue"`
	MinimumRedemption int64           `json:"minimumRedemption"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (c LoyaltyConfig) Validate() error {
	if c.PointsPerUnit.IsNegative() {
		return apperrors.NewValidationError("pointsPerUnit", "cannot be negative")
	}
	if c.RedemptionValue.IsNegative() {
		return apperrors.NewValidationError("redemptionValue", "cannot be negative")
	}
	if c.MinimumRedemption < 0 {
		return apperrors.NewValidationError("minimumRedemption", "cannot be negative")
	}
	return nil
}

// PointsFor truncates toward zero; fractional points are never rounded up.
func (c LoyaltyConfig) PointsFor(amount decimal.Decimal) int64 {
	return amount.Mul(c.PointsPerUnit).Floor().IntPart()
}

func (c LoyaltyConfig) ValueOf(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Mul(c.RedemptionValue)
}
