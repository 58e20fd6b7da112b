package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

type AddPointsRequest struct {
	PurchaseAmount string `json:"purchaseAmount"`
}

func (r *AddPointsRequest) Parse() (decimal.Decimal, error) {
	return parseAmount("purchaseAmount", r.PurchaseAmount)
}

type AddPointsResponse struct {
	CustomerID  int64 `json:"customerId"`
	PointsAdded int64 `json:"pointsAdded"`
}

type RedeemPointsRequest struct {
	Points int64 `json:"points"`
}

type RedeemPointsResponse struct {
	CustomerID     int64  `json:"customerId"`
	PointsRedeemed int64  `json:"pointsRedeemed"`
	Value          string `json:"value"`
}

// LoyaltyConfigRequest carries the whole configuration record; every field is required.
type LoyaltyConfigRequest struct {
	PointsPerUnit     *string `json:"pointsPerUnit"`
	RedemptionValue   *string `json:"redemptionValue"`
	MinimumRedemption *int64  `json:"minimumRedemption"`
}

// Mutator parses the record up front so the returned function cannot fail.
// The function replaces the stored record wholesale.
func (r *LoyaltyConfigRequest) Mutator() (func(cfg *ledger.LoyaltyConfig), error) {
	if r.PointsPerUnit == nil {
		return nil, apperrors.NewValidationError("pointsPerUnit", "is required")
	}
	if r.RedemptionValue == nil {
		return nil, apperrors.NewValidationError("redemptionValue", "is required")
	}
	if r.MinimumRedemption == nil {
		return nil, apperrors.NewValidationError("minimumRedemption", "is required")
	}
	perUnit, err := parseAmount("pointsPerUnit", *r.PointsPerUnit)
	if err != nil {
		return nil, err
	}
	value, err := parseAmount("redemptionValue", *r.RedemptionValue)
	if err != nil {
		return nil, err
	}
	minimum := *r.MinimumRedemption
	return func(cfg *ledger.LoyaltyConfig) {
		*cfg = ledger.LoyaltyConfig{
			PointsPerUnit:     perUnit,
			RedemptionValue:   value,
			MinimumRedemption: minimum,
		}
	}, nil
}

type LoyaltyConfigResponse struct {
	PointsPerUnit     string    `json:"pointsPerUnit"`
	RedemptionValue   string    `json:"redemptionValue"`
	MinimumRedemption int64     `json:"minimumRedemption"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func NewLoyaltyConfigResponse(cfg ledger.LoyaltyConfig) LoyaltyConfigResponse {
	return LoyaltyConfigResponse{
		PointsPerUnit:     cfg.PointsPerUnit.String(),
		RedemptionValue:   cfg.RedemptionValue.String(),
		MinimumRedemption: cfg.MinimumRedemption,
		UpdatedAt:         cfg.UpdatedAt,
	}
}
