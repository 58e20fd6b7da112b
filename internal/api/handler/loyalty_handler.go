package handler

import (
	"log/slog"
	"net/http"

	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/loyalty"
)

type LoyaltyHandler struct {
	engine loyalty.Engine
	logger *slog.Logger
}

func NewLoyaltyHandler(e loyalty.Engine, l *slog.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{
		engine: e,
		logger: l.With("component", "LoyaltyHandler"),
	}
}

// AddPoints
//
// @Summary Accrue loyalty points for a purchase amount
// @Description Adds floor(purchaseAmount * pointsPerUnit) points.
// @Tags Loyalty
// @Accept json
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param request body dto.AddPointsRequest true "Purchase amount"
// @Success 200 {object} dto.AddPointsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /customers/{customerID}/points [post]
// @Security BearerAuth
func (h *LoyaltyHandler) AddPoints(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.AddPointsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	amount, err := req.Parse()
	if err != nil {
		respondError(w, err)
		return
	}

	added, err := h.engine.AddPoints(r.Context(), customerID, amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.AddPointsResponse{CustomerID: customerID, PointsAdded: added})
}

// RedeemPoints
//
// @Summary Redeem loyalty points
// @Description Deducts points and reports their monetary value. The value is not applied to any balance.
// @Tags Loyalty
// @Accept json
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param request body dto.RedeemPointsRequest true "Points to redeem"
// @Success 200 {object} dto.RedeemPointsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse "Insufficient points or below the minimum redemption"
// @Router /customers/{customerID}/redemptions [post]
// @Security BearerAuth
func (h *LoyaltyHandler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.RedeemPointsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}

	value, err := h.engine.RedeemPoints(r.Context(), customerID, req.Points)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.RedeemPointsResponse{
		CustomerID:     customerID,
		PointsRedeemed: req.Points,
		Value:          value.StringFixed(2),
	})
}

// GetConfig
//
// @Summary Read the loyalty configuration
// @Tags Loyalty
// @Produce json
// @Success 200 {object} dto.LoyaltyConfigResponse
// @Router /loyalty/config [get]
// @Security BearerAuth
func (h *LoyaltyHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.Config(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewLoyaltyConfigResponse(cfg))
}

// UpdateConfig
//
// @Summary Update the loyalty configuration
// @Description Replaces the whole record; every field is required. Applied as one read-modify-write.
// @Tags Loyalty
// @Accept json
// @Produce json
// @Param request body dto.LoyaltyConfigRequest true "Complete loyalty configuration"
// @Success 200 {object} dto.LoyaltyConfigResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /loyalty/config [put]
// @Security BearerAuth
func (h *LoyaltyHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req dto.LoyaltyConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	mutate, err := req.Mutator()
	if err != nil {
		respondError(w, err)
		return
	}

	updated, err := h.engine.UpdateConfig(r.Context(), mutate)
	if err != nil {
		respondError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Loyalty config updated",
		"pointsPerUnit", updated.PointsPerUnit.String(),
		"redemptionValue", updated.RedemptionValue.String(),
		"minimumRedemption", updated.MinimumRedemption)
	respondJSON(w, http.StatusOK, dto.NewLoyaltyConfigResponse(updated))
}
