package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/api/handler"
	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/ledger"
)

func TestLoyaltyHandler_AddPoints(t *testing.T) {
	t.Run("accrued", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)
		engine.On("AddPoints", mock.Anything, int64(7), decEq("99.99")).Return(int64(99), nil).Once()

		rr := httptest.NewRecorder()
		h.AddPoints(rr, newRequest(t, http.MethodPost, "/customers/7/points",
			dto.AddPointsRequest{PurchaseAmount: "99.99"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.AddPointsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, dto.AddPointsResponse{CustomerID: 7, PointsAdded: 99}, resp)
	})

	t.Run("unknown customer", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)
		engine.On("AddPoints", mock.Anything, int64(8), mock.Anything).Return(int64(0), ledger.NotFound("customer", 8)).Once()

		rr := httptest.NewRecorder()
		h.AddPoints(rr, newRequest(t, http.MethodPost, "/customers/8/points",
			dto.AddPointsRequest{PurchaseAmount: "10"}, map[string]string{"customerID": "8"}))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing amount", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)

		rr := httptest.NewRecorder()
		h.AddPoints(rr, newRequest(t, http.MethodPost, "/customers/7/points", `{}`, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "purchaseAmount", decodeError(t, rr).Field)
	})
}

func TestLoyaltyHandler_RedeemPoints(t *testing.T) {
	t.Run("redeemed", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)
		engine.On("RedeemPoints", mock.Anything, int64(7), int64(250)).Return(dec("2.5"), nil).Once()

		rr := httptest.NewRecorder()
		h.RedeemPoints(rr, newRequest(t, http.MethodPost, "/customers/7/redemptions",
			dto.RedeemPointsRequest{Points: 250}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.RedeemPointsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "2.50", resp.Value)
		assert.Equal(t, int64(250), resp.PointsRedeemed)
	})

	t.Run("insufficient points", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)
		engine.On("RedeemPoints", mock.Anything, int64(7), int64(5000)).
			Return(dec("0"), ledger.Reject(ledger.ErrInsufficientPoints, "customer 7: requested 5000 points, balance is 42")).Once()

		rr := httptest.NewRecorder()
		h.RedeemPoints(rr, newRequest(t, http.MethodPost, "/customers/7/redemptions",
			dto.RedeemPointsRequest{Points: 5000}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "INSUFFICIENT_POINTS", decodeError(t, rr).Code)
	})
}

func TestLoyaltyHandler_Config(t *testing.T) {
	current := ledger.LoyaltyConfig{
		PointsPerUnit:     dec("1"),
		RedemptionValue:   dec("0.01"),
		MinimumRedemption: 100,
		UpdatedAt:         testNow,
	}

	t.Run("read", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)
		engine.On("Config", mock.Anything).Return(current, nil).Once()

		rr := httptest.NewRecorder()
		h.GetConfig(rr, newRequest(t, http.MethodGet, "/loyalty/config", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.LoyaltyConfigResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "0.01", resp.RedemptionValue)
		assert.Equal(t, int64(100), resp.MinimumRedemption)
	})

	t.Run("whole record replaced", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)
		engine.On("UpdateConfig", mock.Anything, mock.Anything).Return(ledger.LoyaltyConfig{
			PointsPerUnit:     dec("2"),
			RedemptionValue:   dec("0.02"),
			MinimumRedemption: 50,
			UpdatedAt:         testNow,
		}, nil).Run(func(args mock.Arguments) {
			mutate := args.Get(1).(func(cfg *ledger.LoyaltyConfig))
			next := current
			mutate(&next)
			assert.True(t, next.PointsPerUnit.Equal(dec("2")))
			assert.True(t, next.RedemptionValue.Equal(dec("0.02")))
			assert.Equal(t, int64(50), next.MinimumRedemption)
		}).Once()

		rr := httptest.NewRecorder()
		h.UpdateConfig(rr, newRequest(t, http.MethodPut, "/loyalty/config",
			`{"pointsPerUnit":"2","redemptionValue":"0.02","minimumRedemption":50}`, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.LoyaltyConfigResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "2", resp.PointsPerUnit)
		assert.Equal(t, int64(50), resp.MinimumRedemption)
		engine.AssertExpectations(t)
	})

	t.Run("partial body rejected", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)

		rr := httptest.NewRecorder()
		h.UpdateConfig(rr, newRequest(t, http.MethodPut, "/loyalty/config", `{"pointsPerUnit":"2"}`, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		errBody := decodeError(t, rr)
		assert.Equal(t, "VALIDATION_FAILED", errBody.Code)
		assert.Equal(t, "redemptionValue", errBody.Field)
		engine.AssertNotCalled(t, "UpdateConfig", mock.Anything, mock.Anything)
	})

	t.Run("empty update", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)

		rr := httptest.NewRecorder()
		h.UpdateConfig(rr, newRequest(t, http.MethodPut, "/loyalty/config", `{}`, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		engine.AssertNotCalled(t, "UpdateConfig", mock.Anything, mock.Anything)
	})

	t.Run("negative value rejected by validation", func(t *testing.T) {
		engine := new(MockLoyaltyEngine)
		h := handler.NewLoyaltyHandler(engine, discardLogger)
		engine.On("UpdateConfig", mock.Anything, mock.Anything).
			Return(ledger.LoyaltyConfig{}, ledger.LoyaltyConfig{RedemptionValue: dec("-1")}.Validate()).Once()

		rr := httptest.NewRecorder()
		h.UpdateConfig(rr, newRequest(t, http.MethodPut, "/loyalty/config", `{"pointsPerUnit":"1","redemptionValue":"-1","minimumRedemption":100}`, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "redemptionValue", decodeError(t, rr).Field)
	})
}
