package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/api/handler"
	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/customer"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleCustomer() *ledger.Customer {
	c := ledger.NewCustomer("Ada", "555-0100", "ada@example.com", dec("500"), testNow)
	c.ID = 7
	c.CreditUsed = dec("120.5")
	c.LoyaltyPoints = 42
	return c
}

func TestCustomerHandler_CreateCustomer(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		svc.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(in customer.NewCustomer) bool {
			return in.Name == "Ada" && in.CreditLimit.Equal(dec("500"))
		})).Return(sampleCustomer(), nil).Once()

		rr := httptest.NewRecorder()
		h.CreateCustomer(rr, newRequest(t, http.MethodPost, "/customers", dto.CreateCustomerRequest{Name: " Ada ", CreditLimit: "500"}, nil))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var resp dto.CustomerResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, int64(7), resp.ID)
		assert.Equal(t, "ACTIVE", resp.Status)
		assert.Equal(t, "500.00", resp.CreditLimit)
		assert.Equal(t, "120.50", resp.CreditUsed)
		assert.Equal(t, "379.50", resp.AvailableCredit)
		svc.AssertExpectations(t)
	})

	t.Run("missing name", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		rr := httptest.NewRecorder()
		h.CreateCustomer(rr, newRequest(t, http.MethodPost, "/customers", dto.CreateCustomerRequest{CreditLimit: "10"}, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		detail := decodeError(t, rr)
		assert.Equal(t, "VALIDATION_FAILED", detail.Code)
		assert.Equal(t, "name", detail.Field)
		svc.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		rr := httptest.NewRecorder()
		h.CreateCustomer(rr, newRequest(t, http.MethodPost, "/customers", `{"name":"Ada","nickname":"A"}`, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_ARGUMENT", decodeError(t, rr).Code)
	})

	t.Run("negative limit is an invalid amount", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		svc.On("CreateCustomer", mock.Anything, mock.Anything).
			Return(nil, ledger.Reject(ledger.ErrInvalidAmount, "credit limit -1 cannot be negative")).Once()

		rr := httptest.NewRecorder()
		h.CreateCustomer(rr, newRequest(t, http.MethodPost, "/customers", dto.CreateCustomerRequest{Name: "Ada", CreditLimit: "-1"}, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_AMOUNT", decodeError(t, rr).Code)
	})
}

func TestCustomerHandler_GetCustomer(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		setup      func(svc *MockCustomerService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "found",
			id:   "7",
			setup: func(svc *MockCustomerService) {
				svc.On("GetCustomer", mock.Anything, int64(7)).Return(sampleCustomer(), nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "not found",
			id:   "9",
			setup: func(svc *MockCustomerService) {
				svc.On("GetCustomer", mock.Anything, int64(9)).Return(nil, ledger.NotFound("customer", 9)).Once()
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "bad id",
			id:         "abc",
			setup:      func(svc *MockCustomerService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ARGUMENT",
		},
		{
			name:       "zero id",
			id:         "0",
			setup:      func(svc *MockCustomerService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ARGUMENT",
		},
		{
			name: "database failure",
			id:   "7",
			setup: func(svc *MockCustomerService) {
				svc.On("GetCustomer", mock.Anything, int64(7)).
					Return(nil, apperrors.WrapDatabaseError(errors.New("conn reset"), "load customer")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "DB_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockCustomerService)
			tt.setup(svc)
			h := handler.NewCustomerHandler(svc, discardLogger)

			rr := httptest.NewRecorder()
			h.GetCustomer(rr, newRequest(t, http.MethodGet, "/customers/"+tt.id, nil, map[string]string{"customerID": tt.id}))

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rr).Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestCustomerHandler_ListCustomers(t *testing.T) {
	t.Run("filters by status", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		svc.On("ListCustomers", mock.Anything, ledger.CustomerBlocked).Return([]*ledger.Customer{sampleCustomer()}, nil).Once()

		rr := httptest.NewRecorder()
		h.ListCustomers(rr, newRequest(t, http.MethodGet, "/customers?status=blocked", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp []dto.CustomerResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Len(t, resp, 1)
		svc.AssertExpectations(t)
	})

	t.Run("no filter", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		svc.On("ListCustomers", mock.Anything, ledger.CustomerStatus("")).Return([]*ledger.Customer{}, nil).Once()

		rr := httptest.NewRecorder()
		h.ListCustomers(rr, newRequest(t, http.MethodGet, "/customers", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		rr := httptest.NewRecorder()
		h.ListCustomers(rr, newRequest(t, http.MethodGet, "/customers?status=gone", nil, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "status", decodeError(t, rr).Field)
	})
}

func TestCustomerHandler_DeleteCustomer(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		svc.On("DeleteCustomer", mock.Anything, int64(7)).Return(nil).Once()

		rr := httptest.NewRecorder()
		h.DeleteCustomer(rr, newRequest(t, http.MethodDelete, "/customers/7", nil, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("open credits block deletion", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		svc.On("DeleteCustomer", mock.Anything, int64(7)).
			Return(ledger.Reject(ledger.ErrHasOpenCredits, "customer 7 has 2 unpaid credits")).Once()

		rr := httptest.NewRecorder()
		h.DeleteCustomer(rr, newRequest(t, http.MethodDelete, "/customers/7", nil, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		detail := decodeError(t, rr)
		assert.Equal(t, "HAS_OPEN_CREDITS", detail.Code)
		assert.Equal(t, "customer 7 has 2 unpaid credits", detail.Message)
	})
}

func TestCustomerHandler_DeactivateCustomer(t *testing.T) {
	svc := new(MockCustomerService)
	h := handler.NewCustomerHandler(svc, discardLogger)
	svc.On("DeactivateCustomer", mock.Anything, int64(7)).Return(nil).Once()

	rr := httptest.NewRecorder()
	h.DeactivateCustomer(rr, newRequest(t, http.MethodPost, "/customers/7/deactivate", nil, map[string]string{"customerID": "7"}))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	svc.AssertExpectations(t)
}

func TestCustomerHandler_UpdateStatus(t *testing.T) {
	t.Run("blocked", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		blocked := sampleCustomer()
		blocked.Status = ledger.CustomerBlocked
		svc.On("SetStatus", mock.Anything, int64(7), ledger.CustomerBlocked).Return(blocked, nil).Once()

		rr := httptest.NewRecorder()
		h.UpdateStatus(rr, newRequest(t, http.MethodPut, "/customers/7/status", dto.UpdateStatusRequest{Status: "BLOCKED"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.CustomerResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "BLOCKED", resp.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		rr := httptest.NewRecorder()
		h.UpdateStatus(rr, newRequest(t, http.MethodPut, "/customers/7/status", dto.UpdateStatusRequest{Status: "SUSPENDED"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCustomerHandler_UpdateCreditLimit(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		updated := sampleCustomer()
		updated.CreditLimit = dec("800")
		svc.On("UpdateCreditLimit", mock.Anything, int64(7), decEq("800")).Return(updated, nil).Once()

		rr := httptest.NewRecorder()
		h.UpdateCreditLimit(rr, newRequest(t, http.MethodPut, "/customers/7/credit-limit", dto.UpdateCreditLimitRequest{CreditLimit: "800"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusOK, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("below used credit", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		svc.On("UpdateCreditLimit", mock.Anything, int64(7), decEq("100")).
			Return(nil, ledger.Reject(ledger.ErrLimitExceeded, "new limit below credit in use")).Once()

		rr := httptest.NewRecorder()
		h.UpdateCreditLimit(rr, newRequest(t, http.MethodPut, "/customers/7/credit-limit", dto.UpdateCreditLimitRequest{CreditLimit: "100"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "LIMIT_EXCEEDED", decodeError(t, rr).Code)
	})

	t.Run("not a number", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		rr := httptest.NewRecorder()
		h.UpdateCreditLimit(rr, newRequest(t, http.MethodPut, "/customers/7/credit-limit", dto.UpdateCreditLimitRequest{CreditLimit: "lots"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "creditLimit", decodeError(t, rr).Field)
	})
}

func TestCustomerHandler_RecordPurchase(t *testing.T) {
	t.Run("split between cash and credit", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		creditID := int64(3)
		date := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
		svc.On("RecordPurchase", mock.Anything, int64(7), decEq("100"), decEq("40"), date).Return(&ledger.Purchase{
			ID:           11,
			CustomerID:   7,
			Amount:       dec("100"),
			CreditUsed:   dec("40"),
			PointsEarned: 60,
			CreditID:     &creditID,
			PurchasedAt:  date,
		}, nil).Once()

		rr := httptest.NewRecorder()
		body := dto.RecordPurchaseRequest{Amount: "100", CreditUsed: "40", Date: "2024-02-10"}
		h.RecordPurchase(rr, newRequest(t, http.MethodPost, "/customers/7/purchases", body, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var resp dto.PurchaseResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, int64(60), resp.PointsEarned)
		assert.Equal(t, "40.00", resp.CreditUsed)
		require.NotNil(t, resp.CreditID)
		assert.Equal(t, int64(3), *resp.CreditID)
		svc.AssertExpectations(t)
	})

	t.Run("customer not active", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)
		svc.On("RecordPurchase", mock.Anything, int64(7), mock.Anything, mock.Anything, time.Time{}).
			Return(nil, ledger.Reject(ledger.ErrCustomerNotActive, "customer 7 is BLOCKED")).Once()

		rr := httptest.NewRecorder()
		h.RecordPurchase(rr, newRequest(t, http.MethodPost, "/customers/7/purchases", dto.RecordPurchaseRequest{Amount: "10", CreditUsed: "10"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "CUSTOMER_NOT_ACTIVE", decodeError(t, rr).Code)
	})

	t.Run("bad date", func(t *testing.T) {
		svc := new(MockCustomerService)
		h := handler.NewCustomerHandler(svc, discardLogger)

		rr := httptest.NewRecorder()
		h.RecordPurchase(rr, newRequest(t, http.MethodPost, "/customers/7/purchases", dto.RecordPurchaseRequest{Amount: "10", Date: "10/02/2024"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "date", decodeError(t, rr).Field)
	})
}

func TestCustomerHandler_GetStatistics(t *testing.T) {
	svc := new(MockCustomerService)
	h := handler.NewCustomerHandler(svc, discardLogger)
	svc.On("GetCustomerStatistics", mock.Anything, int64(7)).Return(&customer.Statistics{
		CustomerID:      7,
		TotalPurchases:  dec("300"),
		PurchaseCount:   3,
		AveragePurchase: dec("100"),
		CurrentCredit:   dec("50"),
		CreditLimit:     dec("500"),
		AvailableCredit: dec("450"),
		OpenCredits:     1,
		OverdueCredits:  1,
		OverdueAmount:   dec("50"),
	}, nil).Once()

	rr := httptest.NewRecorder()
	h.GetStatistics(rr, newRequest(t, http.MethodGet, "/customers/7/statistics", nil, map[string]string{"customerID": "7"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp dto.StatisticsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "100.00", resp.AveragePurchase)
	assert.Equal(t, "450.00", resp.AvailableCredit)
	assert.Equal(t, 1, resp.OverdueCredits)
	assert.Nil(t, resp.LastPurchaseAt)
}
