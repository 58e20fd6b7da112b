package handler_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/api/handler"
	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

func sampleCredit(id int64, principal, paid string, due time.Time) *ledger.Credit {
	c := ledger.NewCredit(7, dec(principal), due, testNow)
	c.ID = id
	c.AmountPaid = dec(paid)
	return c
}

func seqOf(credits []ledger.Credit, tail error) iter.Seq2[ledger.Credit, error] {
	return func(yield func(ledger.Credit, error) bool) {
		for _, c := range credits {
			if !yield(c, nil) {
				return
			}
		}
		if tail != nil {
			yield(ledger.Credit{}, tail)
		}
	}
}

func TestCreditHandler_CreateCredit(t *testing.T) {
	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("issued", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, ledger.FixedClock(testNow), discardLogger)
		engine.On("CreateCredit", mock.Anything, int64(7), decEq("250"), due).
			Return(sampleCredit(1, "250", "0", due), nil).Once()

		rr := httptest.NewRecorder()
		h.CreateCredit(rr, newRequest(t, http.MethodPost, "/customers/7/credits",
			dto.CreateCreditRequest{Principal: "250", DueDate: "2024-04-01"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var resp dto.CreditResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "250.00", resp.Principal)
		assert.Equal(t, "250.00", resp.Outstanding)
		assert.Equal(t, "OPEN", resp.Status)
		engine.AssertExpectations(t)
	})

	t.Run("over the limit", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, nil, discardLogger)
		engine.On("CreateCredit", mock.Anything, int64(7), mock.Anything, due).
			Return(nil, ledger.Reject(ledger.ErrLimitExceeded, "customer 7: limit exceeded")).Once()

		rr := httptest.NewRecorder()
		h.CreateCredit(rr, newRequest(t, http.MethodPost, "/customers/7/credits",
			dto.CreateCreditRequest{Principal: "9999", DueDate: "2024-04-01"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "LIMIT_EXCEEDED", decodeError(t, rr).Code)
	})

	t.Run("due date required", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, nil, discardLogger)

		rr := httptest.NewRecorder()
		h.CreateCredit(rr, newRequest(t, http.MethodPost, "/customers/7/credits",
			dto.CreateCreditRequest{Principal: "10"}, map[string]string{"customerID": "7"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "dueDate", decodeError(t, rr).Field)
		engine.AssertNotCalled(t, "CreateCredit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCreditHandler_ProcessPayment(t *testing.T) {
	due := testNow.AddDate(0, 0, 10)

	tests := []struct {
		name       string
		amount     string
		result     *ledger.Credit
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "partial payment",
			amount:     "40",
			result:     func() *ledger.Credit { c := sampleCredit(1, "100", "40", due); c.Status = ledger.CreditPartiallyPaid; return c }(),
			wantStatus: http.StatusOK,
		},
		{
			name:       "overpayment",
			amount:     "500",
			err:        ledger.Reject(ledger.ErrOverpayment, "credit 1: payment 500.00 exceeds outstanding 60.00"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "OVERPAYMENT",
		},
		{
			name:       "zero amount",
			amount:     "0",
			err:        ledger.Reject(ledger.ErrInvalidAmount, "payment amount 0 must be positive"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_AMOUNT",
		},
		{
			name:       "unknown credit",
			amount:     "1",
			err:        ledger.NotFound("credit", 1),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockCreditEngine)
			h := handler.NewCreditHandler(engine, nil, discardLogger)
			engine.On("ProcessPayment", mock.Anything, int64(1), decEq(tt.amount)).Return(tt.result, tt.err).Once()

			rr := httptest.NewRecorder()
			h.ProcessPayment(rr, newRequest(t, http.MethodPost, "/credits/1/payments",
				dto.PaymentRequest{Amount: tt.amount}, map[string]string{"creditID": "1"}))

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rr).Code)
			} else {
				var resp dto.CreditResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, "60.00", resp.Outstanding)
				assert.Equal(t, "PARTIALLY_PAID", resp.Status)
			}
			engine.AssertExpectations(t)
		})
	}
}

func TestCreditHandler_GetAndList(t *testing.T) {
	engine := new(MockCreditEngine)
	h := handler.NewCreditHandler(engine, nil, discardLogger)
	past := testNow.AddDate(0, 0, -1)
	overdue := sampleCredit(2, "80", "0", past).View(testNow)

	engine.On("GetCredit", mock.Anything, int64(2)).Return(&overdue, nil).Once()
	engine.On("ListCustomerCredits", mock.Anything, int64(7)).Return([]*ledger.Credit{&overdue}, nil).Once()

	rr := httptest.NewRecorder()
	h.GetCredit(rr, newRequest(t, http.MethodGet, "/credits/2", nil, map[string]string{"creditID": "2"}))
	assert.Equal(t, http.StatusOK, rr.Code)
	var one dto.CreditResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&one))
	assert.Equal(t, "OVERDUE", one.Status)

	rr = httptest.NewRecorder()
	h.ListCustomerCredits(rr, newRequest(t, http.MethodGet, "/customers/7/credits", nil, map[string]string{"customerID": "7"}))
	assert.Equal(t, http.StatusOK, rr.Code)
	var list []dto.CreditResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list, 1)

	engine.AssertExpectations(t)
}

func TestCreditHandler_CancelCredit(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, nil, discardLogger)
		engine.On("CancelCredit", mock.Anything, int64(4)).Return(nil).Once()

		rr := httptest.NewRecorder()
		h.CancelCredit(rr, newRequest(t, http.MethodDelete, "/credits/4", nil, map[string]string{"creditID": "4"}))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("already paid into", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, nil, discardLogger)
		engine.On("CancelCredit", mock.Anything, int64(4)).
			Return(fmt.Errorf("%w: credit 4 has 10.00 paid", apperrors.ErrConflict)).Once()

		rr := httptest.NewRecorder()
		h.CancelCredit(rr, newRequest(t, http.MethodDelete, "/credits/4", nil, map[string]string{"creditID": "4"}))

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "CONFLICT", decodeError(t, rr).Code)
	})
}

func TestCreditHandler_ListOverdue(t *testing.T) {
	asOf := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	first := sampleCredit(1, "100", "25", asOf.AddDate(0, 0, -10)).View(asOf)
	second := sampleCredit(2, "50.5", "0", asOf.AddDate(0, 0, -1)).View(asOf)

	t.Run("explicit date", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, ledger.FixedClock(testNow), discardLogger)
		engine.On("ListOverdue", mock.Anything, asOf).Return(seqOf([]ledger.Credit{first, second}, nil)).Once()

		rr := httptest.NewRecorder()
		h.ListOverdue(rr, newRequest(t, http.MethodGet, "/credits/overdue?asOf=2024-03-15", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.OverdueResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "125.50", resp.TotalOutstanding)
		require.Len(t, resp.Credits, 2)
		assert.Equal(t, int64(1), resp.Credits[0].ID)
		assert.Equal(t, "OVERDUE", resp.Credits[1].Status)
		engine.AssertExpectations(t)
	})

	t.Run("defaults to the clock", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, ledger.FixedClock(testNow), discardLogger)
		engine.On("ListOverdue", mock.Anything, testNow).Return(seqOf(nil, nil)).Once()

		rr := httptest.NewRecorder()
		h.ListOverdue(rr, newRequest(t, http.MethodGet, "/credits/overdue", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp dto.OverdueResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, 0, resp.Count)
		assert.Equal(t, "0.00", resp.TotalOutstanding)
		assert.NotNil(t, resp.Credits)
	})

	t.Run("walk error", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, ledger.FixedClock(testNow), discardLogger)
		engine.On("ListOverdue", mock.Anything, testNow).Return(seqOf([]ledger.Credit{first}, errors.New("page failed"))).Once()

		rr := httptest.NewRecorder()
		h.ListOverdue(rr, newRequest(t, http.MethodGet, "/credits/overdue", nil, nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		engine := new(MockCreditEngine)
		h := handler.NewCreditHandler(engine, ledger.FixedClock(testNow), discardLogger)

		rr := httptest.NewRecorder()
		h.ListOverdue(rr, newRequest(t, http.MethodGet, "/credits/overdue?asOf=yesterday", nil, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "asOf", decodeError(t, rr).Field)
	})
}
