package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/customer"
	"pos-ledger/internal/domain/ledger"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type MockCustomerService struct {
	mock.Mock
}

func (_m *MockCustomerService) CreateCustomer(ctx context.Context, in customer.NewCustomer) (*ledger.Customer, error) {
	ret := _m.Called(ctx, in)
	r0, _ := ret.Get(0).(*ledger.Customer)
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) GetCustomer(ctx context.Context, customerID int64) (*ledger.Customer, error) {
	ret := _m.Called(ctx, customerID)
	r0, _ := ret.Get(0).(*ledger.Customer)
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) ListCustomers(ctx context.Context, status ledger.CustomerStatus) ([]*ledger.Customer, error) {
	ret := _m.Called(ctx, status)
	r0, _ := ret.Get(0).([]*ledger.Customer)
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) UpdateCreditLimit(ctx context.Context, customerID int64, limit decimal.Decimal) (*ledger.Customer, error) {
	ret := _m.Called(ctx, customerID, limit)
	r0, _ := ret.Get(0).(*ledger.Customer)
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) SetStatus(ctx context.Context, customerID int64, status ledger.CustomerStatus) (*ledger.Customer, error) {
	ret := _m.Called(ctx, customerID, status)
	r0, _ := ret.Get(0).(*ledger.Customer)
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) DeactivateCustomer(ctx context.Context, customerID int64) error {
	return _m.Called(ctx, customerID).Error(0)
}

func (_m *MockCustomerService) DeleteCustomer(ctx context.Context, customerID int64) error {
	return _m.Called(ctx, customerID).Error(0)
}

func (_m *MockCustomerService) RecordPurchase(ctx context.Context, customerID int64, amount, creditUsed decimal.Decimal, date time.Time) (*ledger.Purchase, error) {
	ret := _m.Called(ctx, customerID, amount, creditUsed, date)
	r0, _ := ret.Get(0).(*ledger.Purchase)
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) GetCustomerStatistics(ctx context.Context, customerID int64) (*customer.Statistics, error) {
	ret := _m.Called(ctx, customerID)
	r0, _ := ret.Get(0).(*customer.Statistics)
	return r0, ret.Error(1)
}

type MockCreditEngine struct {
	mock.Mock
}

func (_m *MockCreditEngine) CreateCredit(ctx context.Context, customerID int64, principal decimal.Decimal, dueDate time.Time) (*ledger.Credit, error) {
	ret := _m.Called(ctx, customerID, principal, dueDate)
	r0, _ := ret.Get(0).(*ledger.Credit)
	return r0, ret.Error(1)
}

func (_m *MockCreditEngine) ProcessPayment(ctx context.Context, creditID int64, amount decimal.Decimal) (*ledger.Credit, error) {
	ret := _m.Called(ctx, creditID, amount)
	r0, _ := ret.Get(0).(*ledger.Credit)
	return r0, ret.Error(1)
}

func (_m *MockCreditEngine) CancelCredit(ctx context.Context, creditID int64) error {
	return _m.Called(ctx, creditID).Error(0)
}

func (_m *MockCreditEngine) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	ret := _m.Called(ctx, creditID)
	r0, _ := ret.Get(0).(*ledger.Credit)
	return r0, ret.Error(1)
}

func (_m *MockCreditEngine) ListCustomerCredits(ctx context.Context, customerID int64) ([]*ledger.Credit, error) {
	ret := _m.Called(ctx, customerID)
	r0, _ := ret.Get(0).([]*ledger.Credit)
	return r0, ret.Error(1)
}

func (_m *MockCreditEngine) ListOverdue(ctx context.Context, now time.Time) iter.Seq2[ledger.Credit, error] {
	return _m.Called(ctx, now).Get(0).(iter.Seq2[ledger.Credit, error])
}

func (_m *MockCreditEngine) IssueInTx(ctx context.Context, tx ledger.Tx, principal decimal.Decimal, dueDate time.Time, note string) (*ledger.Credit, error) {
	ret := _m.Called(ctx, tx, principal, dueDate, note)
	r0, _ := ret.Get(0).(*ledger.Credit)
	return r0, ret.Error(1)
}

type MockLoyaltyEngine struct {
	mock.Mock
}

func (_m *MockLoyaltyEngine) AddPoints(ctx context.Context, customerID int64, purchaseAmount decimal.Decimal) (int64, error) {
	ret := _m.Called(ctx, customerID, purchaseAmount)
	return ret.Get(0).(int64), ret.Error(1)
}

func (_m *MockLoyaltyEngine) RedeemPoints(ctx context.Context, customerID int64, points int64) (decimal.Decimal, error) {
	ret := _m.Called(ctx, customerID, points)
	return ret.Get(0).(decimal.Decimal), ret.Error(1)
}

func (_m *MockLoyaltyEngine) Config(ctx context.Context) (ledger.LoyaltyConfig, error) {
	ret := _m.Called(ctx)
	return ret.Get(0).(ledger.LoyaltyConfig), ret.Error(1)
}

func (_m *MockLoyaltyEngine) UpdateConfig(ctx context.Context, mutate func(cfg *ledger.LoyaltyConfig)) (ledger.LoyaltyConfig, error) {
	ret := _m.Called(ctx, mutate)
	return ret.Get(0).(ledger.LoyaltyConfig), ret.Error(1)
}

func (_m *MockLoyaltyEngine) AccrueInTx(ctx context.Context, tx ledger.Tx, purchaseAmount decimal.Decimal) (int64, error) {
	ret := _m.Called(ctx, tx, purchaseAmount)
	return ret.Get(0).(int64), ret.Error(1)
}

// newRequest builds a request with chi URL params set, as the router would.
func newRequest(t *testing.T, method, target string, body interface{}, params map[string]string) *http.Request {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) dto.ErrorDetail {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Error
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEq(expected string) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(dec(expected)) })
}
