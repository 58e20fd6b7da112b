// Package eventtest provides a testify mock of event.EventPublisher.
package eventtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pos-ledger/internal/event"
)

type MockEventPublisher struct {
	mock.Mock
}

var _ event.EventPublisher = (*MockEventPublisher)(nil)

// NewPermissive returns a mock that accepts any event and reports success.
func NewPermissive() *MockEventPublisher {
	m := new(MockEventPublisher)
	for _, method := range []string{
		"PublishCustomerCreated", "PublishCustomerUpdated", "PublishCreditIssued",
		"PublishCreditPayment", "PublishCreditOverdue", "PublishCreditCancelled", "PublishPointsChanged",
	} {
		m.On(method, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	return m
}

func (m *MockEventPublisher) PublishCustomerCreated(ctx context.Context, evt event.CustomerCreatedEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockEventPublisher) PublishCustomerUpdated(ctx context.Context, evt event.CustomerUpdatedEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockEventPublisher) PublishCreditIssued(ctx context.Context, evt event.CreditIssuedEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockEventPublisher) PublishCreditPayment(ctx context.Context, evt event.CreditPaymentEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockEventPublisher) PublishCreditOverdue(ctx context.Context, evt event.CreditOverdueEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockEventPublisher) PublishCreditCancelled(ctx context.Context, evt event.CreditCancelledEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *MockEventPublisher) PublishPointsChanged(ctx context.Context, evt event.PointsChangedEvent) error {
	return m.Called(ctx, evt).Error(0)
}
