package event

import (
	"context"
	"log/slog"
)

// NoopEventPublisher is used when rabbitmq.enabled is false. It only logs.
type NoopEventPublisher struct {
	logger *slog.Logger
}

var _ EventPublisher = (*NoopEventPublisher)(nil)

func NewNoopEventPublisher(logger *slog.Logger) *NoopEventPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NoopEventPublisher{logger: logger.With("component", "NoopEventPublisher")}
}

func (p *NoopEventPublisher) drop(ctx context.Context, routingKey string) error {
	p.logger.DebugContext(ctx, "Event publishing disabled, dropping event", slog.String("routingKey", routingKey))
	return nil
}

func (p *NoopEventPublisher) PublishCustomerCreated(ctx context.Context, _ CustomerCreatedEvent) error {
	return p.drop(ctx, RoutingKeyCustomerCreated)
}

func (p *NoopEventPublisher) PublishCustomerUpdated(ctx context.Context, _ CustomerUpdatedEvent) error {
	return p.drop(ctx, RoutingKeyCustomerUpdated)
}

func (p *NoopEventPublisher) PublishCreditIssued(ctx context.Context, _ CreditIssuedEvent) error {
	return p.drop(ctx, RoutingKeyCreditIssued)
}

func (p *NoopEventPublisher) PublishCreditPayment(ctx context.Context, _ CreditPaymentEvent) error {
	return p.drop(ctx, RoutingKeyCreditPayment)
}

func (p *NoopEventPublisher) PublishCreditOverdue(ctx context.Context, _ CreditOverdueEvent) error {
	return p.drop(ctx, RoutingKeyCreditOverdue)
}

func (p *NoopEventPublisher) PublishCreditCancelled(ctx context.Context, _ CreditCancelledEvent) error {
	return p.drop(ctx, RoutingKeyCreditCancelled)
}

func (p *NoopEventPublisher) PublishPointsChanged(ctx context.Context, _ PointsChangedEvent) error {
	return p.drop(ctx, RoutingKeyPointsChanged)
}
