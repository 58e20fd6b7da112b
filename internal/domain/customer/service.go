// Package customer is the facade the API and batch jobs call. It composes the
// credit and loyalty engines over one ledger store.
package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/credit"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/domain/loyalty"
	"pos-ledger/internal/event"
	"pos-ledger/internal/infrastructure/monitoring"
	"pos-ledger/internal/pkg/apperrors"
)

const (
	inputValidationPassed = "Input validation passed"
	customerNotFound      = "Customer not found in ledger store"

	DefaultCreditTermDays = 30
)

type NewCustomer struct {
	Name        string
	Phone       string
	Email       string
	CreditLimit decimal.Decimal
}

type Service interface {
	CreateCustomer(ctx context.Context, in NewCustomer) (*ledger.Customer, error)
	GetCustomer(ctx context.Context, customerID int64) (*ledger.Customer, error)
	// ListCustomers filters by status; the zero status lists every customer.
	ListCustomers(ctx context.Context, status ledger.CustomerStatus) ([]*ledger.Customer, error)
	UpdateCreditLimit(ctx context.Context, customerID int64, limit decimal.Decimal) (*ledger.Customer, error)
	SetStatus(ctx context.Context, customerID int64, status ledger.CustomerStatus) (*ledger.Customer, error)
	DeactivateCustomer(ctx context.Context, customerID int64) error
	DeleteCustomer(ctx context.Context, customerID int64) error

	// RecordPurchase accrues points on the cash part of a sale and books the
	// credit part as a new credit, all or nothing.
	RecordPurchase(ctx context.Context, customerID int64, amount, creditUsed decimal.Decimal, date time.Time) (*ledger.Purchase, error)
	GetCustomerStatistics(ctx context.Context, customerID int64) (*Statistics, error)
}

var _ Service = (*service)(nil)

type service struct {
	store      ledger.Store
	credits    credit.Engine
	loyalty    loyalty.Engine
	pub        event.EventPublisher
	clock      ledger.Clock
	creditTerm int
	logger     *slog.Logger
}

func NewService(store ledger.Store, credits credit.Engine, points loyalty.Engine, pub event.EventPublisher, clock ledger.Clock, creditTermDays int, logger *slog.Logger) Service {
	if store == nil || credits == nil || points == nil {
		panic("customer service needs a store and both engines")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewService, using default stderr handler")
	}
	if pub == nil {
		logger.Warn("Warning: No event publisher provided to NewService, events will be dropped")
		pub = event.NewNoopEventPublisher(logger)
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if creditTermDays <= 0 {
		creditTermDays = DefaultCreditTermDays
	}
	return &service{
		store:      store,
		credits:    credits,
		loyalty:    points,
		pub:        pub,
		clock:      clock,
		creditTerm: creditTermDays,
		logger:     logger.With(slog.String("component", "customerService")),
	}
}

func (s *service) publishCustomerUpdated(ctx context.Context, cust *ledger.Customer, reason string) {
	evt := event.CustomerUpdatedEvent{
		Timestamp: s.clock.Now(),
		Reason:    reason,
		Payload:   event.NewCustomerEventPayload(cust),
	}
	logger := s.logger.With(slog.Int64("customerID", cust.ID), slog.String("reason", reason))
	if err := s.pub.PublishCustomerUpdated(ctx, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish customer update event", slog.Any("error", err))
		return
	}
	logger.DebugContext(ctx, "Published customer update event")
}

func (s *service) CreateCustomer(ctx context.Context, in NewCustomer) (*ledger.Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to create new customer")

	name := strings.TrimSpace(in.Name)
	if name == "" {
		s.logger.WarnContext(ctx, "Validation failed: name is empty")
		return nil, apperrors.NewValidationError("name", "cannot be empty")
	}
	if in.CreditLimit.IsNegative() {
		s.logger.WarnContext(ctx, "Validation failed: negative credit limit")
		return nil, ledger.Reject(ledger.ErrInvalidAmount, "credit limit %s cannot be negative", in.CreditLimit)
	}
	s.logger.DebugContext(ctx, inputValidationPassed)

	cust := ledger.NewCustomer(name, strings.TrimSpace(in.Phone), strings.TrimSpace(in.Email), in.CreditLimit, s.clock.Now())
	if err := s.store.CreateCustomer(ctx, cust); err != nil {
		s.logger.ErrorContext(ctx, "Store failed to save new customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save new customer: %w", err)
	}
	logger := s.logger.With(slog.Int64("customerID", cust.ID))
	monitoring.RecordOperation("CreateCustomer", "success")

	createdEvent := event.CustomerCreatedEvent{Timestamp: s.clock.Now(), Payload: event.NewCustomerEventPayload(cust)}
	if pubErr := s.pub.PublishCustomerCreated(ctx, createdEvent); pubErr != nil {
		logger.ErrorContext(ctx, "Customer created, but FAILED to publish creation event", slog.Any("error", pubErr))
	}
	logger.InfoContext(ctx, "Successfully created new customer")
	return cust, nil
}

func (s *service) GetCustomer(ctx context.Context, customerID int64) (*ledger.Customer, error) {
	cust, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			s.logger.WarnContext(ctx, customerNotFound, slog.Int64("customerID", customerID))
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Store error finding customer", slog.Int64("customerID", customerID), slog.Any("error", err))
		return nil, fmt.Errorf("failed to get customer %d: %w", customerID, err)
	}
	return cust, nil
}

func (s *service) ListCustomers(ctx context.Context, status ledger.CustomerStatus) ([]*ledger.Customer, error) {
	statuses := []ledger.CustomerStatus{status}
	if status == "" {
		statuses = []ledger.CustomerStatus{ledger.CustomerActive, ledger.CustomerInactive, ledger.CustomerBlocked}
	} else if !status.Valid() {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("unknown customer status %q", status))
	}

	var out []*ledger.Customer
	for _, st := range statuses {
		customers, err := s.store.CustomersByStatus(ctx, st)
		if err != nil {
			s.logger.ErrorContext(ctx, "Store error listing customers", slog.String("status", string(st)), slog.Any("error", err))
			return nil, fmt.Errorf("failed to list %s customers: %w", st, err)
		}
		out = append(out, customers...)
	}
	if len(statuses) > 1 {
		sortByID(out)
	}
	s.logger.DebugContext(ctx, "Listed customers", slog.String("status", string(status)), slog.Int("count", len(out)))
	return out, nil
}

// mutate runs fn against the locked customer and stores the result.
func (s *service) mutate(ctx context.Context, op string, customerID int64, fn func(c *ledger.Customer) error) (updated *ledger.Customer, err error) {
	defer func() { monitoring.RecordOperation(op, ledger.Outcome(err)) }()

	err = s.store.WithinTx(ctx, customerID, func(ctx context.Context, tx ledger.Tx) error {
		cust, err := tx.Customer(ctx)
		if err != nil {
			return err
		}
		if err := fn(cust); err != nil {
			return err
		}
		updated = cust
		return tx.PutCustomer(ctx, cust)
	})
	if err != nil {
		s.logger.WarnContext(ctx, op+" rejected", slog.Int64("customerID", customerID), slog.Any("error", err))
		return nil, err
	}
	return updated, nil
}

func (s *service) UpdateCreditLimit(ctx context.Context, customerID int64, limit decimal.Decimal) (*ledger.Customer, error) {
	s.logger.InfoContext(ctx, "Updating credit limit", slog.Int64("customerID", customerID), slog.String("limit", limit.String()))
	cust, err := s.mutate(ctx, "UpdateCreditLimit", customerID, func(c *ledger.Customer) error {
		return c.SetCreditLimit(limit, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.publishCustomerUpdated(ctx, cust, "credit_limit")
	return cust, nil
}

func (s *service) SetStatus(ctx context.Context, customerID int64, status ledger.CustomerStatus) (*ledger.Customer, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("unknown customer status %q", status))
	}
	s.logger.InfoContext(ctx, "Setting customer status", slog.Int64("customerID", customerID), slog.String("status", string(status)))

	changed := false
	cust, err := s.mutate(ctx, "SetStatus", customerID, func(c *ledger.Customer) error {
		changed = c.Status != status
		c.SetStatus(status, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publishCustomerUpdated(ctx, cust, "status")
	}
	return cust, nil
}

func (s *service) DeactivateCustomer(ctx context.Context, customerID int64) error {
	_, err := s.SetStatus(ctx, customerID, ledger.CustomerInactive)
	return err
}

func (s *service) DeleteCustomer(ctx context.Context, customerID int64) (err error) {
	logger := s.logger.With(slog.Int64("customerID", customerID))
	logger.InfoContext(ctx, "Attempting to delete customer")
	defer func() { monitoring.RecordOperation("DeleteCustomer", ledger.Outcome(err)) }()

	var deleted *ledger.Customer
	err = s.store.WithinTx(ctx, customerID, func(ctx context.Context, tx ledger.Tx) error {
		credits, err := tx.Credits(ctx)
		if err != nil {
			return err
		}
		unpaid := 0
		for _, c := range credits {
			if !c.Settled() {
				unpaid++
			}
		}
		if unpaid > 0 {
			return ledger.Reject(ledger.ErrHasOpenCredits, "customer %d has %d unpaid credits; deactivate instead", customerID, unpaid)
		}
		if deleted, err = tx.Customer(ctx); err != nil {
			return err
		}
		return tx.DeleteCustomer(ctx)
	})
	if err != nil {
		logger.WarnContext(ctx, "Customer deletion rejected", slog.Any("error", err))
		return err
	}

	deleted.SetStatus(ledger.CustomerInactive, s.clock.Now())
	s.publishCustomerUpdated(ctx, deleted, "deleted")
	logger.InfoContext(ctx, "Customer deleted")
	return nil
}

func (s *service) RecordPurchase(ctx context.Context, customerID int64, amount, creditUsed decimal.Decimal, date time.Time) (purchase *ledger.Purchase, err error) {
	logger := s.logger.With(
		slog.Int64("customerID", customerID),
		slog.String("amount", amount.String()),
		slog.String("creditUsed", creditUsed.String()),
	)
	logger.InfoContext(ctx, "Recording purchase")
	defer func() { monitoring.RecordOperation("RecordPurchase", ledger.Outcome(err)) }()

	switch {
	case amount.IsNegative():
		err = ledger.Reject(ledger.ErrInvalidAmount, "purchase amount %s cannot be negative", amount)
	case creditUsed.IsNegative():
		err = ledger.Reject(ledger.ErrInvalidAmount, "credit used %s cannot be negative", creditUsed)
	case creditUsed.GreaterThan(amount):
		err = ledger.Reject(ledger.ErrInvalidAmount, "credit used %s exceeds purchase amount %s", creditUsed, amount)
	}
	if err != nil {
		logger.WarnContext(ctx, "Validation failed", slog.Any("error", err))
		return nil, err
	}
	if date.IsZero() {
		date = s.clock.Now()
	}

	var issued *ledger.Credit
	var balance int64
	err = s.store.WithinTx(ctx, customerID, func(ctx context.Context, tx ledger.Tx) error {
		earned, err := s.loyalty.AccrueInTx(ctx, tx, amount.Sub(creditUsed))
		if err != nil {
			return err
		}

		p := &ledger.Purchase{
			CustomerID:   customerID,
			Amount:       amount,
			CreditUsed:   creditUsed,
			PointsEarned: earned,
			PurchasedAt:  date,
		}
		if creditUsed.IsPositive() {
			issued, err = s.credits.IssueInTx(ctx, tx, creditUsed, date.AddDate(0, 0, s.creditTerm), "purchase")
			if err != nil {
				return err
			}
			p.CreditID = &issued.ID
		}
		if err := tx.InsertPurchase(ctx, p); err != nil {
			return err
		}

		cust, err := tx.Customer(ctx)
		if err != nil {
			return err
		}
		balance = cust.LoyaltyPoints
		purchase = p
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "Purchase rejected", slog.Any("error", err))
		return nil, err
	}

	now := s.clock.Now()
	monitoring.RecordPointsAccrued(purchase.PointsEarned)
	if purchase.PointsEarned > 0 {
		evt := event.PointsChangedEvent{Timestamp: now, CustomerID: customerID, Delta: purchase.PointsEarned, Balance: balance, Reason: "purchase"}
		if pubErr := s.pub.PublishPointsChanged(ctx, evt); pubErr != nil {
			logger.ErrorContext(ctx, "Failed to publish points changed event", slog.Any("error", pubErr))
		}
	}
	if issued != nil {
		monitoring.RecordCreditIssued(issued.Principal.InexactFloat64())
		evt := event.CreditIssuedEvent{Timestamp: now, Payload: event.NewCreditEventPayload(issued, now)}
		if pubErr := s.pub.PublishCreditIssued(ctx, evt); pubErr != nil {
			logger.ErrorContext(ctx, "Failed to publish credit issued event", slog.Any("error", pubErr))
		}
	}
	logger.InfoContext(ctx, "Purchase recorded", slog.Int64("purchaseID", purchase.ID), slog.Int64("pointsEarned", purchase.PointsEarned))
	return purchase, nil
}
