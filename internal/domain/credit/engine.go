// Package credit issues customer credits against their limit, applies payments
// and derives overdue state from the clock.
package credit

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/event"
	"pos-ledger/internal/infrastructure/monitoring"
	"pos-ledger/internal/pkg/apperrors"
)

const defaultPageSize = 100

type Engine interface {
	CreateCredit(ctx context.Context, customerID int64, principal decimal.Decimal, dueDate time.Time) (*ledger.Credit, error)

	ProcessPayment(ctx context.Context, creditID int64, amount decimal.Decimal) (*ledger.Credit, error)

	// CancelCredit removes a credit nothing has been paid on and frees its principal.
	CancelCredit(ctx context.Context, creditID int64) error

	GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error)

	ListCustomerCredits(ctx context.Context, customerID int64) ([]*ledger.Credit, error)

	// ListOverdue streams credits overdue at now by ascending due date, ties by ID.
	// Every range over the result starts a fresh walk.
	ListOverdue(ctx context.Context, now time.Time) iter.Seq2[ledger.Credit, error]

	// IssueInTx performs CreateCredit inside a transaction the caller already holds.
	// It publishes nothing.
	IssueInTx(ctx context.Context, tx ledger.Tx, principal decimal.Decimal, dueDate time.Time, note string) (*ledger.Credit, error)
}

var _ Engine = (*engine)(nil)

type engine struct {
	store    ledger.Store
	clock    ledger.Clock
	pub      event.EventPublisher
	pageSize int
	logger   *slog.Logger
}

func NewEngine(store ledger.Store, clock ledger.Clock, pub event.EventPublisher, logger *slog.Logger) Engine {
	if store == nil {
		panic("ledger store cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("No logger provided to credit.NewEngine, using default stderr handler")
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if pub == nil {
		pub = event.NewNoopEventPublisher(logger)
	}
	return &engine{
		store:    store,
		clock:    clock,
		pub:      pub,
		pageSize: defaultPageSize,
		logger:   logger.With(slog.String("component", "creditEngine")),
	}
}

func (e *engine) CreateCredit(ctx context.Context, customerID int64, principal decimal.Decimal, dueDate time.Time) (created *ledger.Credit, err error) {
	logger := e.logger.With(slog.Int64("customerID", customerID), slog.String("principal", principal.String()))
	logger.InfoContext(ctx, "Creating credit")
	defer func() { monitoring.RecordOperation("CreateCredit", ledger.Outcome(err)) }()

	err = e.store.WithinTx(ctx, customerID, func(ctx context.Context, tx ledger.Tx) error {
		var txErr error
		created, txErr = e.IssueInTx(ctx, tx, principal, dueDate, "")
		return txErr
	})
	if err != nil {
		logger.WarnContext(ctx, "Credit rejected", slog.Any("error", err))
		return nil, err
	}

	monitoring.RecordCreditIssued(principal.InexactFloat64())
	logger.InfoContext(ctx, "Credit created", slog.Int64("creditID", created.ID))

	now := e.clock.Now()
	if pubErr := e.pub.PublishCreditIssued(ctx, event.CreditIssuedEvent{Timestamp: now, Payload: event.NewCreditEventPayload(created, now)}); pubErr != nil {
		logger.ErrorContext(ctx, "Failed to publish credit issued event", slog.Any("error", pubErr))
	}
	return created, nil
}

func (e *engine) IssueInTx(ctx context.Context, tx ledger.Tx, principal decimal.Decimal, dueDate time.Time, note string) (*ledger.Credit, error) {
	if !principal.IsPositive() {
		return nil, ledger.Reject(ledger.ErrInvalidAmount, "credit principal %s must be positive", principal)
	}
	if dueDate.IsZero() {
		return nil, fmt.Errorf("%w: credit due date is required", apperrors.ErrInvalidArgument)
	}

	cust, err := tx.Customer(ctx)
	if err != nil {
		return nil, err
	}
	if !cust.IsActive() {
		return nil, ledger.Reject(ledger.ErrCustomerNotActive, "customer %d is %s and cannot take credit", cust.ID, cust.Status)
	}

	now := e.clock.Now()
	if err := cust.ChargeCredit(principal, now); err != nil {
		return nil, err
	}
	if err := tx.PutCustomer(ctx, cust); err != nil {
		return nil, err
	}

	credit := ledger.NewCredit(cust.ID, principal, dueDate, now)
	credit.Note = note
	if err := tx.PutCredit(ctx, credit); err != nil {
		return nil, err
	}
	return credit, nil
}

func (e *engine) ProcessPayment(ctx context.Context, creditID int64, amount decimal.Decimal) (paid *ledger.Credit, err error) {
	logger := e.logger.With(slog.Int64("creditID", creditID), slog.String("amount", amount.String()))
	logger.InfoContext(ctx, "Processing credit payment")
	defer func() { monitoring.RecordOperation("ProcessPayment", ledger.Outcome(err)) }()

	if !amount.IsPositive() {
		err = ledger.Reject(ledger.ErrInvalidAmount, "payment amount %s must be positive", amount)
		logger.WarnContext(ctx, "Payment rejected", slog.Any("error", err))
		return nil, err
	}

	owner, err := e.store.GetCredit(ctx, creditID)
	if err != nil {
		logger.WarnContext(ctx, "Credit lookup failed", slog.Any("error", err))
		return nil, err
	}

	err = e.store.WithinTx(ctx, owner.CustomerID, func(ctx context.Context, tx ledger.Tx) error {
		credit, err := tx.GetCredit(ctx, creditID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if err := credit.ApplyPayment(amount, now); err != nil {
			return err
		}
		if err := tx.PutCredit(ctx, credit); err != nil {
			return err
		}

		cust, err := tx.Customer(ctx)
		if err != nil {
			return err
		}
		cust.ReleaseCredit(amount, now)
		if err := tx.PutCustomer(ctx, cust); err != nil {
			return err
		}
		paid = credit
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "Payment rejected", slog.Any("error", err))
		return nil, err
	}

	monitoring.RecordCreditRepaid(amount.InexactFloat64())
	now := e.clock.Now()
	logger.InfoContext(ctx, "Payment applied", slog.String("status", string(paid.StatusAt(now))))

	evt := event.CreditPaymentEvent{Timestamp: now, Amount: amount.StringFixed(2), Payload: event.NewCreditEventPayload(paid, now)}
	if pubErr := e.pub.PublishCreditPayment(ctx, evt); pubErr != nil {
		logger.ErrorContext(ctx, "Failed to publish credit payment event", slog.Any("error", pubErr))
	}
	view := paid.View(now)
	return &view, nil
}

func (e *engine) CancelCredit(ctx context.Context, creditID int64) (err error) {
	logger := e.logger.With(slog.Int64("creditID", creditID))
	logger.InfoContext(ctx, "Cancelling credit")
	defer func() { monitoring.RecordOperation("CancelCredit", ledger.Outcome(err)) }()

	owner, err := e.store.GetCredit(ctx, creditID)
	if err != nil {
		return err
	}

	var cancelled *ledger.Credit
	err = e.store.WithinTx(ctx, owner.CustomerID, func(ctx context.Context, tx ledger.Tx) error {
		credit, err := tx.GetCredit(ctx, creditID)
		if err != nil {
			return err
		}
		if !credit.AmountPaid.IsZero() {
			return fmt.Errorf("%w: credit %d already has %s paid and cannot be cancelled",
				apperrors.ErrConflict, creditID, credit.AmountPaid.StringFixed(2))
		}
		cust, err := tx.Customer(ctx)
		if err != nil {
			return err
		}
		cust.ReleaseCredit(credit.Principal, e.clock.Now())
		if err := tx.PutCustomer(ctx, cust); err != nil {
			return err
		}
		cancelled = credit
		return tx.DeleteCredit(ctx, creditID)
	})
	if err != nil {
		logger.WarnContext(ctx, "Cancellation rejected", slog.Any("error", err))
		return err
	}

	logger.InfoContext(ctx, "Credit cancelled", slog.Int64("customerID", cancelled.CustomerID))
	now := e.clock.Now()
	if pubErr := e.pub.PublishCreditCancelled(ctx, event.CreditCancelledEvent{Timestamp: now, Payload: event.NewCreditEventPayload(cancelled, now)}); pubErr != nil {
		logger.ErrorContext(ctx, "Failed to publish credit cancelled event", slog.Any("error", pubErr))
	}
	return nil
}

func (e *engine) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	credit, err := e.store.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	view := credit.View(e.clock.Now())
	return &view, nil
}

func (e *engine) ListCustomerCredits(ctx context.Context, customerID int64) ([]*ledger.Credit, error) {
	credits, err := e.store.CreditsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	out := make([]*ledger.Credit, len(credits))
	for i, c := range credits {
		view := c.View(now)
		out[i] = &view
	}
	return out, nil
}

func (e *engine) ListOverdue(ctx context.Context, now time.Time) iter.Seq2[ledger.Credit, error] {
	return func(yield func(ledger.Credit, error) bool) {
		cursor := ledger.OverdueCursor{}
		for {
			page, err := e.store.QueryOverdue(ctx, now, cursor, e.pageSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "Failed to query overdue credits", slog.Any("error", err))
				yield(ledger.Credit{}, err)
				return
			}
			for _, c := range page {
				if !yield(c.View(now), nil) {
					return
				}
			}
			if len(page) < e.pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = ledger.OverdueCursor{DueDate: last.DueDate, CreditID: last.ID}
		}
	}
}
