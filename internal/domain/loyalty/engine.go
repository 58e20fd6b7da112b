// Package loyalty accrues points on purchases and redeems them at the configured value.
package loyalty

import (
	"context"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/event"
	"pos-ledger/internal/infrastructure/monitoring"
)

// ConfigSource holds the loyalty rules. Every ledger.Store is one.
type ConfigSource interface {
	LoyaltyConfig(ctx context.Context) (ledger.LoyaltyConfig, error)
	UpdateLoyaltyConfig(ctx context.Context, fn func(current ledger.LoyaltyConfig) (ledger.LoyaltyConfig, error)) (ledger.LoyaltyConfig, error)
}

type Engine interface {
	// AddPoints credits floor(purchaseAmount * pointsPerUnit) and returns the points added.
	AddPoints(ctx context.Context, customerID int64, purchaseAmount decimal.Decimal) (int64, error)

	// RedeemPoints deducts points and returns their monetary value. The value is
	// reported to the caller only; nothing is credited anywhere.
	RedeemPoints(ctx context.Context, customerID int64, points int64) (decimal.Decimal, error)

	Config(ctx context.Context) (ledger.LoyaltyConfig, error)

	// UpdateConfig applies mutate to the current config and stores the result if it validates.
	UpdateConfig(ctx context.Context, mutate func(cfg *ledger.LoyaltyConfig)) (ledger.LoyaltyConfig, error)

	// AccrueInTx performs AddPoints inside a transaction the caller already holds.
	AccrueInTx(ctx context.Context, tx ledger.Tx, purchaseAmount decimal.Decimal) (int64, error)
}

var _ Engine = (*engine)(nil)

type engine struct {
	store  ledger.Store
	config ConfigSource
	clock  ledger.Clock
	pub    event.EventPublisher
	logger *slog.Logger
}

func NewEngine(store ledger.Store, config ConfigSource, clock ledger.Clock, pub event.EventPublisher, logger *slog.Logger) Engine {
	if store == nil {
		panic("ledger store cannot be nil")
	}
	if config == nil {
		config = store
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("No logger provided to loyalty.NewEngine, using default stderr handler")
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if pub == nil {
		pub = event.NewNoopEventPublisher(logger)
	}
	return &engine{
		store:  store,
		config: config,
		clock:  clock,
		pub:    pub,
		logger: logger.With(slog.String("component", "loyaltyEngine")),
	}
}

func (e *engine) AddPoints(ctx context.Context, customerID int64, purchaseAmount decimal.Decimal) (added int64, err error) {
	logger := e.logger.With(slog.Int64("customerID", customerID), slog.String("amount", purchaseAmount.String()))
	defer func() { monitoring.RecordOperation("AddPoints", ledger.Outcome(err)) }()

	var balance int64
	err = e.store.WithinTx(ctx, customerID, func(ctx context.Context, tx ledger.Tx) error {
		var txErr error
		added, txErr = e.AccrueInTx(ctx, tx, purchaseAmount)
		if txErr != nil {
			return txErr
		}
		cust, txErr := tx.Customer(ctx)
		if txErr != nil {
			return txErr
		}
		balance = cust.LoyaltyPoints
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "Point accrual rejected", slog.Any("error", err))
		return 0, err
	}

	monitoring.RecordPointsAccrued(added)
	logger.InfoContext(ctx, "Points accrued", slog.Int64("points", added), slog.Int64("balance", balance))
	if added > 0 {
		e.publishPoints(ctx, event.PointsChangedEvent{CustomerID: customerID, Delta: added, Balance: balance, Reason: "accrual"})
	}
	return added, nil
}

func (e *engine) AccrueInTx(ctx context.Context, tx ledger.Tx, purchaseAmount decimal.Decimal) (int64, error) {
	if purchaseAmount.IsNegative() {
		return 0, ledger.Reject(ledger.ErrInvalidAmount, "purchase amount %s cannot be negative", purchaseAmount)
	}
	cfg, err := e.config.LoyaltyConfig(ctx)
	if err != nil {
		return 0, err
	}
	cust, err := tx.Customer(ctx)
	if err != nil {
		return 0, err
	}

	points := cfg.PointsFor(purchaseAmount)
	if points == 0 {
		return 0, nil
	}
	cust.AddPoints(points, e.clock.Now())
	if err := tx.PutCustomer(ctx, cust); err != nil {
		return 0, err
	}
	return points, nil
}

func (e *engine) RedeemPoints(ctx context.Context, customerID int64, points int64) (value decimal.Decimal, err error) {
	logger := e.logger.With(slog.Int64("customerID", customerID), slog.Int64("points", points))
	logger.InfoContext(ctx, "Redeeming points")
	defer func() { monitoring.RecordOperation("RedeemPoints", ledger.Outcome(err)) }()

	if points <= 0 {
		err = ledger.Reject(ledger.ErrInvalidAmount, "points to redeem must be positive, got %d", points)
		return decimal.Zero, err
	}
	var (
		cfg     ledger.LoyaltyConfig
		balance int64
	)
	err = e.store.WithinTx(ctx, customerID, func(ctx context.Context, tx ledger.Tx) error {
		cust, err := tx.Customer(ctx)
		if err != nil {
			return err
		}
		// minimum check and value come from one config read
		if cfg, err = e.config.LoyaltyConfig(ctx); err != nil {
			return err
		}
		if points > cust.LoyaltyPoints {
			return ledger.Reject(ledger.ErrInsufficientPoints, "customer %d: requested %d points, balance is %d", customerID, points, cust.LoyaltyPoints)
		}
		if points < cfg.MinimumRedemption {
			return ledger.Reject(ledger.ErrBelowMinimumRedemption, "at least %d points must be redeemed, got %d", cfg.MinimumRedemption, points)
		}
		if err := cust.DeductPoints(points, e.clock.Now()); err != nil {
			return err
		}
		balance = cust.LoyaltyPoints
		return tx.PutCustomer(ctx, cust)
	})
	if err != nil {
		logger.WarnContext(ctx, "Redemption rejected", slog.Any("error", err))
		return decimal.Zero, err
	}

	value = cfg.ValueOf(points)
	monitoring.RecordPointsRedeemed(points)
	logger.InfoContext(ctx, "Points redeemed", slog.String("value", value.StringFixed(2)), slog.Int64("balance", balance))
	e.publishPoints(ctx, event.PointsChangedEvent{CustomerID: customerID, Delta: -points, Balance: balance, Reason: "redemption", Value: value.StringFixed(2)})
	return value, nil
}

func (e *engine) Config(ctx context.Context) (ledger.LoyaltyConfig, error) {
	return e.config.LoyaltyConfig(ctx)
}

func (e *engine) UpdateConfig(ctx context.Context, mutate func(cfg *ledger.LoyaltyConfig)) (ledger.LoyaltyConfig, error) {
	updated, err := e.config.UpdateLoyaltyConfig(ctx, func(current ledger.LoyaltyConfig) (ledger.LoyaltyConfig, error) {
		next := current
		mutate(&next)
		if err := next.Validate(); err != nil {
			return current, err
		}
		next.UpdatedAt = e.clock.Now()
		return next, nil
	})
	if err != nil {
		e.logger.WarnContext(ctx, "Loyalty config update rejected", slog.Any("error", err))
		return ledger.LoyaltyConfig{}, err
	}
	e.logger.InfoContext(ctx, "Loyalty config updated",
		slog.String("pointsPerUnit", updated.PointsPerUnit.String()),
		slog.String("redemptionValue", updated.RedemptionValue.String()),
		slog.Int64("minimumRedemption", updated.MinimumRedemption))
	return updated, nil
}

func (e *engine) publishPoints(ctx context.Context, evt event.PointsChangedEvent) {
	evt.Timestamp = e.clock.Now()
	if err := e.pub.PublishPointsChanged(ctx, evt); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish points changed event", slog.Int64("customerID", evt.CustomerID), slog.Any("error", err))
	}
}
