package batch_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/batch"
	"pos-ledger/internal/config"
	"pos-ledger/internal/domain/credit"
	"pos-ledger/internal/domain/customer"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/domain/loyalty"
	"pos-ledger/internal/event"
	"pos-ledger/internal/event/eventtest"
	"pos-ledger/internal/infrastructure/database/memory"
)

var (
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	now    = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	store     *memory.Store
	pub       *eventtest.MockEventPublisher
	credits   credit.Engine
	customers customer.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(ledger.LoyaltyConfig{PointsPerUnit: decimal.NewFromInt(1)}, logger),
		pub:   eventtest.NewPermissive(),
	}
	clock := ledger.FixedClock(now)
	f.credits = credit.NewEngine(f.store, clock, f.pub, logger)
	points := loyalty.NewEngine(f.store, nil, clock, f.pub, logger)
	f.customers = customer.NewService(f.store, f.credits, points, f.pub, clock, 30, logger)
	return f
}

func (f *fixture) customerWithCredit(t *testing.T, name string, principal string, due time.Time) *ledger.Customer {
	t.Helper()
	ctx := context.Background()
	c, err := f.customers.CreateCustomer(ctx, customer.NewCustomer{Name: name, CreditLimit: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	_, err = f.credits.CreateCredit(ctx, c.ID, decimal.RequireFromString(principal), due)
	require.NoError(t, err)
	return c
}

func TestOverdueSweepJob_RunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	late := f.customerWithCredit(t, "Late", "100", now.AddDate(0, 0, -40))
	recent := f.customerWithCredit(t, "Recent", "50.25", now.AddDate(0, 0, -3))
	current := f.customerWithCredit(t, "Current", "75", now.AddDate(0, 0, 5))

	var overdueEvents []event.CreditOverdueEvent
	pub := new(eventtest.MockEventPublisher)
	pub.On("PublishCreditOverdue", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		overdueEvents = append(overdueEvents, args.Get(1).(event.CreditOverdueEvent))
	}).Return(nil)
	pub.On("PublishCustomerUpdated", mock.Anything, mock.Anything).Return(nil).Maybe()

	job := batch.NewOverdueSweepJob(f.credits, f.customers, pub, ledger.FixedClock(now),
		config.BatchConfig{BlockAfterDays: 30}, logger)

	report, err := job.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.OverdueCredits)
	assert.Equal(t, "150.25", report.TotalOutstanding.StringFixed(2))
	assert.Equal(t, 1, report.CustomersBlocked)
	assert.Zero(t, report.Errors)

	require.Len(t, overdueEvents, 2)
	assert.Equal(t, late.ID, overdueEvents[0].Payload.CustomerID)
	assert.Equal(t, 40, overdueEvents[0].DaysOverdue)
	assert.Equal(t, "OVERDUE", overdueEvents[0].Payload.Status)
	assert.Equal(t, recent.ID, overdueEvents[1].Payload.CustomerID)
	assert.Equal(t, 3, overdueEvents[1].DaysOverdue)

	got, err := f.customers.GetCustomer(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CustomerBlocked, got.Status)
	for _, id := range []int64{recent.ID, current.ID} {
		got, err := f.customers.GetCustomer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.CustomerActive, got.Status)
	}

	t.Run("already blocked customers are left alone", func(t *testing.T) {
		report, err := job.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, report.CustomersBlocked)
	})
}

func TestOverdueSweepJob_BlockingDisabled(t *testing.T) {
	f := newFixture(t)
	late := f.customerWithCredit(t, "Late", "10", now.AddDate(0, -6, 0))

	job := batch.NewOverdueSweepJob(f.credits, f.customers, f.pub, ledger.FixedClock(now), config.BatchConfig{}, logger)
	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.OverdueCredits)
	assert.Equal(t, 0, report.CustomersBlocked)

	got, err := f.customers.GetCustomer(context.Background(), late.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CustomerActive, got.Status)
}

func TestOverdueSweepJob_PublishFailureIsCounted(t *testing.T) {
	f := newFixture(t)
	f.customerWithCredit(t, "Late", "10", now.AddDate(0, 0, -2))

	pub := new(eventtest.MockEventPublisher)
	pub.On("PublishCreditOverdue", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	job := batch.NewOverdueSweepJob(f.credits, f.customers, pub, ledger.FixedClock(now), config.BatchConfig{}, logger)
	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)

	assert.EqualError(t, job.Run(context.Background()), "overdue sweep completed with 1 errors")
}

// flakyEngine fails the overdue walk a fixed number of times.
type flakyEngine struct {
	credit.Engine
	failures int
	calls    int
}

func (e *flakyEngine) ListOverdue(ctx context.Context, at time.Time) iter.Seq2[ledger.Credit, error] {
	e.calls++
	if e.calls <= e.failures {
		return func(yield func(ledger.Credit, error) bool) {
			yield(ledger.Credit{}, errors.New("connection reset"))
		}
	}
	return e.Engine.ListOverdue(ctx, at)
}

// brokenWalkEngine yields the first overdue credit and then fails, once.
type brokenWalkEngine struct {
	credit.Engine
	calls int
}

func (e *brokenWalkEngine) ListOverdue(ctx context.Context, at time.Time) iter.Seq2[ledger.Credit, error] {
	e.calls++
	if e.calls > 1 {
		return e.Engine.ListOverdue(ctx, at)
	}
	return func(yield func(ledger.Credit, error) bool) {
		for c, err := range e.Engine.ListOverdue(ctx, at) {
			if !yield(c, err) {
				return
			}
			break
		}
		yield(ledger.Credit{}, errors.New("connection reset"))
	}
}

func TestOverdueSweepJob_RetryAnnouncesEachCreditOnce(t *testing.T) {
	f := newFixture(t)
	first := f.customerWithCredit(t, "First", "10", now.AddDate(0, 0, -9))
	second := f.customerWithCredit(t, "Second", "20", now.AddDate(0, 0, -4))
	engine := &brokenWalkEngine{Engine: f.credits}

	var announced []int64
	pub := new(eventtest.MockEventPublisher)
	pub.On("PublishCreditOverdue", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		announced = append(announced, args.Get(1).(event.CreditOverdueEvent).Payload.CustomerID)
	}).Return(nil)

	job := batch.NewOverdueSweepJob(engine, f.customers, pub, ledger.FixedClock(now),
		config.BatchConfig{MaxRetries: 1, RetryBackoff: time.Millisecond}, logger)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, engine.calls)
	assert.Equal(t, []int64{first.ID, second.ID}, announced)
}

func TestOverdueSweepJob_Run_Retries(t *testing.T) {
	t.Run("recovers within the retry budget", func(t *testing.T) {
		f := newFixture(t)
		f.customerWithCredit(t, "Late", "10", now.AddDate(0, 0, -2))
		engine := &flakyEngine{Engine: f.credits, failures: 2}

		job := batch.NewOverdueSweepJob(engine, f.customers, f.pub, ledger.FixedClock(now),
			config.BatchConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, logger)

		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, 3, engine.calls)
	})

	t.Run("gives up after the last retry", func(t *testing.T) {
		f := newFixture(t)
		engine := &flakyEngine{Engine: f.credits, failures: 10}

		job := batch.NewOverdueSweepJob(engine, f.customers, f.pub, ledger.FixedClock(now),
			config.BatchConfig{MaxRetries: 1, RetryBackoff: time.Millisecond}, logger)

		err := job.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed after 2 attempts")
		assert.Equal(t, 2, engine.calls)
	})

	t.Run("stops waiting when cancelled", func(t *testing.T) {
		f := newFixture(t)
		engine := &flakyEngine{Engine: f.credits, failures: 10}

		job := batch.NewOverdueSweepJob(engine, f.customers, f.pub, ledger.FixedClock(now),
			config.BatchConfig{MaxRetries: 5, RetryBackoff: time.Hour}, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := job.Run(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, engine.calls)
	})
}

func TestNewOverdueSweepJob_PanicsOnNilDependencies(t *testing.T) {
	assert.Panics(t, func() {
		batch.NewOverdueSweepJob(nil, nil, nil, nil, config.BatchConfig{}, logger)
	})
}
