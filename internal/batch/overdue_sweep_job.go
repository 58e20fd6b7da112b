package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/config"
	"pos-ledger/internal/domain/credit"
	"pos-ledger/internal/domain/customer"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/event"
	"pos-ledger/internal/infrastructure/monitoring"
	"pos-ledger/internal/pkg/apperrors"
)

const maxConcurrentBlocks = 8

// SweepReport summarises one pass over the overdue credits.
type SweepReport struct {
	AsOf             time.Time
	OverdueCredits   int
	TotalOutstanding decimal.Decimal
	CustomersBlocked int
	Errors           int
}

// OverdueSweepJob announces every overdue credit and optionally blocks
// customers whose oldest overdue credit is past the configured age.
type OverdueSweepJob struct {
	credits   credit.Engine
	customers customer.Service
	pub       event.EventPublisher
	clock     ledger.Clock
	cfg       config.BatchConfig
	logger    *slog.Logger
}

func NewOverdueSweepJob(
	credits credit.Engine,
	customers customer.Service,
	pub event.EventPublisher,
	clock ledger.Clock,
	cfg config.BatchConfig,
	logger *slog.Logger,
) *OverdueSweepJob {
	if credits == nil || customers == nil || pub == nil || logger == nil {
		panic("OverdueSweepJob dependencies cannot be nil")
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &OverdueSweepJob{
		credits:   credits,
		customers: customers,
		pub:       pub,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With("job", "OverdueSweep"),
	}
}

// Run sweeps until a pass reads the overdue set completely, retrying a failed
// walk up to MaxRetries times with a linearly growing backoff.
func (j *OverdueSweepJob) Run(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= j.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * j.cfg.RetryBackoff
			j.logger.WarnContext(ctx, "Retrying overdue sweep.", slog.Int("attempt", attempt), slog.Duration("backoff", wait), slog.Any("error", lastErr))
			select {
			case <-ctx.Done():
				return fmt.Errorf("overdue sweep cancelled while waiting to retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		report, err := j.RunOnce(ctx)
		if err == nil {
			if report.Errors > 0 {
				return fmt.Errorf("overdue sweep completed with %d errors", report.Errors)
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("overdue sweep failed after %d attempts: %w", j.cfg.MaxRetries+1, lastErr)
}

// RunOnce performs a single pass. It fails only when the overdue credits
// cannot be read; per-credit problems are counted in the report.
func (j *OverdueSweepJob) RunOnce(ctx context.Context) (report *SweepReport, err error) {
	startTime := time.Now()
	now := j.clock.Now()
	report = &SweepReport{AsOf: now, TotalOutstanding: decimal.Zero}

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		} else if report.Errors > 0 {
			status = "partial"
		}
		outstanding, _ := report.TotalOutstanding.Float64()
		monitoring.RecordSweep(status, report.OverdueCredits, outstanding, time.Since(startTime))
	}()

	j.logger.InfoContext(ctx, "Starting overdue credit sweep.", slog.Time("as_of", now))

	// read the whole set before publishing so a failed walk announces nothing
	var overdue []ledger.Credit
	for c, walkErr := range j.credits.ListOverdue(ctx, now) {
		if walkErr != nil {
			j.logger.ErrorContext(ctx, "Failed to read overdue credits, aborting pass.", slog.Any("error", walkErr))
			return report, fmt.Errorf("list overdue credits: %w", walkErr)
		}
		overdue = append(overdue, c)
	}

	oldest := make(map[int64]int)
	for i := range overdue {
		c := &overdue[i]
		days := daysOverdue(c.DueDate, now)
		report.OverdueCredits++
		report.TotalOutstanding = report.TotalOutstanding.Add(c.Outstanding())
		if days > oldest[c.CustomerID] {
			oldest[c.CustomerID] = days
		}

		evt := event.CreditOverdueEvent{
			Timestamp:   now,
			DaysOverdue: days,
			Payload:     event.NewCreditEventPayload(c, now),
		}
		if pubErr := j.pub.PublishCreditOverdue(ctx, evt); pubErr != nil {
			j.logger.ErrorContext(ctx, "Failed to publish overdue event",
				slog.Int64("creditID", c.ID), slog.Any("error", pubErr))
			report.Errors++
		}
	}

	if j.cfg.BlockAfterDays > 0 {
		blocked, blockErrs := j.blockCustomers(ctx, oldest)
		report.CustomersBlocked = blocked
		report.Errors += blockErrs
	}

	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("overdue_credits", report.OverdueCredits),
		slog.String("total_outstanding", report.TotalOutstanding.StringFixed(2)),
		slog.Int("customers_with_overdue", len(oldest)),
		slog.Int("customers_blocked", report.CustomersBlocked),
		slog.Int("errors_encountered", report.Errors),
	)
	if report.Errors > 0 {
		summaryLog.WarnContext(ctx, "Overdue sweep finished with errors.")
	} else {
		summaryLog.InfoContext(ctx, "Overdue sweep finished successfully.")
	}
	return report, nil
}

func (j *OverdueSweepJob) blockCustomers(ctx context.Context, oldest map[int64]int) (int, int) {
	ids := make([]int64, 0, len(oldest))
	for id, days := range oldest {
		if days >= j.cfg.BlockAfterDays {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var wg sync.WaitGroup
	var blocked, errorCount atomic.Int32
	sem := make(chan struct{}, maxConcurrentBlocks)

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(customerID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			logCtx := j.logger.With(slog.Int64("customerID", customerID), slog.Int("days_overdue", oldest[customerID]))
			cust, err := j.customers.GetCustomer(ctx, customerID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					logCtx.WarnContext(ctx, "Customer with overdue credit disappeared before blocking.")
					return
				}
				logCtx.ErrorContext(ctx, "Failed to load customer for blocking", slog.Any("error", err))
				errorCount.Add(1)
				return
			}
			if cust.Status == ledger.CustomerBlocked {
				logCtx.DebugContext(ctx, "Customer already blocked.")
				return
			}
			if _, err := j.customers.SetStatus(ctx, customerID, ledger.CustomerBlocked); err != nil {
				logCtx.ErrorContext(ctx, "Failed to block customer", slog.Any("error", err))
				errorCount.Add(1)
				return
			}
			monitoring.RecordCustomerBlocked()
			logCtx.InfoContext(ctx, "Customer blocked for overdue credit.")
			blocked.Add(1)
		}(id)
	}
	wg.Wait()

	return int(blocked.Load()), int(errorCount.Load())
}

// daysOverdue counts whole days past the due date, at least one for any overdue credit.
func daysOverdue(due, now time.Time) int {
	days := int(now.Sub(due) / (24 * time.Hour))
	if days < 1 {
		return 1
	}
	return days
}
