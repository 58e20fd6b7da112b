package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

const errMsgFormat = "%w: %w"

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)
var _ DBPool = (pgxmock.PgxPoolIface)(nil)

// querier is what both the pool and an open transaction can run.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const (
	customerColumns = `id, name, phone, email, status, loyalty_points, credit_limit, credit_used, created_at, updated_at`
	creditColumns   = `id, customer_id, principal, amount_paid, due_date, status, note, created_at, updated_at`

	getCustomerQuery       = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	lockCustomerQuery      = getCustomerQuery + ` FOR UPDATE`
	customersByStatusQuery = `SELECT ` + customerColumns + ` FROM customers WHERE status = $1 ORDER BY id`
	allCustomersQuery      = `SELECT ` + customerColumns + ` FROM customers ORDER BY id`
	getCreditQuery         = `SELECT ` + creditColumns + ` FROM customer_credits WHERE id = $1`
	creditsByStatusQuery   = `SELECT ` + creditColumns + ` FROM customer_credits WHERE status = $1 ORDER BY id`
	allCreditsQuery        = `SELECT ` + creditColumns + ` FROM customer_credits ORDER BY id`
	creditsByCustomerQuery = `SELECT ` + creditColumns + ` FROM customer_credits WHERE customer_id = $1 ORDER BY id`
	customerExistsQuery    = `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`
	loyaltyConfigQuery     = `SELECT points_per_unit, redemption_value, minimum_redemption, updated_at FROM loyalty_config WHERE id = 1`
	lockLoyaltyConfigQuery = loyaltyConfigQuery + ` FOR UPDATE`

	insertCustomerQuery = `INSERT INTO customers (name, phone, email, status, loyalty_points, credit_limit, credit_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	overdueCreditsQuery = `SELECT ` + creditColumns + ` FROM customer_credits
		WHERE status <> 'PAID' AND amount_paid < principal AND due_date < $1 AND (due_date, id) > ($2, $3)
		ORDER BY due_date, id
		LIMIT $4`

	purchaseSummaryQuery = `SELECT c.id, COALESCE(SUM(p.amount), 0), COUNT(p.id), MAX(p.purchased_at)
		FROM customers c LEFT JOIN purchases p ON p.customer_id = c.id
		WHERE c.id = $1
		GROUP BY c.id`

	upsertLoyaltyConfigQuery = `INSERT INTO loyalty_config (id, points_per_unit, redemption_value, minimum_redemption, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			points_per_unit = EXCLUDED.points_per_unit,
			redemption_value = EXCLUDED.redemption_value,
			minimum_redemption = EXCLUDED.minimum_redemption,
			updated_at = EXCLUDED.updated_at`
)

// Store is the PostgreSQL ledger. A customer row lock (SELECT ... FOR UPDATE)
// serialises every WithinTx on the same customer across processes.
type Store struct {
	db     DBPool
	logger *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

func NewStore(db DBPool, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "PostgresStore")),
	}
}

func (s *Store) CreateCustomer(ctx context.Context, c *ledger.Customer) error {
	if c == nil {
		return fmt.Errorf("%w: customer is nil", apperrors.ErrInvalidArgument)
	}
	start := time.Now()
	err := s.db.QueryRow(ctx, insertCustomerQuery,
		c.Name, c.Phone, c.Email, string(c.Status), c.LoyaltyPoints, c.CreditLimit, c.CreditUsed, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	s.observe("CreateCustomer", start, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to insert customer", slog.String("error", err.Error()))
		return translateDBError(err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID int64) (*ledger.Customer, error) {
	start := time.Now()
	c, err := scanCustomer(s.db.QueryRow(ctx, getCustomerQuery, customerID))
	s.observe("GetCustomer", start, err)
	if err != nil {
		return nil, notFoundAs(translateDBError(err), "customer", customerID)
	}
	return c, nil
}

func (s *Store) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	start := time.Now()
	c, err := scanCredit(s.db.QueryRow(ctx, getCreditQuery, creditID))
	s.observe("GetCredit", start, err)
	if err != nil {
		return nil, notFoundAs(translateDBError(err), "credit", creditID)
	}
	return c, nil
}

func (s *Store) CustomersByStatus(ctx context.Context, status ledger.CustomerStatus) ([]*ledger.Customer, error) {
	query, args := allCustomersQuery, []any{}
	if status != "" {
		query, args = customersByStatusQuery, []any{string(status)}
	}
	start := time.Now()
	customers, err := queryCustomers(ctx, s.db, query, args...)
	s.observe("CustomersByStatus", start, err)
	if err != nil {
		return nil, translateDBError(err)
	}
	return customers, nil
}

func (s *Store) CreditsByStatus(ctx context.Context, status ledger.CreditStatus) ([]*ledger.Credit, error) {
	if status != "" && !status.Stored() {
		return nil, fmt.Errorf("%w: credit status %s is never stored", apperrors.ErrInvalidArgument, status)
	}
	query, args := allCreditsQuery, []any{}
	if status != "" {
		query, args = creditsByStatusQuery, []any{string(status)}
	}
	start := time.Now()
	credits, err := queryCredits(ctx, s.db, query, args...)
	s.observe("CreditsByStatus", start, err)
	if err != nil {
		return nil, translateDBError(err)
	}
	return credits, nil
}

func (s *Store) CreditsByCustomer(ctx context.Context, customerID int64) ([]*ledger.Credit, error) {
	start := time.Now()
	var exists bool
	err := s.db.QueryRow(ctx, customerExistsQuery, customerID).Scan(&exists)
	if err == nil && !exists {
		s.observe("CreditsByCustomer", start, nil)
		return nil, ledger.NotFound("customer", customerID)
	}
	var credits []*ledger.Credit
	if err == nil {
		credits, err = queryCredits(ctx, s.db, creditsByCustomerQuery, customerID)
	}
	s.observe("CreditsByCustomer", start, err)
	if err != nil {
		return nil, translateDBError(err)
	}
	return credits, nil
}

func (s *Store) QueryOverdue(ctx context.Context, now time.Time, after ledger.OverdueCursor, limit int) ([]*ledger.Credit, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	start := time.Now()
	credits, err := queryCredits(ctx, s.db, overdueCreditsQuery, now, after.DueDate, after.CreditID, lim)
	s.observe("QueryOverdue", start, err)
	if err != nil {
		return nil, translateDBError(err)
	}
	return credits, nil
}

func (s *Store) PurchaseSummary(ctx context.Context, customerID int64) (ledger.PurchaseSummary, error) {
	var (
		id      int64
		summary ledger.PurchaseSummary
	)
	start := time.Now()
	err := s.db.QueryRow(ctx, purchaseSummaryQuery, customerID).Scan(&id, &summary.Total, &summary.Count, &summary.LastPurchaseAt)
	s.observe("PurchaseSummary", start, err)
	if err != nil {
		return ledger.PurchaseSummary{}, notFoundAs(translateDBError(err), "customer", customerID)
	}
	return summary, nil
}

// LoyaltyConfig returns the zero config when none has been seeded yet.
func (s *Store) LoyaltyConfig(ctx context.Context) (ledger.LoyaltyConfig, error) {
	start := time.Now()
	cfg, err := scanLoyaltyConfig(s.db.QueryRow(ctx, loyaltyConfigQuery))
	s.observe("LoyaltyConfig", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.LoyaltyConfig{}, nil
	}
	if err != nil {
		return ledger.LoyaltyConfig{}, translateDBError(err)
	}
	return cfg, nil
}

func (s *Store) UpdateLoyaltyConfig(ctx context.Context, fn func(current ledger.LoyaltyConfig) (ledger.LoyaltyConfig, error)) (updated ledger.LoyaltyConfig, err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return ledger.LoyaltyConfig{}, err
	}
	defer func() {
		if p := recover(); p != nil {
			s.RollbackTx(ctx, tx)
			panic(p)
		}
		if err != nil {
			s.RollbackTx(ctx, tx)
		}
	}()

	current, err := scanLoyaltyConfig(tx.QueryRow(ctx, lockLoyaltyConfigQuery))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return ledger.LoyaltyConfig{}, translateDBError(err)
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}

	start := time.Now()
	_, err = tx.Exec(ctx, upsertLoyaltyConfigQuery, next.PointsPerUnit, next.RedemptionValue, next.MinimumRedemption, next.UpdatedAt)
	s.observe("UpdateLoyaltyConfig", start, err)
	if err != nil {
		return current, translateDBError(err)
	}
	if err = s.CommitTx(ctx, tx); err != nil {
		return current, err
	}
	return next, nil
}

func (s *Store) WithinTx(ctx context.Context, customerID int64, fn func(ctx context.Context, tx ledger.Tx) error) (err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "Panic inside ledger transaction, rolling back", "customerID", customerID, "panic", p)
			s.RollbackTx(ctx, tx)
			panic(p)
		}
		if err != nil {
			s.RollbackTx(ctx, tx)
		}
	}()

	start := time.Now()
	_, err = scanCustomer(tx.QueryRow(ctx, lockCustomerQuery, customerID))
	s.observe("LockCustomer", start, err)
	if err != nil {
		return notFoundAs(translateDBError(err), "customer", customerID)
	}

	if err = fn(ctx, &pgTx{tx: tx, customerID: customerID, store: s}); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	return s.CommitTx(ctx, tx)
}

func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", slog.String("error", err.Error()))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (s *Store) CommitTx(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", slog.String("error", err.Error()))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

// RollbackTx runs detached from ctx so a cancelled request still releases its locks.
func (s *Store) RollbackTx(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.ErrorContext(ctx, "Failed to rollback transaction", slog.String("error", err.Error()))
	}
}

func scanCustomer(row pgx.Row) (*ledger.Customer, error) {
	var (
		c      ledger.Customer
		status string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &status, &c.LoyaltyPoints,
		&c.CreditLimit, &c.CreditUsed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = ledger.CustomerStatus(status)
	return &c, nil
}

func scanCredit(row pgx.Row) (*ledger.Credit, error) {
	var (
		c      ledger.Credit
		status string
	)
	if err := row.Scan(&c.ID, &c.CustomerID, &c.Principal, &c.AmountPaid, &c.DueDate,
		&status, &c.Note, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = ledger.CreditStatus(status)
	return &c, nil
}

func scanLoyaltyConfig(row pgx.Row) (ledger.LoyaltyConfig, error) {
	var cfg ledger.LoyaltyConfig
	err := row.Scan(&cfg.PointsPerUnit, &cfg.RedemptionValue, &cfg.MinimumRedemption, &cfg.UpdatedAt)
	return cfg, err
}

func queryCustomers(ctx context.Context, q querier, query string, args ...any) ([]*ledger.Customer, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []*ledger.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func queryCredits(ctx context.Context, q querier, query string, args ...any) ([]*ledger.Credit, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := []*ledger.Credit{}
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func notFoundAs(err error, entity string, id int64) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return ledger.NotFound(entity, id)
	}
	return err
}

func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, pgErr.ConstraintName)
		case "23514":
			return fmt.Errorf("%w: check constraint %s", apperrors.ErrConflict, pgErr.ConstraintName)
		default:
			return fmt.Errorf("%w: database error code %s", apperrors.ErrDatabase, pgErr.Code)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
}
