// Package sqlite is the embedded ledger store for a single terminal. Decimal
// columns are TEXT so no amount ever passes through a float.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/infrastructure/monitoring"
	"pos-ledger/internal/pkg/apperrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id             INTEGER  PRIMARY KEY AUTOINCREMENT,
	name           TEXT     NOT NULL,
	phone          TEXT     NOT NULL DEFAULT '',
	email          TEXT     NOT NULL DEFAULT '',
	status         TEXT     NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE', 'BLOCKED')),
	loyalty_points INTEGER  NOT NULL DEFAULT 0 CHECK (loyalty_points >= 0),
	credit_limit   TEXT     NOT NULL,
	credit_used    TEXT     NOT NULL DEFAULT '0',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS customer_credits (
	id          INTEGER  PRIMARY KEY AUTOINCREMENT,
	customer_id INTEGER  NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
	principal   TEXT     NOT NULL,
	amount_paid TEXT     NOT NULL DEFAULT '0',
	due_date    DATETIME NOT NULL,
	status      TEXT     NOT NULL CHECK (status IN ('OPEN', 'PARTIALLY_PAID', 'PAID')),
	note        TEXT     NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_customer_credits_customer ON customer_credits (customer_id);
CREATE INDEX IF NOT EXISTS idx_customer_credits_due ON customer_credits (status, due_date, id);
CREATE TABLE IF NOT EXISTS purchases (
	id            INTEGER  PRIMARY KEY AUTOINCREMENT,
	customer_id   INTEGER  NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
	amount        TEXT     NOT NULL,
	credit_used   TEXT     NOT NULL DEFAULT '0',
	points_earned INTEGER  NOT NULL DEFAULT 0,
	credit_id     INTEGER  REFERENCES customer_credits (id) ON DELETE SET NULL,
	purchased_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_purchases_customer ON purchases (customer_id);
CREATE TABLE IF NOT EXISTS loyalty_config (
	id                 INTEGER  PRIMARY KEY CHECK (id = 1),
	points_per_unit    TEXT     NOT NULL,
	redemption_value   TEXT     NOT NULL,
	minimum_redemption INTEGER  NOT NULL,
	updated_at         DATETIME NOT NULL
);
`

const (
	customerColumns = `id, name, phone, email, status, loyalty_points, credit_limit, credit_used, created_at, updated_at`
	creditColumns   = `id, customer_id, principal, amount_paid, due_date, status, note, created_at, updated_at`
	loyaltyColumns  = `points_per_unit, redemption_value, minimum_redemption, updated_at`
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store serialises writers through SQLite's own write lock: every
// transaction starts with BEGIN IMMEDIATE.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite database path is empty", apperrors.ErrInvalidArgument)
	}
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &Store{db: db, logger: logger.With(slog.String("component", "SQLiteStore"))}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	s.logger.InfoContext(ctx, "SQLite ledger opened and schema initialized", "path", path)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SeedLoyaltyConfig stores cfg unless a loyalty config row already exists.
func (s *Store) SeedLoyaltyConfig(ctx context.Context, cfg ledger.LoyaltyConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO loyalty_config (id, `+loyaltyColumns+`) VALUES (1, ?, ?, ?, ?)`,
		cfg.PointsPerUnit, cfg.RedemptionValue, cfg.MinimumRedemption, utc(cfg.UpdatedAt))
	observe("SeedLoyaltyConfig", start, err)
	return translateDBError(err)
}

func (s *Store) CreateCustomer(ctx context.Context, c *ledger.Customer) error {
	if c == nil {
		return fmt.Errorf("%w: customer is nil", apperrors.ErrInvalidArgument)
	}
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (name, phone, email, status, loyalty_points, credit_limit, credit_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Phone, c.Email, string(c.Status), c.LoyaltyPoints, c.CreditLimit, c.CreditUsed, utc(c.CreatedAt), utc(c.UpdatedAt))
	if err == nil {
		c.ID, err = res.LastInsertId()
	}
	observe("CreateCustomer", start, err)
	return translateDBError(err)
}

func (s *Store) GetCustomer(ctx context.Context, customerID int64) (*ledger.Customer, error) {
	return getCustomer(ctx, s.db, customerID)
}

func (s *Store) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	start := time.Now()
	c, err := scanCredit(s.db.QueryRowContext(ctx, `SELECT `+creditColumns+` FROM customer_credits WHERE id = ?`, creditID))
	observe("GetCredit", start, err)
	if err != nil {
		return nil, notFoundAs(err, "credit", creditID)
	}
	return c, nil
}

func (s *Store) CustomersByStatus(ctx context.Context, status ledger.CustomerStatus) ([]*ledger.Customer, error) {
	query, args := `SELECT `+customerColumns+` FROM customers ORDER BY id`, []any{}
	if status != "" {
		query, args = `SELECT `+customerColumns+` FROM customers WHERE status = ? ORDER BY id`, []any{string(status)}
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		observe("CustomersByStatus", start, err)
		return nil, translateDBError(err)
	}
	defer rows.Close()

	customers := []*ledger.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			observe("CustomersByStatus", start, err)
			return nil, translateDBError(err)
		}
		customers = append(customers, c)
	}
	err = rows.Err()
	observe("CustomersByStatus", start, err)
	return customers, translateDBError(err)
}

func (s *Store) CreditsByStatus(ctx context.Context, status ledger.CreditStatus) ([]*ledger.Credit, error) {
	if status != "" && !status.Stored() {
		return nil, fmt.Errorf("%w: credit status %s is never stored", apperrors.ErrInvalidArgument, status)
	}
	query, args := `SELECT `+creditColumns+` FROM customer_credits ORDER BY id`, []any{}
	if status != "" {
		query, args = `SELECT `+creditColumns+` FROM customer_credits WHERE status = ? ORDER BY id`, []any{string(status)}
	}
	return queryCredits(ctx, s.db, "CreditsByStatus", query, args...)
}

func (s *Store) CreditsByCustomer(ctx context.Context, customerID int64) ([]*ledger.Credit, error) {
	if _, err := getCustomer(ctx, s.db, customerID); err != nil {
		return nil, err
	}
	return queryCredits(ctx, s.db, "CreditsByCustomer",
		`SELECT `+creditColumns+` FROM customer_credits WHERE customer_id = ? ORDER BY id`, customerID)
}

// QueryOverdue relies on stored status: a credit is PAID exactly when it is settled.
func (s *Store) QueryOverdue(ctx context.Context, now time.Time, after ledger.OverdueCursor, limit int) ([]*ledger.Credit, error) {
	if limit <= 0 {
		limit = -1
	}
	due := utc(after.DueDate)
	return queryCredits(ctx, s.db, "QueryOverdue",
		`SELECT `+creditColumns+` FROM customer_credits
		WHERE status <> 'PAID' AND due_date < ? AND (due_date > ? OR (due_date = ? AND id > ?))
		ORDER BY due_date, id
		LIMIT ?`,
		utc(now), due, due, after.CreditID, limit)
}

// PurchaseSummary totals in Go; SQLite would sum TEXT amounts as floats.
func (s *Store) PurchaseSummary(ctx context.Context, customerID int64) (ledger.PurchaseSummary, error) {
	if _, err := getCustomer(ctx, s.db, customerID); err != nil {
		return ledger.PurchaseSummary{}, err
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT amount, purchased_at FROM purchases WHERE customer_id = ?`, customerID)
	if err != nil {
		observe("PurchaseSummary", start, err)
		return ledger.PurchaseSummary{}, translateDBError(err)
	}
	defer rows.Close()

	summary := ledger.PurchaseSummary{Total: decimal.Zero}
	for rows.Next() {
		var (
			amount decimal.Decimal
			at     time.Time
		)
		if err := rows.Scan(&amount, &at); err != nil {
			observe("PurchaseSummary", start, err)
			return ledger.PurchaseSummary{}, translateDBError(err)
		}
		summary.Total = summary.Total.Add(amount)
		summary.Count++
		if summary.LastPurchaseAt == nil || at.After(*summary.LastPurchaseAt) {
			summary.LastPurchaseAt = &at
		}
	}
	err = rows.Err()
	observe("PurchaseSummary", start, err)
	return summary, translateDBError(err)
}

func (s *Store) LoyaltyConfig(ctx context.Context) (ledger.LoyaltyConfig, error) {
	start := time.Now()
	cfg, err := scanLoyaltyConfig(s.db.QueryRowContext(ctx, `SELECT `+loyaltyColumns+` FROM loyalty_config WHERE id = 1`))
	observe("LoyaltyConfig", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.LoyaltyConfig{}, nil
	}
	return cfg, translateDBError(err)
}

func (s *Store) UpdateLoyaltyConfig(ctx context.Context, fn func(current ledger.LoyaltyConfig) (ledger.LoyaltyConfig, error)) (ledger.LoyaltyConfig, error) {
	var next ledger.LoyaltyConfig
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanLoyaltyConfig(tx.QueryRowContext(ctx, `SELECT `+loyaltyColumns+` FROM loyalty_config WHERE id = 1`))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return translateDBError(err)
		}
		if next, err = fn(current); err != nil {
			return err
		}
		start := time.Now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO loyalty_config (id, `+loyaltyColumns+`) VALUES (1, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				points_per_unit = excluded.points_per_unit,
				redemption_value = excluded.redemption_value,
				minimum_redemption = excluded.minimum_redemption,
				updated_at = excluded.updated_at`,
			next.PointsPerUnit, next.RedemptionValue, next.MinimumRedemption, utc(next.UpdatedAt))
		observe("UpdateLoyaltyConfig", start, err)
		return translateDBError(err)
	})
	if err != nil {
		return ledger.LoyaltyConfig{}, err
	}
	return next, nil
}

func (s *Store) WithinTx(ctx context.Context, customerID int64, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		if err := fn(ctx, &sqliteTx{tx: tx, customerID: customerID}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// inTx commits only when fn returns nil; an error or a panic rolls back.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
	}
	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "Panic inside ledger transaction, rolling back", "panic", p)
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.ErrorContext(ctx, "Failed to rollback transaction", slog.String("error", rbErr.Error()))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getCustomer(ctx context.Context, q queryer, customerID int64) (*ledger.Customer, error) {
	start := time.Now()
	c, err := scanCustomer(q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, customerID))
	observe("GetCustomer", start, err)
	if err != nil {
		return nil, notFoundAs(err, "customer", customerID)
	}
	return c, nil
}

func scanCustomer(row rowScanner) (*ledger.Customer, error) {
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

func scanCredit(row rowScanner) (*ledger.Credit, error) {
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

func scanLoyaltyConfig(row rowScanner) (ledger.LoyaltyConfig, error) {
	var cfg ledger.LoyaltyConfig
	err := row.Scan(&cfg.PointsPerUnit, &cfg.RedemptionValue, &cfg.MinimumRedemption, &cfg.UpdatedAt)
	return cfg, err
}

func queryCredits(ctx context.Context, q queryer, name, query string, args ...any) ([]*ledger.Credit, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		observe(name, start, err)
		return nil, translateDBError(err)
	}
	defer rows.Close()

	credits := []*ledger.Credit{}
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			observe(name, start, err)
			return nil, translateDBError(err)
		}
		credits = append(credits, c)
	}
	err = rows.Err()
	observe(name, start, err)
	if err != nil {
		return nil, translateDBError(err)
	}
	return credits, nil
}

// utc keeps DATETIME text in one zone so lexical order is time order.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func observe(query string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	monitoring.RecordDBQuery("sqlite."+query, status, time.Since(start))
}

func notFoundAs(err error, entity string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NotFound(entity, id)
	}
	return translateDBError(err)
}

func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, sqliteErr.Error())
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, sqliteErr.Error())
		}
		return fmt.Errorf("%w: sqlite error code %d", apperrors.ErrDatabase, sqliteErr.Code)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
}
