package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

type sqliteTx struct {
	tx         *sql.Tx
	customerID int64
}

var _ ledger.Tx = (*sqliteTx)(nil)

func (t *sqliteTx) Customer(ctx context.Context) (*ledger.Customer, error) {
	return getCustomer(ctx, t.tx, t.customerID)
}

func (t *sqliteTx) PutCustomer(ctx context.Context, c *ledger.Customer) error {
	if c.ID != t.customerID {
		return fmt.Errorf("%w: transaction holds customer %d, not %d", apperrors.ErrInvalidArgument, t.customerID, c.ID)
	}
	return t.execOne(ctx, "UpdateCustomer", "customer", c.ID,
		`UPDATE customers
		SET name = ?, phone = ?, email = ?, status = ?, loyalty_points = ?, credit_limit = ?, credit_used = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Phone, c.Email, string(c.Status), c.LoyaltyPoints, c.CreditLimit, c.CreditUsed, utc(c.UpdatedAt), c.ID)
}

func (t *sqliteTx) DeleteCustomer(ctx context.Context) error {
	return t.execOne(ctx, "DeleteCustomer", "customer", t.customerID,
		`DELETE FROM customers WHERE id = ?`, t.customerID)
}

func (t *sqliteTx) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	start := time.Now()
	c, err := scanCredit(t.tx.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM customer_credits WHERE id = ? AND customer_id = ?`, creditID, t.customerID))
	observe("TxGetCredit", start, err)
	if err != nil {
		return nil, notFoundAs(err, "credit", creditID)
	}
	return c, nil
}

func (t *sqliteTx) Credits(ctx context.Context) ([]*ledger.Credit, error) {
	return queryCredits(ctx, t.tx, "TxCredits",
		`SELECT `+creditColumns+` FROM customer_credits WHERE customer_id = ? ORDER BY id`, t.customerID)
}

func (t *sqliteTx) PutCredit(ctx context.Context, c *ledger.Credit) error {
	if c.CustomerID != t.customerID {
		return fmt.Errorf("%w: credit belongs to customer %d, transaction holds %d", apperrors.ErrInvalidArgument, c.CustomerID, t.customerID)
	}
	if !c.Status.Stored() {
		return fmt.Errorf("%w: credit status %s cannot be stored", apperrors.ErrInvalidArgument, c.Status)
	}
	if c.ID != 0 {
		return t.execOne(ctx, "UpdateCredit", "credit", c.ID,
			`UPDATE customer_credits
			SET principal = ?, amount_paid = ?, due_date = ?, status = ?, note = ?, updated_at = ?
			WHERE id = ? AND customer_id = ?`,
			c.Principal, c.AmountPaid, utc(c.DueDate), string(c.Status), c.Note, utc(c.UpdatedAt), c.ID, c.CustomerID)
	}

	start := time.Now()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO customer_credits (customer_id, principal, amount_paid, due_date, status, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CustomerID, c.Principal, c.AmountPaid, utc(c.DueDate), string(c.Status), c.Note, utc(c.CreatedAt), utc(c.UpdatedAt))
	if err == nil {
		c.ID, err = res.LastInsertId()
	}
	observe("InsertCredit", start, err)
	return translateDBError(err)
}

func (t *sqliteTx) DeleteCredit(ctx context.Context, creditID int64) error {
	return t.execOne(ctx, "DeleteCredit", "credit", creditID,
		`DELETE FROM customer_credits WHERE id = ? AND customer_id = ?`, creditID, t.customerID)
}

func (t *sqliteTx) InsertPurchase(ctx context.Context, p *ledger.Purchase) error {
	if p.CustomerID != t.customerID {
		return fmt.Errorf("%w: purchase belongs to customer %d, transaction holds %d", apperrors.ErrInvalidArgument, p.CustomerID, t.customerID)
	}
	start := time.Now()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO purchases (customer_id, amount, credit_used, points_earned, credit_id, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.CustomerID, p.Amount, p.CreditUsed, p.PointsEarned, p.CreditID, utc(p.PurchasedAt))
	if err == nil {
		p.ID, err = res.LastInsertId()
	}
	observe("InsertPurchase", start, err)
	return translateDBError(err)
}

// execOne runs a statement that must touch exactly one row of entity id.
func (t *sqliteTx) execOne(ctx context.Context, name, entity string, id int64, query string, args ...any) error {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, query, args...)
	var n int64
	if err == nil {
		n, err = res.RowsAffected()
	}
	observe(name, start, err)
	if err != nil {
		return translateDBError(err)
	}
	if n == 0 {
		return ledger.NotFound(entity, id)
	}
	return nil
}
