package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

const (
	updateCustomerQuery = `UPDATE customers
		SET name = $2, phone = $3, email = $4, status = $5, loyalty_points = $6, credit_limit = $7, credit_used = $8, updated_at = $9
		WHERE id = $1`

	deleteCustomerQuery = `DELETE FROM customers WHERE id = $1`

	getOwnCreditQuery = getCreditQuery + ` AND customer_id = $2`

	insertCreditQuery = `INSERT INTO customer_credits (customer_id, principal, amount_paid, due_date, status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	updateCreditQuery = `UPDATE customer_credits
		SET principal = $3, amount_paid = $4, due_date = $5, status = $6, note = $7, updated_at = $8
		WHERE id = $1 AND customer_id = $2`

	deleteCreditQuery = `DELETE FROM customer_credits WHERE id = $1 AND customer_id = $2`

	insertPurchaseQuery = `INSERT INTO purchases (customer_id, amount, credit_used, points_earned, credit_id, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
)

// pgTx runs inside the transaction that holds the customer row lock.
type pgTx struct {
	tx         pgx.Tx
	customerID int64
	store      *Store
}

var _ ledger.Tx = (*pgTx)(nil)

func (t *pgTx) Customer(ctx context.Context) (*ledger.Customer, error) {
	start := time.Now()
	c, err := scanCustomer(t.tx.QueryRow(ctx, getCustomerQuery, t.customerID))
	t.store.observe("TxCustomer", start, err)
	if err != nil {
		return nil, notFoundAs(translateDBError(err), "customer", t.customerID)
	}
	return c, nil
}

func (t *pgTx) PutCustomer(ctx context.Context, c *ledger.Customer) error {
	if c.ID != t.customerID {
		return fmt.Errorf("%w: customer %d is not locked by this transaction", apperrors.ErrInvalidArgument, c.ID)
	}
	start := time.Now()
	tag, err := t.tx.Exec(ctx, updateCustomerQuery, c.ID, c.Name, c.Phone, c.Email, string(c.Status),
		c.LoyaltyPoints, c.CreditLimit, c.CreditUsed, c.UpdatedAt)
	t.store.observe("UpdateCustomer", start, err)
	if err != nil {
		return translateDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("customer", c.ID)
	}
	return nil
}

func (t *pgTx) DeleteCustomer(ctx context.Context) error {
	start := time.Now()
	tag, err := t.tx.Exec(ctx, deleteCustomerQuery, t.customerID)
	t.store.observe("DeleteCustomer", start, err)
	if err != nil {
		return translateDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("customer", t.customerID)
	}
	return nil
}

func (t *pgTx) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	start := time.Now()
	c, err := scanCredit(t.tx.QueryRow(ctx, getOwnCreditQuery, creditID, t.customerID))
	t.store.observe("TxGetCredit", start, err)
	if err != nil {
		return nil, notFoundAs(translateDBError(err), "credit", creditID)
	}
	return c, nil
}

func (t *pgTx) Credits(ctx context.Context) ([]*ledger.Credit, error) {
	start := time.Now()
	credits, err := queryCredits(ctx, t.tx, creditsByCustomerQuery, t.customerID)
	t.store.observe("TxCredits", start, err)
	if err != nil {
		return nil, translateDBError(err)
	}
	return credits, nil
}

func (t *pgTx) PutCredit(ctx context.Context, c *ledger.Credit) error {
	if c.CustomerID != t.customerID {
		return fmt.Errorf("%w: credit belongs to customer %d, not %d", apperrors.ErrInvalidArgument, c.CustomerID, t.customerID)
	}
	if !c.Status.Stored() {
		return fmt.Errorf("%w: credit status %s cannot be stored", apperrors.ErrInvalidArgument, c.Status)
	}

	start := time.Now()
	if c.ID == 0 {
		err := t.tx.QueryRow(ctx, insertCreditQuery, c.CustomerID, c.Principal, c.AmountPaid, c.DueDate,
			string(c.Status), c.Note, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
		t.store.observe("InsertCredit", start, err)
		return translateDBError(err)
	}

	tag, err := t.tx.Exec(ctx, updateCreditQuery, c.ID, c.CustomerID, c.Principal, c.AmountPaid, c.DueDate,
		string(c.Status), c.Note, c.UpdatedAt)
	t.store.observe("UpdateCredit", start, err)
	if err != nil {
		return translateDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("credit", c.ID)
	}
	return nil
}

func (t *pgTx) DeleteCredit(ctx context.Context, creditID int64) error {
	start := time.Now()
	tag, err := t.tx.Exec(ctx, deleteCreditQuery, creditID, t.customerID)
	t.store.observe("DeleteCredit", start, err)
	if err != nil {
		return translateDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFound("credit", creditID)
	}
	return nil
}

func (t *pgTx) InsertPurchase(ctx context.Context, p *ledger.Purchase) error {
	if p.CustomerID != t.customerID {
		return fmt.Errorf("%w: purchase belongs to customer %d, not %d", apperrors.ErrInvalidArgument, p.CustomerID, t.customerID)
	}
	start := time.Now()
	err := t.tx.QueryRow(ctx, insertPurchaseQuery, p.CustomerID, p.Amount, p.CreditUsed, p.PointsEarned,
		p.CreditID, p.PurchasedAt).Scan(&p.ID)
	t.store.observe("InsertPurchase", start, err)
	return translateDBError(err)
}
