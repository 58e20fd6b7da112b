package ledger

import (
	"context"
	"time"
)

// OverdueCursor marks the last credit of a page; the zero value starts from the beginning.
type OverdueCursor struct {
	DueDate  time.Time
	CreditID int64
}

// After reports whether c sorts strictly after the cursor in (DueDate, ID) order.
func (cur OverdueCursor) After(c *Credit) bool {
	if cur.CreditID == 0 && cur.DueDate.IsZero() {
		return true
	}
	if c.DueDate.Equal(cur.DueDate) {
		return c.ID > cur.CreditID
	}
	return c.DueDate.After(cur.DueDate)
}

type Reader interface {
	GetCustomer(ctx context.Context, customerID int64) (*Customer, error)

	GetCredit(ctx context.Context, creditID int64) (*Credit, error)

	CustomersByStatus(ctx context.Context, status CustomerStatus) ([]*Customer, error)

	// CreditsByStatus filters on the stored status, or returns every credit when status
	// is empty. OVERDUE is answered by QueryOverdue.
	CreditsByStatus(ctx context.Context, status CreditStatus) ([]*Credit, error)

	CreditsByCustomer(ctx context.Context, customerID int64) ([]*Credit, error)

	// QueryOverdue returns at most limit credits overdue at now, ordered by
	// (DueDate, ID) ascending and strictly after the cursor.
	QueryOverdue(ctx context.Context, now time.Time, after OverdueCursor, limit int) ([]*Credit, error)

	PurchaseSummary(ctx context.Context, customerID int64) (PurchaseSummary, error)

	LoyaltyConfig(ctx context.Context) (LoyaltyConfig, error)
}

type Store interface {
	Reader

	// CreateCustomer inserts c and assigns its ID.
	CreateCustomer(ctx context.Context, c *Customer) error

	// UpdateLoyaltyConfig replaces the whole config with the result of fn, atomically.
	UpdateLoyaltyConfig(ctx context.Context, fn func(current LoyaltyConfig) (LoyaltyConfig, error)) (LoyaltyConfig, error)

	// WithinTx locks one customer for the duration of fn. A nil return commits every
	// mutation made through tx; an error, a panic or a cancelled ctx discards all of them.
	WithinTx(ctx context.Context, customerID int64, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is scoped to the customer locked by WithinTx. Credits and purchases of any
// other customer are invisible to it.
type Tx interface {
	Customer(ctx context.Context) (*Customer, error)

	PutCustomer(ctx context.Context, c *Customer) error

	DeleteCustomer(ctx context.Context) error

	GetCredit(ctx context.Context, creditID int64) (*Credit, error)

	Credits(ctx context.Context) ([]*Credit, error)

	// PutCredit inserts when c.ID is zero (assigning the ID) and updates otherwise.
	PutCredit(ctx context.Context, c *Credit) error

	DeleteCredit(ctx context.Context, creditID int64) error

	InsertPurchase(ctx context.Context, p *Purchase) error
}
