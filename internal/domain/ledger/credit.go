package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CreditStatus string

const (
	CreditOpen          CreditStatus = "OPEN"
	CreditPartiallyPaid CreditStatus = "PARTIALLY_PAID"
	CreditPaid          CreditStatus = "PAID"
	// CreditOverdue is derived from the clock on read and never stored.
	CreditOverdue CreditStatus = "OVERDUE"
)

func (s CreditStatus) Valid() bool {
	switch s {
	case CreditOpen, CreditPartiallyPaid, CreditPaid, CreditOverdue:
		return true
	}
	return false
}

// Stored reports whether s may be persisted.
func (s CreditStatus) Stored() bool {
	return s.Valid() && s != CreditOverdue
}

func ParseCreditStatus(raw string) (CreditStatus, error) {
	s := CreditStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown credit status %q", raw)
	}
	return s, nil
}

type Credit struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customerId"`
	Principal  decimal.Decimal `json:"principal"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	DueDate    time.Time       `json:"dueDate"`
	Status     CreditStatus    `json:"status"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func NewCredit(customerID int64, principal decimal.Decimal, dueDate, now time.Time) *Credit {
	return &Credit{
		CustomerID: customerID,
		Principal:  principal,
		AmountPaid: decimal.Zero,
		DueDate:    dueDate,
		Status:     CreditOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (c *Credit) Outstanding() decimal.Decimal {
	return c.Principal.Sub(c.AmountPaid)
}

func (c *Credit) Settled() bool {
	return !c.AmountPaid.LessThan(c.Principal)
}

// IsOverdue is a strict comparison against the due date; there is no grace period.
func (c *Credit) IsOverdue(now time.Time) bool {
	return now.After(c.DueDate) && c.AmountPaid.LessThan(c.Principal)
}

// StatusAt returns the stored status, or OVERDUE when the credit is overdue at now.
func (c *Credit) StatusAt(now time.Time) CreditStatus {
	if c.IsOverdue(now) {
		return CreditOverdue
	}
	return c.storedStatus()
}

func (c *Credit) storedStatus() CreditStatus {
	switch {
	case c.Settled():
		return CreditPaid
	case c.AmountPaid.IsPositive():
		return CreditPartiallyPaid
	default:
		return CreditOpen
	}
}

// ApplyPayment records amount against the credit and recomputes the stored status.
func (c *Credit) ApplyPayment(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return Reject(ErrInvalidAmount, "payment amount %s must be positive", amount)
	}
	if c.AmountPaid.Add(amount).GreaterThan(c.Principal) {
		return Reject(ErrOverpayment, "credit %d: payment %s exceeds outstanding %s",
			c.ID, amount.StringFixed(2), c.Outstanding().StringFixed(2))
	}
	c.AmountPaid = c.AmountPaid.Add(amount)
	c.Status = c.storedStatus()
	c.UpdatedAt = now
	return nil
}

// View returns a copy whose Status is the one observed at now.
func (c *Credit) View(now time.Time) Credit {
	v := *c
	v.Status = c.StatusAt(now)
	return v
}
