package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "ACTIVE"
	CustomerInactive CustomerStatus = "INACTIVE"
	CustomerBlocked  CustomerStatus = "BLOCKED"
)

func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerActive, CustomerInactive, CustomerBlocked:
		return true
	}
	return false
}

func ParseCustomerStatus(raw string) (CustomerStatus, error) {
	s := CustomerStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown customer status %q", raw)
	}
	return s, nil
}

type Customer struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone"`
	Email         string          `json:"email"`
	Status        CustomerStatus  `json:"status"`
	LoyaltyPoints int64           `json:"loyaltyPoints"`
	CreditLimit   decimal.Decimal `json:"creditLimit"`
	CreditUsed    decimal.Decimal `json:"creditUsed"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func NewCustomer(name, phone, email string, creditLimit decimal.Decimal, now time.Time) *Customer {
	return &Customer{
		Name:        name,
		Phone:       phone,
		Email:       email,
		Status:      CustomerActive,
		CreditLimit: creditLimit,
		CreditUsed:  decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (c *Customer) IsActive() bool {
	return c.Status == CustomerActive
}

func (c *Customer) AvailableCredit() decimal.Decimal {
	return c.CreditLimit.Sub(c.CreditUsed)
}

// ChargeCredit moves amount onto the used credit line, keeping CreditUsed <= CreditLimit.
func (c *Customer) ChargeCredit(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return Reject(ErrInvalidAmount, "credit amount %s must be positive", amount)
	}
	if c.CreditUsed.Add(amount).GreaterThan(c.CreditLimit) {
		return Reject(ErrLimitExceeded, "customer %d: credit used %s + %s exceeds limit %s",
			c.ID, c.CreditUsed.StringFixed(2), amount.StringFixed(2), c.CreditLimit.StringFixed(2))
	}
	c.CreditUsed = c.CreditUsed.Add(amount)
	c.UpdatedAt = now
	return nil
}

// ReleaseCredit gives amount back to the credit line. CreditUsed never drops below zero.
func (c *Customer) ReleaseCredit(amount decimal.Decimal, now time.Time) {
	c.CreditUsed = decimal.Max(c.CreditUsed.Sub(amount), decimal.Zero)
	c.UpdatedAt = now
}

func (c *Customer) AddPoints(points int64, now time.Time) {
	if points <= 0 {
		return
	}
	c.LoyaltyPoints += points
	c.UpdatedAt = now
}

func (c *Customer) DeductPoints(points int64, now time.Time) error {
	if points > c.LoyaltyPoints {
		return Reject(ErrInsufficientPoints, "customer %d: requested %d points, balance is %d", c.ID, points, c.LoyaltyPoints)
	}
	c.LoyaltyPoints -= points
	c.UpdatedAt = now
	return nil
}

// SetCreditLimit refuses a limit that the outstanding credit already exceeds.
func (c *Customer) SetCreditLimit(limit decimal.Decimal, now time.Time) error {
	if limit.IsNegative() {
		return Reject(ErrInvalidAmount, "credit limit %s cannot be negative", limit)
	}
	if c.CreditUsed.GreaterThan(limit) {
		return Reject(ErrLimitExceeded, "customer %d: new limit %s is below credit in use %s",
			c.ID, limit.StringFixed(2), c.CreditUsed.StringFixed(2))
	}
	c.CreditLimit = limit
	c.UpdatedAt = now
	return nil
}

func (c *Customer) SetStatus(status CustomerStatus, now time.Time) {
	if c.Status != status {
		c.Status = status
		c.UpdatedAt = now
	}
}
