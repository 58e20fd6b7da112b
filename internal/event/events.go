package event

import (
	"context"
	"time"

	"pos-ledger/internal/domain/ledger"
)

const (
	RoutingKeyCustomerCreated = "customer.created"
	RoutingKeyCustomerUpdated = "customer.updated"
	RoutingKeyCreditIssued    = "credit.issued"
	RoutingKeyCreditPayment   = "credit.payment"
	RoutingKeyCreditOverdue   = "credit.overdue"
	RoutingKeyCreditCancelled = "credit.cancelled"
	RoutingKeyPointsChanged   = "loyalty.points.changed"
)

// EventPublisher announces committed ledger changes. Publishing happens after the
// store transaction, so a failed publish never rolls a change back.
type EventPublisher interface {
	PublishCustomerCreated(ctx context.Context, event CustomerCreatedEvent) error
	PublishCustomerUpdated(ctx context.Context, event CustomerUpdatedEvent) error
	PublishCreditIssued(ctx context.Context, event CreditIssuedEvent) error
	PublishCreditPayment(ctx context.Context, event CreditPaymentEvent) error
	PublishCreditOverdue(ctx context.Context, event CreditOverdueEvent) error
	PublishCreditCancelled(ctx context.Context, event CreditCancelledEvent) error
	PublishPointsChanged(ctx context.Context, event PointsChangedEvent) error
}

type CustomerEventPayload struct {
	CustomerID    int64     `json:"customerId"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	Status        string    `json:"status"`
	CreditLimit   string    `json:"creditLimit"`
	CreditUsed    string    `json:"creditUsed"`
	LoyaltyPoints int64     `json:"loyaltyPoints"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func NewCustomerEventPayload(c *ledger.Customer) CustomerEventPayload {
	return CustomerEventPayload{
		CustomerID:    c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Email:         c.Email,
		Status:        string(c.Status),
		CreditLimit:   c.CreditLimit.StringFixed(2),
		CreditUsed:    c.CreditUsed.StringFixed(2),
		LoyaltyPoints: c.LoyaltyPoints,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type CustomerCreatedEvent struct {
	Timestamp time.Time            `json:"timestamp"`
	Payload   CustomerEventPayload `json:"payload"`
}

type CustomerUpdatedEvent struct {
	Timestamp time.Time            `json:"timestamp"`
	Reason    string               `json:"reason"`
	Payload   CustomerEventPayload `json:"payload"`
}

type CreditEventPayload struct {
	CreditID    int64     `json:"creditId"`
	CustomerID  int64     `json:"customerId"`
	Principal   string    `json:"principal"`
	AmountPaid  string    `json:"amountPaid"`
	Outstanding string    `json:"outstanding"`
	Status      string    `json:"status"`
	DueDate     time.Time `json:"dueDate"`
}

// NewCreditEventPayload reports the status as computed at now.
func NewCreditEventPayload(c *ledger.Credit, now time.Time) CreditEventPayload {
	return CreditEventPayload{
		CreditID:    c.ID,
		CustomerID:  c.CustomerID,
		Principal:   c.Principal.StringFixed(2),
		AmountPaid:  c.AmountPaid.StringFixed(2),
		Outstanding: c.Outstanding().StringFixed(2),
		Status:      string(c.StatusAt(now)),
		DueDate:     c.DueDate,
	}
}

type CreditIssuedEvent struct {
	Timestamp time.Time          `json:"timestamp"`
	Payload   CreditEventPayload `json:"payload"`
}

type CreditPaymentEvent struct {
	Timestamp time.Time          `json:"timestamp"`
	Amount    string             `json:"amount"`
	Payload   CreditEventPayload `json:"payload"`
}

type CreditOverdueEvent struct {
	Timestamp   time.Time          `json:"timestamp"`
	DaysOverdue int                `json:"daysOverdue"`
	Payload     CreditEventPayload `json:"payload"`
}

type CreditCancelledEvent struct {
	Timestamp time.Time          `json:"timestamp"`
	Payload   CreditEventPayload `json:"payload"`
}

type PointsChangedEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	CustomerID int64     `json:"customerId"`
	Delta      int64     `json:"delta"`
	Balance    int64     `json:"balance"`
	Reason     string    `json:"reason"`
	Value      string    `json:"value,omitempty"`
}
