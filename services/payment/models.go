package main

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment is this service's own record of a charge attempt. OrderID is a
// reference by value only; there is no join back to the order store.
type Payment struct {
	ID            int64
	OrderID       int64
	UserID        int64
	Amount        decimal.Decimal
	Status        string
	TransactionID string
	// EventID of the order.created event that produced this row. Unique,
	// so a redelivered event cannot create a second payment.
	EventID     string
	CreatedUnix int64
	UpdatedUnix int64
}

func nowUnix() int64 { return time.Now().Unix() }
