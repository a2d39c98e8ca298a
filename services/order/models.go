package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. Only this service mutates them: pending at creation,
// confirmed/failed once the payment result events arrive.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusFailed    = "failed"
)

type Order struct {
	ID                   int64
	UserID               int64
	UserEmail            string
	Status               string
	TotalAmount          decimal.Decimal
	Items                []OrderItem
	ProcessingDurationMs int64
	CreatedUnix          int64
	UpdatedUnix          int64
}

// OrderItem is an immutable snapshot of a line at order time. Price is the
// unit price the caller submitted; it is never re-read from a catalog.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int64
	Price     decimal.Decimal
}

func nowUnix() int64 { return time.Now().Unix() }
