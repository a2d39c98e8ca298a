// Package events holds the contracts shared by the checkout pipeline
// services. Events are the only way the services talk to each other:
// payloads carry everything a downstream consumer needs (including the
// buyer's email), so no service ever calls another synchronously.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exchange is the durable topic exchange every service publishes on.
// DeadLetterExchange receives deliveries that exhaust their retry budget.
const (
	Exchange           = "ecommerce_events"
	DeadLetterExchange = "ecommerce_events.dlx"
)

// Routing keys follow <service>.<entity>.<action>.
const (
	RKOrderCreated     = "order.order.created"
	RKPaymentProcessed = "payment.payment.processed"
	RKPaymentFailed    = "payment.payment.failed"
	RKEmailSent        = "email.email.sent"
)

// Queue names, one per consumer.
const (
	PaymentQueue      = "payment_service_queue"
	EmailQueue        = "email_service_queue"
	OrderUpdatesQueue = "order_updates_queue"
)

// Event type strings carried in the envelope.
const (
	TypeOrderCreated     = "order.created"
	TypePaymentProcessed = "payment.processed"
	TypePaymentFailed    = "payment.failed"
	TypeEmailSent        = "email.sent"
)

// Payment statuses as they appear on the wire.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Envelope is embedded in every event. EventID is the deduplication handle
// for at-least-once delivery: consumers must treat a repeated EventID as an
// already-applied event.
type Envelope struct {
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEnvelope(eventType string) Envelope {
	return Envelope{
		EventType: eventType,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

// OrderItem is a line item snapshot taken at order time. Price is the unit
// price the buyer saw; it crosses the wire as a string decimal, never a
// binary float.
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderCreated is published by the order service once the order row is
// durable. The payment service consumes it.
type OrderCreated struct {
	Envelope
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	UserEmail   string          `json:"user_email"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItem     `json:"items"`
}

// PaymentProcessed is published by the payment service after the gateway
// call returns. The email service and the order service consume it.
// TransactionID is present only when Status is "completed".
type PaymentProcessed struct {
	Envelope
	PaymentID     int64           `json:"payment_id"`
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	UserEmail     string          `json:"user_email"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// PaymentFailed is published by the payment service when the gateway
// declines. The order service consumes it and marks the order failed, so
// a declined payment does not leave the order stuck at "pending".
type PaymentFailed struct {
	Envelope
	OrderID      int64           `json:"order_id"`
	UserID       int64           `json:"user_id"`
	UserEmail    string          `json:"user_email"`
	Amount       decimal.Decimal `json:"amount"`
	ErrorMessage string          `json:"error_message"`
}

// EmailSent is published by the email service after a successful send.
// Nothing binds to it today; it exists for analytics consumers.
type EmailSent struct {
	Envelope
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	OrderID   int64  `json:"order_id"`
}
