package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateovel/shoply/internal/dedup"
	"github.com/mateovel/shoply/internal/events"
)

type published struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	events []published
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	f.events = append(f.events, published{routingKey, payload})
	return nil
}

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *fakeSender, *fakePublisher) {
	t.Helper()
	sender := &fakeSender{}
	pub := &fakePublisher{}
	return NewWorker(sender, pub, dedup.New(128, time.Minute), zerolog.Nop()), sender, pub
}

func paymentProcessedBody(t *testing.T, ev events.PaymentProcessed) []byte {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return body
}

func completedPayment() events.PaymentProcessed {
	return events.PaymentProcessed{
		Envelope:      events.NewEnvelope(events.TypePaymentProcessed),
		PaymentID:     3,
		OrderID:       7,
		UserID:        42,
		UserEmail:     "buyer@example.com",
		Amount:        decimal.RequireFromString("25.00"),
		Status:        events.StatusCompleted,
		TransactionID: "TXN-AB12CD34EF56",
	}
}

func TestCompletedPaymentSendsOneEmail(t *testing.T) {
	w, sender, pub := newTestWorker(t)

	err := w.HandlePaymentProcessed(context.Background(), events.RKPaymentProcessed,
		paymentProcessedBody(t, completedPayment()))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "buyer@example.com", msg.To)
	assert.Contains(t, msg.Subject, "#7")
	assert.Contains(t, msg.Body, "25.00")
	assert.Contains(t, msg.Body, "TXN-AB12CD34EF56")

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.RKEmailSent, pub.events[0].routingKey)
	sent := pub.events[0].payload.(events.EmailSent)
	assert.Equal(t, int64(7), sent.OrderID)
	assert.Equal(t, "buyer@example.com", sent.Recipient)
}

func TestFailedPaymentSendsNothing(t *testing.T) {
	w, sender, pub := newTestWorker(t)

	ev := completedPayment()
	ev.Status = events.StatusFailed
	ev.TransactionID = ""

	err := w.HandlePaymentProcessed(context.Background(), events.RKPaymentProcessed,
		paymentProcessedBody(t, ev))
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
	assert.Empty(t, pub.events)
}

func TestDuplicateDeliverySendsOnce(t *testing.T) {
	w, sender, _ := newTestWorker(t)
	body := paymentProcessedBody(t, completedPayment())

	require.NoError(t, w.HandlePaymentProcessed(context.Background(), events.RKPaymentProcessed, body))
	require.NoError(t, w.HandlePaymentProcessed(context.Background(), events.RKPaymentProcessed, body))

	assert.Len(t, sender.sent, 1)
}

func TestSendFailureIsBestEffort(t *testing.T) {
	w, sender, pub := newTestWorker(t)
	sender.err = errors.New("smtp down")

	// The handler must not error: the delivery is acked either way.
	err := w.HandlePaymentProcessed(context.Background(), events.RKPaymentProcessed,
		paymentProcessedBody(t, completedPayment()))
	assert.NoError(t, err)
	assert.Empty(t, pub.events)
}

func TestMalformedEventIsDropped(t *testing.T) {
	w, sender, _ := newTestWorker(t)

	assert.NoError(t, w.HandlePaymentProcessed(context.Background(), events.RKPaymentProcessed, []byte("{")))
	assert.Empty(t, sender.sent)
}
