package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/mateovel/shoply/internal/bus"
	"github.com/mateovel/shoply/internal/dedup"
	"github.com/mateovel/shoply/internal/events"
)

type Worker struct {
	sender Sender
	pub    bus.Publisher
	seen   *dedup.Tracker
	log    zerolog.Logger
}

func NewWorker(sender Sender, pub bus.Publisher, seen *dedup.Tracker, log zerolog.Logger) *Worker {
	return &Worker{sender: sender, pub: pub, seen: seen, log: log}
}

func (w *Worker) Start(ctx context.Context, client *bus.Client, cfg Config) error {
	spec := bus.QueueSpec{
		Name:        events.EmailQueue,
		Bindings:    []string{events.RKPaymentProcessed},
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
	}
	return client.Consume(ctx, spec, w.HandlePaymentProcessed)
}

// HandlePaymentProcessed sends exactly one confirmation for a completed
// payment and skips everything else. Email stays best effort: a failed send
// is logged and the delivery is still acked.
func (w *Worker) HandlePaymentProcessed(ctx context.Context, _ string, body []byte) error {
	var ev events.PaymentProcessed
	if err := json.Unmarshal(body, &ev); err != nil {
		w.log.Error().Err(err).Msg("dropping malformed payment.processed event")
		return nil
	}
	if w.seen.Seen(ev.EventID) {
		w.log.Info().Str("event_id", ev.EventID).Msg("duplicate delivery, skipping")
		return nil
	}
	if ev.Status != events.StatusCompleted {
		w.seen.Mark(ev.EventID)
		w.log.Warn().
			Int64("order_id", ev.OrderID).
			Str("status", ev.Status).
			Msg("payment not completed, skipping email")
		return nil
	}

	msg := confirmationMessage(ev)
	// Marked once the send has been attempted; the delivery is acked whether
	// the send worked or not.
	err := w.sender.Send(ctx, msg)
	w.seen.Mark(ev.EventID)
	if err != nil {
		w.log.Error().Err(err).Int64("order_id", ev.OrderID).Msg("send failed")
		return nil
	}
	w.log.Info().
		Int64("order_id", ev.OrderID).
		Str("recipient", msg.To).
		Msg("confirmation sent")

	sent := events.EmailSent{
		Envelope:  events.NewEnvelope(events.TypeEmailSent),
		Recipient: msg.To,
		Subject:   msg.Subject,
		OrderID:   ev.OrderID,
	}
	if err := w.pub.Publish(ctx, events.RKEmailSent, sent); err != nil {
		w.log.Warn().Err(err).Int64("order_id", ev.OrderID).Msg("publish email.sent failed")
	}
	return nil
}

func confirmationMessage(ev events.PaymentProcessed) Message {
	return Message{
		To:      ev.UserEmail,
		Subject: fmt.Sprintf("Order #%d confirmed", ev.OrderID),
		Body: fmt.Sprintf(
			"Hi,\n\nYour payment of $%s for order #%d went through.\nTransaction: %s (payment received %s).\n\nThanks for shopping with us!\n",
			ev.Amount.StringFixed(2), ev.OrderID, ev.TransactionID, humanize.Time(ev.Timestamp)),
	}
}
