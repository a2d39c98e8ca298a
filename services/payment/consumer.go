package main

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mateovel/shoply/internal/bus"
	"github.com/mateovel/shoply/internal/dedup"
	"github.com/mateovel/shoply/internal/events"
)

type Worker struct {
	repo    *Repository
	charger Charger
	pub     bus.Publisher
	seen    *dedup.Tracker
	log     zerolog.Logger
}

func NewWorker(repo *Repository, charger Charger, pub bus.Publisher, seen *dedup.Tracker, log zerolog.Logger) *Worker {
	return &Worker{repo: repo, charger: charger, pub: pub, seen: seen, log: log}
}

func (w *Worker) Start(ctx context.Context, client *bus.Client, cfg Config) error {
	spec := bus.QueueSpec{
		Name:        events.PaymentQueue,
		Bindings:    []string{events.RKOrderCreated},
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
	}
	return client.Consume(ctx, spec, w.HandleOrderCreated)
}

// HandleOrderCreated runs once per delivered order.created event: record a
// pending payment, charge, record the outcome, publish it. The amount is
// copied from the event, never recomputed, and the buyer email is carried
// forward on the outgoing event because this service has no other way to
// know it.
func (w *Worker) HandleOrderCreated(ctx context.Context, _ string, body []byte) error {
	var ev events.OrderCreated
	if err := json.Unmarshal(body, &ev); err != nil {
		w.log.Error().Err(err).Msg("dropping malformed order.created event")
		return nil
	}
	if w.seen.Seen(ev.EventID) {
		w.log.Info().Str("event_id", ev.EventID).Msg("duplicate delivery, skipping")
		return nil
	}
	if dup, err := w.repo.SeenEvent(ctx, ev.EventID); err != nil {
		return err
	} else if dup {
		w.seen.Mark(ev.EventID)
		w.log.Info().Str("event_id", ev.EventID).Msg("event already applied, skipping")
		return nil
	}

	paymentID, err := w.repo.CreatePending(ctx, Payment{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
		Amount:  ev.TotalAmount,
		EventID: ev.EventID,
	})
	if err != nil {
		return err
	}
	w.log.Info().
		Int64("order_id", ev.OrderID).
		Int64("payment_id", paymentID).
		Str("amount", ev.TotalAmount.String()).
		Msg("processing payment")

	txnID, chargeErr := w.charger.Charge(ctx, ev.OrderID, ev.TotalAmount)
	if chargeErr != nil {
		if err := w.repo.SetResult(ctx, paymentID, PaymentStatusFailed, ""); err != nil {
			return err
		}
		w.seen.Mark(ev.EventID)
		fail := events.PaymentFailed{
			Envelope:     events.NewEnvelope(events.TypePaymentFailed),
			OrderID:      ev.OrderID,
			UserID:       ev.UserID,
			UserEmail:    ev.UserEmail,
			Amount:       ev.TotalAmount,
			ErrorMessage: chargeErr.Error(),
		}
		if err := w.pub.Publish(ctx, events.RKPaymentFailed, fail); err != nil {
			w.log.Error().Err(err).Int64("order_id", ev.OrderID).Msg("publish payment.failed failed")
		}
		w.log.Warn().
			Err(chargeErr).
			Int64("order_id", ev.OrderID).
			Int64("payment_id", paymentID).
			Msg("payment declined")
		// A declined charge is a terminal business outcome, not a handler
		// error: retrying would charge the buyer again.
		return nil
	}

	if err := w.repo.SetResult(ctx, paymentID, PaymentStatusCompleted, txnID); err != nil {
		return err
	}
	// The outcome is durable from here on; marking any earlier would let a
	// failed attempt masquerade as a duplicate on redelivery.
	w.seen.Mark(ev.EventID)
	done := events.PaymentProcessed{
		Envelope:      events.NewEnvelope(events.TypePaymentProcessed),
		PaymentID:     paymentID,
		OrderID:       ev.OrderID,
		UserID:        ev.UserID,
		UserEmail:     ev.UserEmail,
		Amount:        ev.TotalAmount,
		Status:        events.StatusCompleted,
		TransactionID: txnID,
	}
	if err := w.pub.Publish(ctx, events.RKPaymentProcessed, done); err != nil {
		// The payment itself is recorded; retrying the handler would run
		// the charge again. Log and move on.
		w.log.Error().Err(err).Int64("payment_id", paymentID).Msg("publish payment.processed failed")
		return nil
	}
	w.log.Info().
		Int64("order_id", ev.OrderID).
		Int64("payment_id", paymentID).
		Str("transaction_id", txnID).
		Msg("payment completed")
	return nil
}
