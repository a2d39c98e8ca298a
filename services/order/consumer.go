package main

import (
	"context"
	"encoding/json"

	"github.com/mateovel/shoply/internal/bus"
	"github.com/mateovel/shoply/internal/events"
)

// StartUpdatesConsumer binds the order-updates queue. Payment result events
// move the order out of "pending"; no other service ever touches the row.
func (s *Server) StartUpdatesConsumer(ctx context.Context, client *bus.Client, cfg Config) error {
	spec := bus.QueueSpec{
		Name:        events.OrderUpdatesQueue,
		Bindings:    []string{events.RKPaymentProcessed, events.RKPaymentFailed},
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
	}
	return client.Consume(ctx, spec, s.handlePaymentResult)
}

func (s *Server) handlePaymentResult(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case events.RKPaymentProcessed:
		var ev events.PaymentProcessed
		if err := json.Unmarshal(body, &ev); err != nil {
			s.log.Error().Err(err).Msg("dropping malformed payment.processed event")
			return nil
		}
		if s.seen.Seen(ev.EventID) {
			s.log.Info().Str("event_id", ev.EventID).Msg("duplicate delivery, skipping")
			return nil
		}
		status := OrderStatusConfirmed
		if ev.Status != events.StatusCompleted {
			status = OrderStatusFailed
		}
		s.log.Info().Int64("order_id", ev.OrderID).Str("status", status).Msg("payment result received")
		if err := s.repo.UpdateStatus(ctx, ev.OrderID, status); err != nil {
			return err
		}
		s.seen.Mark(ev.EventID)
		return nil

	case events.RKPaymentFailed:
		var ev events.PaymentFailed
		if err := json.Unmarshal(body, &ev); err != nil {
			s.log.Error().Err(err).Msg("dropping malformed payment.failed event")
			return nil
		}
		if s.seen.Seen(ev.EventID) {
			s.log.Info().Str("event_id", ev.EventID).Msg("duplicate delivery, skipping")
			return nil
		}
		s.log.Warn().
			Int64("order_id", ev.OrderID).
			Str("reason", ev.ErrorMessage).
			Msg("payment failed, marking order failed")
		if err := s.repo.UpdateStatus(ctx, ev.OrderID, OrderStatusFailed); err != nil {
			return err
		}
		s.seen.Mark(ev.EventID)
		return nil
	}
	return nil
}
