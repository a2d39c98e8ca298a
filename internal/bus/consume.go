package bus

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const maxRedialWait = 30 * time.Second

// Handler processes one delivered message. Returning an error makes the bus
// retry the delivery up to the queue's attempt budget and then dead-letter
// it. Handlers ack-and-drop malformed payloads themselves by returning nil.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// QueueSpec describes a consumer's durable queue and its retry policy.
type QueueSpec struct {
	Name        string
	Bindings    []string
	MaxAttempts int           // handler attempts per delivery before dead-lettering
	Backoff     time.Duration // base wait between attempts, grows linearly
}

// Consume declares the queue, binds it and starts a sequential consume loop
// (prefetch 1, manual ack) on its own goroutine. The loop runs until ctx is
// cancelled and redials with capped exponential backoff if the broker
// connection drops. A declare/bind failure at startup is returned so the
// process can exit instead of running deaf.
func (c *Client) Consume(ctx context.Context, spec QueueSpec, h Handler) error {
	if spec.MaxAttempts <= 0 {
		spec.MaxAttempts = 1
	}
	deliveries, err := c.bind(spec)
	if err != nil {
		return err
	}
	c.log.Info().
		Str("queue", spec.Name).
		Strs("bindings", spec.Bindings).
		Msg("consumer bound")
	go c.run(ctx, spec, h, deliveries)
	return nil
}

func (c *Client) bind(spec QueueSpec) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	// Exhausted deliveries are routed to the DLX keyed by the origin queue
	// name, so each queue gets its own inspectable .dlq companion.
	args := amqp.Table{
		"x-dead-letter-exchange":    c.dlx,
		"x-dead-letter-routing-key": spec.Name,
	}
	if _, err := ch.QueueDeclare(spec.Name, true, false, false, false, args); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", spec.Name, err)
	}
	dlq := spec.Name + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, spec.Name, c.dlx, false, nil); err != nil {
		return nil, fmt.Errorf("bind %s: %w", dlq, err)
	}
	for _, rk := range spec.Bindings {
		if err := ch.QueueBind(spec.Name, rk, c.exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", spec.Name, rk, err)
		}
	}
	// One unacknowledged message in flight: strict sequential processing.
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(spec.Name, spec.Name+"-worker", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", spec.Name, err)
	}
	return deliveries, nil
}

func (c *Client) run(ctx context.Context, spec QueueSpec, h Handler, deliveries <-chan amqp.Delivery) {
	redial := time.Second
	for {
		c.drain(ctx, spec, h, deliveries)
		if ctx.Err() != nil {
			c.log.Info().Str("queue", spec.Name).Msg("consumer stopped")
			return
		}
		// Delivery channel closed under us: the broker connection dropped.
		c.log.Warn().Str("queue", spec.Name).Dur("redial_in", redial).Msg("broker connection lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(redial):
		}
		if redial < maxRedialWait {
			redial *= 2
		}
		if err := c.connect(); err != nil {
			c.log.Error().Err(err).Str("queue", spec.Name).Msg("redial failed")
			continue
		}
		d, err := c.bind(spec)
		if err != nil {
			c.log.Error().Err(err).Str("queue", spec.Name).Msg("rebind failed")
			continue
		}
		c.log.Info().Str("queue", spec.Name).Msg("consumer rebound")
		deliveries = d
		redial = time.Second
	}
}

func (c *Client) drain(ctx context.Context, spec QueueSpec, h Handler, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, spec, h, d)
		}
	}
}

func (c *Client) handle(ctx context.Context, spec QueueSpec, h Handler, d amqp.Delivery) {
	var err error
	for attempt := 1; attempt <= spec.MaxAttempts; attempt++ {
		if err = h(ctx, d.RoutingKey, d.Body); err == nil {
			_ = d.Ack(false)
			return
		}
		c.log.Warn().
			Err(err).
			Str("queue", spec.Name).
			Str("routing_key", d.RoutingKey).
			Int("attempt", attempt).
			Msg("handler failed")
		if attempt < spec.MaxAttempts {
			select {
			case <-ctx.Done():
				// Shutdown mid-retry. Leave the delivery unacked so the
				// broker redelivers it instead of dead-lettering a message
				// that only failed because the process was stopping.
				c.log.Warn().
					Str("queue", spec.Name).
					Str("routing_key", d.RoutingKey).
					Msg("shutdown during retry, leaving delivery unacked")
				return
			case <-time.After(time.Duration(attempt) * spec.Backoff):
			}
		}
	}
	c.log.Error().
		Err(err).
		Str("queue", spec.Name).
		Str("routing_key", d.RoutingKey).
		Msg("retries exhausted, dead-lettering message")
	// No requeue: the queue's x-dead-letter-exchange routes it to the DLQ.
	_ = d.Nack(false, false)
}
