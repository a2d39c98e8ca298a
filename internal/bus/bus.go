// Package bus is the RabbitMQ client shared by the pipeline services: one
// connection per process, a durable topic exchange, persistent JSON
// publishing and prefetch-1 consuming with bounded retry and dead-lettering.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher is the narrow surface the services depend on, so tests can swap
// in a fake without a broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Client struct {
	url      string
	exchange string
	dlx      string
	log      zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker and declares the topic exchange and its
// dead-letter companion. Both declarations are idempotent, so concurrent
// service startups are safe.
func Dial(url, exchange string, log zerolog.Logger) (*Client, error) {
	c := &Client{
		url:      url,
		exchange: exchange,
		dlx:      exchange + ".dlx",
		log:      log,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	for _, ex := range []string{c.exchange, c.dlx} {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	c.mu.Lock()
	// On a redial the old pair may still be half-alive (a dead channel on a
	// live connection); close both before replacing them so nothing leaks.
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.ch = conn, ch
	c.mu.Unlock()
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Publish serializes payload to JSON and sends it to the exchange as a
// persistent message. Connectivity errors are returned to the caller; the
// order service logs them and keeps the order, workers decide per handler.
func (c *Client) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	err = ch.PublishWithContext(ctx, c.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	c.log.Debug().Str("routing_key", routingKey).Msg("event published")
	return nil
}
