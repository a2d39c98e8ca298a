package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeAcker struct {
	acked       bool
	nacked      bool
	nackRequeue bool
}

func (f *fakeAcker) Ack(_ uint64, _ bool) error { f.acked = true; return nil }
func (f *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.nackRequeue = requeue
	return nil
}
func (f *fakeAcker) Reject(_ uint64, _ bool) error { return nil }

func testClient() *Client {
	return &Client{exchange: "test_events", dlx: "test_events.dlx", log: zerolog.Nop()}
}

func TestHandleAcksOnSuccess(t *testing.T) {
	c := testClient()
	acker := &fakeAcker{}
	calls := 0

	c.handle(context.Background(),
		QueueSpec{Name: "q", MaxAttempts: 3},
		func(_ context.Context, _ string, _ []byte) error { calls++; return nil },
		amqp.Delivery{Acknowledger: acker, RoutingKey: "order.order.created"})

	assert.Equal(t, 1, calls)
	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
}

func TestHandleRetriesThenDeadLetters(t *testing.T) {
	c := testClient()
	acker := &fakeAcker{}
	calls := 0

	c.handle(context.Background(),
		QueueSpec{Name: "q", MaxAttempts: 3},
		func(_ context.Context, _ string, _ []byte) error { calls++; return errors.New("boom") },
		amqp.Delivery{Acknowledger: acker})

	assert.Equal(t, 3, calls)
	assert.False(t, acker.acked)
	assert.True(t, acker.nacked)
	// No requeue: the queue's dead-letter exchange takes the message.
	assert.False(t, acker.nackRequeue)
}

func TestHandleShutdownDuringBackoffLeavesDeliveryUnacked(t *testing.T) {
	c := testClient()
	acker := &fakeAcker{}
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.handle(ctx,
		QueueSpec{Name: "q", MaxAttempts: 3, Backoff: time.Hour},
		func(_ context.Context, _ string, _ []byte) error { calls++; return errors.New("boom") },
		amqp.Delivery{Acknowledger: acker})

	// One attempt, then shutdown: neither acked nor dead-lettered, so the
	// broker redelivers on the next start.
	assert.Equal(t, 1, calls)
	assert.False(t, acker.acked)
	assert.False(t, acker.nacked)
}

func TestHandleSucceedsOnRetry(t *testing.T) {
	c := testClient()
	acker := &fakeAcker{}
	calls := 0

	c.handle(context.Background(),
		QueueSpec{Name: "q", MaxAttempts: 3},
		func(_ context.Context, _ string, _ []byte) error {
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		},
		amqp.Delivery{Acknowledger: acker})

	assert.Equal(t, 2, calls)
	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
}
