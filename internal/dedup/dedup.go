// Package dedup tracks recently seen event ids so a redelivered event is not
// applied twice. At-least-once delivery makes duplicates a matter of when,
// not if.
package dedup

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Tracker struct {
	seen *expirable.LRU[string, struct{}]
}

// New builds a tracker holding up to size ids, each forgotten after ttl.
// Redeliveries cluster close to the original delivery, so a bounded window
// is enough; durable dedup is the consumer's own store (unique event_id).
func New(size int, ttl time.Duration) *Tracker {
	return &Tracker{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen reports whether id has been marked. It never records anything:
// checking must stay separate from marking so a handler that fails after
// the check is retried instead of being mistaken for a duplicate.
func (t *Tracker) Seen(id string) bool {
	_, ok := t.seen.Get(id)
	return ok
}

// Mark records id. Call it only after the event's side effects have been
// applied; marking earlier would turn a retried failure into a silent ack.
func (t *Tracker) Mark(id string) {
	t.seen.Add(id, struct{}{})
}
