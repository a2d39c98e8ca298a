package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenAndMark(t *testing.T) {
	tr := New(16, time.Minute)

	assert.False(t, tr.Seen("ev-1"))
	assert.False(t, tr.Seen("ev-1"), "checking must not mark")

	tr.Mark("ev-1")
	assert.True(t, tr.Seen("ev-1"))
	assert.False(t, tr.Seen("ev-2"))
}

func TestCapacityEvictsOldest(t *testing.T) {
	tr := New(2, time.Minute)

	tr.Mark("a")
	tr.Mark("b")
	tr.Mark("c") // evicts "a"
	assert.False(t, tr.Seen("a"))
	assert.True(t, tr.Seen("c"))
}
