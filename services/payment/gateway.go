package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Charger is the outbound payment gateway call. An interface rather than a
// sleep inline in the handler, so tests can fake it without any timing
// dependence.
type Charger interface {
	Charge(ctx context.Context, orderID int64, amount decimal.Decimal) (transactionID string, err error)
}

// simulatedGateway stands in for a real provider: it waits a configured
// round trip and mints a transaction reference. failMod > 0 declines every
// order whose id is a multiple of it.
type simulatedGateway struct {
	delay   time.Duration
	failMod int64
}

func newSimulatedGateway(delay time.Duration, failMod int64) Charger {
	return &simulatedGateway{delay: delay, failMod: failMod}
}

func (g *simulatedGateway) Charge(ctx context.Context, orderID int64, amount decimal.Decimal) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(g.delay):
	}
	if g.failMod > 0 && orderID%g.failMod == 0 {
		return "", fmt.Errorf("gateway declined order %d: insufficient funds", orderID)
	}
	return newTransactionID(), nil
}

func newTransactionID() string {
	id := uuid.New()
	return "TXN-" + strings.ToUpper(hex.EncodeToString(id[:])[:12])
}
