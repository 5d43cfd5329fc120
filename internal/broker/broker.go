// Package broker defines the adapter contract every brokerage
// integration implements and the session pool that amortizes login
// across the triggers sharing one tenant/broker pair.
package broker

import (
	"context"
	"time"
)

// OrderResult is what a successful order placement returns. Price may
// be zero for orders the broker accepted but hasn't filled yet.
type OrderResult struct {
	BrokerOrderRef string
	Price          float64
	PlacedAt       time.Time
}

// Adapter is the seam every brokerage integration implements. Market
// order methods are optional: an adapter that cannot support them
// returns ErrUnsupported and callers fail fast rather than silently
// degrading to a limit order.
type Adapter interface {
	// Login establishes a session for the given tenant/credentials pair.
	// Implementations are free to treat this as a no-op if the
	// underlying transport is already authenticated per-request.
	Login(ctx context.Context, credentials map[string]string) error
	Logout(ctx context.Context) error
	IsLoggedIn() bool

	PlaceLimitBuy(ctx context.Context, symbol string, quantity int, limitPrice float64) (*OrderResult, error)
	PlaceLimitSell(ctx context.Context, symbol string, quantity int, limitPrice float64) (*OrderResult, error)
	PlaceMarketBuy(ctx context.Context, symbol string, quantity int) (*OrderResult, error)
	PlaceMarketSell(ctx context.Context, symbol string, quantity int) (*OrderResult, error)
}

// Factory builds a fresh, logged-out Adapter instance for one broker
// name. The pool calls this whenever it has no live session for a
// (tenant, broker) pair; goroutines racing to build the same pair may
// each call it, and the pool keeps only one of the results.
type Factory func(brokerName string) Adapter
