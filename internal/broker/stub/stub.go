// Package stub is an in-memory Adapter used by tests and local
// development to exercise the dispatch path without a live brokerage
// connection.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/trigger-engine/internal/broker"
	"github.com/aristath/trigger-engine/internal/engineerr"
)

// Adapter is a configurable fake: callers can make it reject the next
// order (RejectNext resets after one rejection), or feed it a fixed fill
// price, to drive specific test scenarios.
type Adapter struct {
	mu         sync.Mutex
	loggedIn   bool
	FillPrice  float64
	RejectNext bool
	orderSeq   int
}

// New returns a stub adapter that fills at fillPrice by default.
func New(fillPrice float64) *Adapter {
	return &Adapter{FillPrice: fillPrice}
}

func (a *Adapter) Login(ctx context.Context, credentials map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggedIn = true
	return nil
}

func (a *Adapter) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggedIn = false
	return nil
}

func (a *Adapter) IsLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

func (a *Adapter) place(price float64) (*broker.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.RejectNext {
		a.RejectNext = false
		return nil, fmt.Errorf("%w: stub rejection", engineerr.ErrBrokerRejected)
	}
	a.orderSeq++
	return &broker.OrderResult{
		BrokerOrderRef: fmt.Sprintf("stub-%d", a.orderSeq),
		Price:          price,
		PlacedAt:       time.Now(),
	}, nil
}

func (a *Adapter) PlaceLimitBuy(ctx context.Context, symbol string, quantity int, limitPrice float64) (*broker.OrderResult, error) {
	return a.place(limitPrice)
}

func (a *Adapter) PlaceLimitSell(ctx context.Context, symbol string, quantity int, limitPrice float64) (*broker.OrderResult, error) {
	return a.place(limitPrice)
}

func (a *Adapter) PlaceMarketBuy(ctx context.Context, symbol string, quantity int) (*broker.OrderResult, error) {
	return a.place(a.FillPrice)
}

func (a *Adapter) PlaceMarketSell(ctx context.Context, symbol string, quantity int) (*broker.OrderResult, error) {
	return a.place(a.FillPrice)
}
