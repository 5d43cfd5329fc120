// Package dispatcher turns a fired condition into exactly one broker
// order attempt, guarding against the same trigger being dispatched
// twice by a concurrent scheduler tick.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/trigger-engine/internal/broker"
	"github.com/aristath/trigger-engine/internal/domain"
	"github.com/aristath/trigger-engine/internal/engineerr"
	"github.com/aristath/trigger-engine/internal/notify"
	"github.com/aristath/trigger-engine/internal/registry"
)

// CredentialLookup resolves the brokerage credentials a tenant uses for
// a given broker name. The dispatcher never stores credentials itself.
type CredentialLookup func(tenantID, brokerName string) (map[string]string, error)

// Dispatcher executes triggers whose condition has just been observed
// as met.
type Dispatcher struct {
	registry    *registry.Registry
	brokerPool  *broker.Pool
	credentials CredentialLookup
	notifier    notify.Notifier
	log         zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds a Dispatcher.
func New(reg *registry.Registry, pool *broker.Pool, credentials CredentialLookup, notifier notify.Notifier, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:    reg,
		brokerPool:  pool,
		credentials: credentials,
		notifier:    notifier,
		log:         log.With().Str("component", "dispatcher").Logger(),
		inFlight:    make(map[string]struct{}),
	}
}

// Execute runs the full fire-to-settle sequence for one trigger whose
// condition was observed met at observedPrice. Steps:
//  1. claim the trigger in an in-flight set so a second concurrent
//     caller for the same id bails out immediately;
//  2. re-read the trigger fresh from the store — if it is no longer
//     active (another process already claimed it, or it was cancelled
//     in the interim) stop here;
//  3. mark it triggered;
//  4. acquire a pooled broker session for the tenant/broker pair;
//  5. place the order matching (action, orderKind), failing fast with
//     ErrUnsupported if the adapter lacks that combination;
//  6. record the outcome and notify, always releasing the in-flight
//     claim on the way out regardless of outcome.
func (d *Dispatcher) Execute(ctx context.Context, t *domain.Trigger, observedPrice float64) error {
	if !d.claim(t.ID) {
		return nil
	}
	defer d.release(t.ID)

	fresh, err := d.registry.MarkTriggered(t.TenantID, t.ID, observedPrice)
	if err != nil {
		// Already handled by another path (cancelled, expired, or a
		// concurrent dispatch that won the race before our claim).
		return nil
	}

	creds, err := d.credentials(fresh.TenantID, fresh.BrokerName)
	if err != nil {
		return d.fail(fresh, observedPrice, fmt.Errorf("%w: resolving credentials: %v", engineerr.ErrBrokerUnavailable, err))
	}

	adapter, err := d.brokerPool.Get(ctx, fresh.TenantID, fresh.BrokerName, creds)
	if err != nil {
		return d.fail(fresh, observedPrice, err)
	}

	result, err := d.placeOrder(ctx, adapter, fresh)
	if err != nil {
		return d.fail(fresh, observedPrice, err)
	}

	if err := d.registry.RecordExecution(fresh, true, "order placed", &result.Price, result.BrokerOrderRef); err != nil {
		d.log.Error().Err(err).Str("triggerId", fresh.ID).Msg("failed to record successful execution")
		return err
	}
	d.notifier.Notify(ctx, notify.Event{
		Kind:          notify.KindExecuted,
		Trigger:       fresh,
		ObservedPrice: observedPrice,
		Message:       fmt.Sprintf("%s %d %s @ %.2f", fresh.Action, fresh.Quantity, fresh.Symbol, result.Price),
	})
	return nil
}

func (d *Dispatcher) placeOrder(ctx context.Context, adapter broker.Adapter, t *domain.Trigger) (*broker.OrderResult, error) {
	switch {
	case t.Action == domain.ActionBuy && t.OrderKind == domain.OrderKindLimit:
		return adapter.PlaceLimitBuy(ctx, t.Symbol, t.Quantity, *t.LimitPrice)
	case t.Action == domain.ActionSell && t.OrderKind == domain.OrderKindLimit:
		return adapter.PlaceLimitSell(ctx, t.Symbol, t.Quantity, *t.LimitPrice)
	case t.Action == domain.ActionBuy && t.OrderKind == domain.OrderKindMarket:
		return adapter.PlaceMarketBuy(ctx, t.Symbol, t.Quantity)
	case t.Action == domain.ActionSell && t.OrderKind == domain.OrderKindMarket:
		return adapter.PlaceMarketSell(ctx, t.Symbol, t.Quantity)
	default:
		return nil, fmt.Errorf("%w: action %q with order kind %q", engineerr.ErrUnsupported, t.Action, t.OrderKind)
	}
}

func (d *Dispatcher) fail(t *domain.Trigger, observedPrice float64, cause error) error {
	if err := d.registry.RecordExecution(t, false, cause.Error(), nil, ""); err != nil {
		d.log.Error().Err(err).Str("triggerId", t.ID).Msg("failed to record failed execution")
	}
	d.notifier.Notify(context.Background(), notify.Event{
		Kind:          notify.KindFailed,
		Trigger:       t,
		ObservedPrice: observedPrice,
		Message:       cause.Error(),
	})
	return cause
}

func (d *Dispatcher) claim(triggerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[triggerID]; busy {
		return false
	}
	d.inFlight[triggerID] = struct{}{}
	return true
}

func (d *Dispatcher) release(triggerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, triggerID)
}
