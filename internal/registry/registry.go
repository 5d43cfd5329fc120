// Package registry owns trigger lifecycle transitions: creation,
// edits, cancellation, and the active-set view the scheduler polls.
// Every transition is persisted through Store and appends exactly one
// order-log entry describing what happened.
package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/trigger-engine/internal/domain"
	"github.com/aristath/trigger-engine/internal/engineerr"
)

// Store is the persistence seam the registry depends on; internal/store
// satisfies it.
type Store interface {
	SaveTrigger(t *domain.Trigger) error
	GetTrigger(tenantID, triggerID string) (*domain.Trigger, error)
	GetTriggerByID(triggerID string) (*domain.Trigger, error)
	ListTenantTriggers(tenantID string) ([]*domain.Trigger, error)
	ListByStatus(status domain.Status) ([]*domain.Trigger, error)
	AppendLog(entry *domain.OrderLog) error
	DeleteTrigger(tenantID, triggerID string) error
}

// Registry is the trigger lifecycle manager.
type Registry struct {
	store Store
	log   zerolog.Logger
}

// New builds a Registry over the given store.
func New(store Store, log zerolog.Logger) *Registry {
	return &Registry{store: store, log: log.With().Str("component", "registry").Logger()}
}

// CreateInput is everything a caller supplies when opening a trigger;
// the registry fills in id, status, and timestamps.
type CreateInput struct {
	TenantID     string
	Symbol       string
	SymbolName   string
	Condition    domain.Condition
	TriggerPrice float64
	Action       domain.Action
	OrderKind    domain.OrderKind
	TradeClass   domain.TradeClass
	LimitPrice   *float64
	Quantity     int
	BrokerName   string
	ExpiresAt    *time.Time
	Note         string
}

// Create opens a new active trigger and logs its creation.
func (r *Registry) Create(in CreateInput) (*domain.Trigger, error) {
	now := time.Now().UTC()
	t := &domain.Trigger{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		Symbol:       in.Symbol,
		SymbolName:   in.SymbolName,
		Condition:    in.Condition,
		TriggerPrice: in.TriggerPrice,
		Action:       in.Action,
		OrderKind:    in.OrderKind,
		TradeClass:   in.TradeClass,
		LimitPrice:   in.LimitPrice,
		Quantity:     in.Quantity,
		BrokerName:   in.BrokerName,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    in.ExpiresAt,
		Note:         in.Note,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.SaveTrigger(t); err != nil {
		return nil, err
	}
	r.appendLog(t, domain.LogActionCreated, true, "trigger created", nil, nil, nil)
	return t, nil
}

// UpdateInput carries the mutable fields a caller may change on an
// still-active trigger.
type UpdateInput struct {
	TriggerPrice *float64
	LimitPrice   **float64
	Quantity     *int
	ExpiresAt    **time.Time
	Note         *string
}

// getOwned resolves a trigger by id regardless of tenant, then
// verifies tenantID actually owns it. A trigger that belongs to
// another tenant is reported as Forbidden rather than NotFound, so
// callers can distinguish "doesn't exist" from "not yours".
func (r *Registry) getOwned(tenantID, triggerID string) (*domain.Trigger, error) {
	t, err := r.store.GetTriggerByID(triggerID)
	if err != nil {
		return nil, err
	}
	if t.TenantID != tenantID {
		return nil, fmt.Errorf("%w: trigger %s belongs to a different tenant", engineerr.ErrForbidden, triggerID)
	}
	return t, nil
}

// Update edits an active trigger in place. Editing a trigger that has
// already fired or reached a terminal status is an illegal transition.
func (r *Registry) Update(tenantID, triggerID string, in UpdateInput) (*domain.Trigger, error) {
	t, err := r.getOwned(tenantID, triggerID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: cannot edit trigger in status %q", engineerr.ErrIllegalTransition, t.Status)
	}

	if in.TriggerPrice != nil {
		t.TriggerPrice = *in.TriggerPrice
	}
	if in.LimitPrice != nil {
		t.LimitPrice = *in.LimitPrice
	}
	if in.Quantity != nil {
		t.Quantity = *in.Quantity
	}
	if in.ExpiresAt != nil {
		t.ExpiresAt = *in.ExpiresAt
	}
	if in.Note != nil {
		t.Note = *in.Note
	}
	t.UpdatedAt = time.Now().UTC()

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.SaveTrigger(t); err != nil {
		return nil, err
	}
	r.appendLog(t, domain.LogActionUpdated, true, "trigger updated", nil, nil, nil)
	return t, nil
}

// Cancel moves an active trigger to cancelled. Only an ACTIVE trigger
// may be cancelled: a TRIGGERED one is mid-dispatch, and letting a
// client flip it to CANCELLED while the dispatcher is still between
// MarkTriggered and RecordExecution would race the broker call.
func (r *Registry) Cancel(tenantID, triggerID string) (*domain.Trigger, error) {
	t, err := r.getOwned(tenantID, triggerID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: trigger not active (status %q)", engineerr.ErrIllegalTransition, t.Status)
	}
	t.Status = domain.StatusCancelled
	t.UpdatedAt = time.Now().UTC()
	if err := r.store.SaveTrigger(t); err != nil {
		return nil, err
	}
	r.appendLog(t, domain.LogActionCancelled, true, "trigger cancelled", nil, nil, nil)
	return t, nil
}

// Delete hard-removes a trigger record. Permitted only once the
// trigger has reached a terminal status; an active or triggered record
// must be cancelled (or allowed to execute/expire) first.
func (r *Registry) Delete(tenantID, triggerID string) error {
	t, err := r.getOwned(tenantID, triggerID)
	if err != nil {
		return err
	}
	if !t.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot delete trigger in status %q", engineerr.ErrIllegalTransition, t.Status)
	}
	return r.store.DeleteTrigger(tenantID, triggerID)
}

// ListActive returns every trigger still eligible for evaluation,
// expiring any whose deadline has passed along the way.
func (r *Registry) ListActive() ([]*domain.Trigger, error) {
	active, err := r.store.ListByStatus(domain.StatusActive)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	eligible := active[:0]
	for _, t := range active {
		if t.IsExpired(now) {
			r.expire(t, now)
			continue
		}
		eligible = append(eligible, t)
	}
	return eligible, nil
}

func (r *Registry) expire(t *domain.Trigger, now time.Time) {
	t.Status = domain.StatusExpired
	t.UpdatedAt = now
	if err := r.store.SaveTrigger(t); err != nil {
		r.log.Error().Err(err).Str("triggerId", t.ID).Msg("failed to persist expiry")
		return
	}
	r.appendLog(t, domain.LogActionExpired, true, "trigger expired before firing", nil, nil, nil)
}

// MarkTriggered transitions an active trigger to triggered. Returns
// ErrIllegalTransition if the trigger is no longer active (e.g. a
// concurrent caller already claimed it), so the dispatcher can treat
// this as "someone else is handling it" rather than an error.
func (r *Registry) MarkTriggered(tenantID, triggerID string, observedPrice float64) (*domain.Trigger, error) {
	t, err := r.store.GetTrigger(tenantID, triggerID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: trigger not active", engineerr.ErrIllegalTransition)
	}
	now := time.Now().UTC()
	t.Status = domain.StatusTriggered
	t.TriggeredAt = &now
	t.UpdatedAt = now
	if err := r.store.SaveTrigger(t); err != nil {
		return nil, err
	}
	r.appendLog(t, domain.LogActionTriggered, true, "condition met", &observedPrice, nil, nil)
	return t, nil
}

// RecordExecution finalizes a triggered trigger as executed or failed.
func (r *Registry) RecordExecution(t *domain.Trigger, success bool, message string, executionPrice *float64, brokerOrderRef string) error {
	now := time.Now().UTC()
	t.UpdatedAt = now
	t.ExecutedAt = &now
	t.ExecutionMessage = message
	t.BrokerOrderRef = brokerOrderRef
	if success {
		t.Status = domain.StatusExecuted
	} else {
		t.Status = domain.StatusFailed
	}
	if err := r.store.SaveTrigger(t); err != nil {
		return err
	}
	action := domain.LogActionExecuted
	if !success {
		action = domain.LogActionFailed
	}
	var ref *string
	if brokerOrderRef != "" {
		ref = &brokerOrderRef
	}
	r.appendLog(t, action, success, message, nil, executionPrice, ref)
	return nil
}

func (r *Registry) appendLog(t *domain.Trigger, action domain.LogAction, success bool, message string, observedPrice, executionPrice *float64, brokerOrderRef *string) {
	entry := &domain.OrderLog{
		ID:             uuid.NewString(),
		TriggerID:      t.ID,
		TenantID:       t.TenantID,
		Action:         action,
		Success:        success,
		Message:        message,
		TriggerPrice:   t.TriggerPrice,
		ObservedPrice:  observedPrice,
		ExecutionPrice: executionPrice,
		BrokerOrderRef: brokerOrderRef,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.AppendLog(entry); err != nil {
		r.log.Error().Err(err).Str("triggerId", t.ID).Msg("failed to append order log entry")
	}
}
