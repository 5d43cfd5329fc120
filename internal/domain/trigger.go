package domain

import (
	"fmt"
	"time"

	"github.com/aristath/trigger-engine/internal/engineerr"
)

// Trigger is the central record: a standing rule that, when its price
// condition is met, causes exactly one broker order attempt.
//
// JSON field names are the on-disk wire contract verbatim (ISO-8601
// timestamps, enum values rendered as their external symbols).
type Trigger struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Symbol string `json:"symbol"`

	Condition    Condition `json:"condition"`
	TriggerPrice float64   `json:"triggerPrice"`

	Action     Action     `json:"action"`
	OrderKind  OrderKind  `json:"orderKind"`
	TradeClass TradeClass `json:"tradeClass"`

	LimitPrice *float64 `json:"limitPrice,omitempty"`
	Quantity   int      `json:"quantity"`

	BrokerName string `json:"brokerName"`

	// SymbolName is an optional human-readable security name, used only
	// for notifier rendering; the engine never reads it for matching.
	SymbolName string `json:"symbolName,omitempty"`

	Status Status `json:"status"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	ExecutedAt  *time.Time `json:"executedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`

	BrokerOrderRef   string `json:"brokerOrderRef,omitempty"`
	ExecutionMessage string `json:"executionMessage,omitempty"`
	Note             string `json:"note,omitempty"`
}

// Validate checks the invariants every persisted trigger must satisfy.
func (t *Trigger) Validate() error {
	if t.TenantID == "" {
		return fmt.Errorf("%w: tenantId is required", engineerr.ErrValidation)
	}
	if t.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", engineerr.ErrValidation)
	}
	if t.TriggerPrice <= 0 {
		return fmt.Errorf("%w: triggerPrice must be positive", engineerr.ErrValidation)
	}
	if t.Quantity < 1 || t.Quantity > 999 {
		return fmt.Errorf("%w: quantity must be in [1, 999]", engineerr.ErrValidation)
	}
	if t.BrokerName == "" {
		return fmt.Errorf("%w: brokerName is required", engineerr.ErrValidation)
	}
	switch t.OrderKind {
	case OrderKindLimit:
		if t.LimitPrice == nil || *t.LimitPrice <= 0 {
			return fmt.Errorf("%w: limitPrice must be positive for limit orders", engineerr.ErrValidation)
		}
	case OrderKindMarket:
		if t.LimitPrice != nil {
			return fmt.Errorf("%w: limitPrice must be absent for market orders", engineerr.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown orderKind %q", engineerr.ErrValidation, t.OrderKind)
	}
	switch t.Condition {
	case ConditionGE, ConditionLE, ConditionEQ:
	default:
		return fmt.Errorf("%w: unknown condition %q", engineerr.ErrValidation, t.Condition)
	}
	switch t.Action {
	case ActionBuy, ActionSell:
	default:
		return fmt.Errorf("%w: unknown action %q", engineerr.ErrValidation, t.Action)
	}
	if (t.Status == StatusExecuted || t.Status == StatusFailed) && t.ExecutedAt == nil {
		return fmt.Errorf("%w: executedAt required once status is executed/failed", engineerr.ErrValidation)
	}
	if t.Status == StatusTriggered && t.TriggeredAt == nil {
		return fmt.Errorf("%w: triggeredAt required once status is triggered", engineerr.ErrValidation)
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		return fmt.Errorf("%w: updatedAt must not precede createdAt", engineerr.ErrValidation)
	}
	return nil
}

// IsConditionMet evaluates the epsilon-tolerant price comparison.
func (t *Trigger) IsConditionMet(observedPrice, eps float64) bool {
	switch t.Condition {
	case ConditionGE:
		return observedPrice >= t.TriggerPrice-eps
	case ConditionLE:
		return observedPrice <= t.TriggerPrice+eps
	case ConditionEQ:
		diff := observedPrice - t.TriggerPrice
		if diff < 0 {
			diff = -diff
		}
		return diff <= eps
	default:
		return false
	}
}

// IsExpired reports whether the trigger's expiry has passed as of now.
func (t *Trigger) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
