package domain

import "time"

// OrderLog is one append-only entry recording something that happened to
// a trigger: a state transition, a failed attempt, an edit. Entries are
// never rewritten or deleted once appended.
type OrderLog struct {
	ID        string    `json:"id"`
	TriggerID string    `json:"triggerId"`
	TenantID  string    `json:"tenantId"`
	Action    LogAction `json:"action"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`

	TriggerPrice   float64  `json:"triggerPrice"`
	ObservedPrice  *float64 `json:"observedPrice,omitempty"`
	ExecutionPrice *float64 `json:"executionPrice,omitempty"`
	BrokerOrderRef *string  `json:"brokerOrderRef,omitempty"`

	// Extra carries action-specific detail (e.g. a diff of changed fields
	// on an "updated" entry) without widening the struct for every caller.
	Extra map[string]any `json:"extra,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
