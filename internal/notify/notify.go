// Package notify defines the seam through which the dispatcher reports
// what happened to a trigger. Real delivery channels (chat, email, SMS)
// live outside this module; the engine ships only a logging notifier.
package notify

import (
	"context"

	"github.com/aristath/trigger-engine/internal/domain"
)

// Kind categorizes a notification so a delivery channel can route or
// filter on it without parsing Message.
type Kind string

const (
	KindExecuted Kind = "EXECUTED"
	KindFailed   Kind = "FAILED"
)

// Event is one notification about a trigger's outcome. ObservedPrice is
// the price that satisfied the trigger's condition, distinct from
// whatever fill price the broker ultimately reports.
type Event struct {
	Kind          Kind
	Trigger       *domain.Trigger
	ObservedPrice float64
	Message       string
}

// Notifier delivers Events somewhere a tenant will see them.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}
