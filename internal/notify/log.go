package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// LogNotifier records every event as a structured log line. It is the
// engine's default and only built-in delivery channel; a real chat or
// email integration would implement Notifier the same way this does.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier builds a notifier that logs through log.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	payload, _ := json.Marshal(event.Trigger)
	n.log.Info().
		Str("kind", string(event.Kind)).
		Str("tenantId", event.Trigger.TenantID).
		Str("triggerId", event.Trigger.ID).
		Float64("observedPrice", event.ObservedPrice).
		Str("message", event.Message).
		RawJSON("trigger", payload).
		Msg("trigger notification")
}
