// Package janitor hard-deletes triggers that have sat in a terminal
// status past their retention window. It runs only when a caller invokes
// Sweep; nothing in the engine schedules it automatically.
package janitor

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trigger-engine/internal/domain"
)

// Store is the persistence seam the janitor depends on.
type Store interface {
	ListAllTriggers() ([]*domain.Trigger, error)
	DeleteTrigger(tenantID, triggerID string) error
}

// Janitor sweeps terminal-status triggers older than a retention window.
type Janitor struct {
	store         Store
	retentionDays int
	log           zerolog.Logger
}

// New builds a Janitor with the given retention window.
func New(store Store, retentionDays int, log zerolog.Logger) *Janitor {
	return &Janitor{
		store:         store,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "janitor").Logger(),
	}
}

// Sweep deletes every terminal-status trigger last updated before the
// retention cutoff, returning the number removed.
func (j *Janitor) Sweep() (int, error) {
	triggers, err := j.store.ListAllTriggers()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	removed := 0
	for _, t := range triggers {
		if !t.Status.IsTerminal() || t.UpdatedAt.After(cutoff) {
			continue
		}
		if err := j.store.DeleteTrigger(t.TenantID, t.ID); err != nil {
			j.log.Error().Err(err).Str("triggerId", t.ID).Msg("failed to delete expired trigger record")
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("retention sweep complete")
	}
	return removed, nil
}
