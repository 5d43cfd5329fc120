package janitor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trigger-engine/internal/domain"
)

type memStore struct {
	triggers []*domain.Trigger
	deleted  []string
}

func (m *memStore) ListAllTriggers() ([]*domain.Trigger, error) { return m.triggers, nil }

func (m *memStore) DeleteTrigger(tenantID, triggerID string) error {
	m.deleted = append(m.deleted, triggerID)
	return nil
}

func trigger(id string, status domain.Status, updatedAt time.Time) *domain.Trigger {
	return &domain.Trigger{ID: id, TenantID: "tenant1", Status: status, UpdatedAt: updatedAt, CreatedAt: updatedAt}
}

func TestSweep_DeletesOnlyOldTerminalTriggers(t *testing.T) {
	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now().AddDate(0, 0, -1)

	s := &memStore{triggers: []*domain.Trigger{
		trigger("old-executed", domain.StatusExecuted, old),
		trigger("recent-executed", domain.StatusExecuted, recent),
		trigger("old-active", domain.StatusActive, old),
		trigger("old-cancelled", domain.StatusCancelled, old),
	}}

	j := New(s, 30, zerolog.Nop())
	removed, err := j.Sweep()
	require.NoError(t, err)

	assert.Equal(t, 2, removed)
	assert.ElementsMatch(t, []string{"old-executed", "old-cancelled"}, s.deleted)
}

func TestSweep_NoOpWhenNothingEligible(t *testing.T) {
	s := &memStore{triggers: []*domain.Trigger{
		trigger("active", domain.StatusActive, time.Now()),
	}}
	j := New(s, 30, zerolog.Nop())
	removed, err := j.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Empty(t, s.deleted)
}
