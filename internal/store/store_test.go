package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trigger-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(root, 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func sampleTrigger(tenantID, id string) *domain.Trigger {
	now := time.Now().UTC()
	return &domain.Trigger{
		ID:           id,
		TenantID:     tenantID,
		Symbol:       "AAPL",
		Condition:    domain.ConditionGE,
		TriggerPrice: 150,
		Action:       domain.ActionBuy,
		OrderKind:    domain.OrderKindMarket,
		TradeClass:   domain.TradeClassCash,
		Quantity:     5,
		BrokerName:   "demo",
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSaveAndGetTrigger(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTrigger("tenant1", "trig1")

	require.NoError(t, s.SaveTrigger(tr))

	got, err := s.GetTrigger("tenant1", "trig1")
	require.NoError(t, err)
	assert.Equal(t, tr.Symbol, got.Symbol)
	assert.Equal(t, tr.Status, got.Status)
}

func TestGetTrigger_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTrigger("tenant1", "nope")
	assert.Error(t, err)
}

func TestGetTriggerByID_UsesIndex(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTrigger("tenant1", "trig1")
	require.NoError(t, s.SaveTrigger(tr))

	got, err := s.GetTriggerByID("trig1")
	require.NoError(t, err)
	assert.Equal(t, "tenant1", got.TenantID)
}

func TestListTenantTriggers_SkipsCorruptRecords(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTrigger(sampleTrigger("tenant1", "good")))

	badPath := s.triggerPath("tenant1", "bad")
	require.NoError(t, os.MkdirAll(filepath.Dir(badPath), 0o755))
	require.NoError(t, os.WriteFile(badPath, []byte("{not json"), 0o644))

	triggers, err := s.ListTenantTriggers("tenant1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "good", triggers[0].ID)
}

func TestDeleteTrigger(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTrigger("tenant1", "trig1")
	require.NoError(t, s.SaveTrigger(tr))

	require.NoError(t, s.DeleteTrigger("tenant1", "trig1"))

	_, err := s.GetTrigger("tenant1", "trig1")
	assert.Error(t, err)
	_, err = s.GetTriggerByID("trig1")
	assert.Error(t, err)
}

func TestListByStatus(t *testing.T) {
	s := newTestStore(t)
	active := sampleTrigger("tenant1", "active1")
	cancelled := sampleTrigger("tenant1", "cancelled1")
	cancelled.Status = domain.StatusCancelled
	require.NoError(t, s.SaveTrigger(active))
	require.NoError(t, s.SaveTrigger(cancelled))

	got, err := s.ListByStatus(domain.StatusActive)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "active1", got[0].ID)
}

func TestAppendLog_IsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	entry := &domain.OrderLog{
		ID:           "log1",
		TriggerID:    "trig1",
		TenantID:     "tenant1",
		Action:       domain.LogActionCreated,
		Success:      true,
		TriggerPrice: 150,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.AppendLog(entry))

	entry2 := *entry
	entry2.ID = "log2"
	entry2.Action = domain.LogActionTriggered
	require.NoError(t, s.AppendLog(&entry2))

	logs, err := s.ListLogsFor("tenant1", "trig1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.LogActionCreated, logs[0].Action)
	assert.Equal(t, domain.LogActionTriggered, logs[1].Action)
}

func TestPutAndResolveIdentity(t *testing.T) {
	s := newTestStore(t)
	identity := &domain.TenantIdentity{
		TenantID:        "tenant1",
		APIKey:          "sk-abc123",
		APIKeyCreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutIdentity(identity))

	tenantID, err := s.TenantByAPIKey("sk-abc123")
	require.NoError(t, err)
	assert.Equal(t, "tenant1", tenantID)
}

func TestPutIdentity_RotationEvictsOldKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutIdentity(&domain.TenantIdentity{
		TenantID:        "tenant1",
		APIKey:          "sk-old",
		APIKeyCreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.PutIdentity(&domain.TenantIdentity{
		TenantID:        "tenant1",
		APIKey:          "sk-new",
		APIKeyCreatedAt: time.Now().UTC(),
	}))

	tenantID, err := s.TenantByAPIKey("sk-new")
	require.NoError(t, err)
	assert.Equal(t, "tenant1", tenantID)

	_, err = s.TenantByAPIKey("sk-old")
	assert.Error(t, err, "the key replaced by rotation must no longer resolve")
}

func TestTenantByAPIKey_BuildsIndexFromDiskOnFreshStore(t *testing.T) {
	root := t.TempDir()
	s1, err := New(root, 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.PutIdentity(&domain.TenantIdentity{
		TenantID:        "tenant1",
		APIKey:          "sk-persisted",
		APIKeyCreatedAt: time.Now().UTC(),
	}))

	s2, err := New(root, 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	tenantID, err := s2.TenantByAPIKey("sk-persisted")
	require.NoError(t, err)
	assert.Equal(t, "tenant1", tenantID)
}

func TestSaveTrigger_ConcurrentWritesSameTenantDoNotCorrupt(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "concurrent"
			tr := sampleTrigger("tenant1", id)
			tr.Quantity = i%999 + 1
			_ = s.SaveTrigger(tr)
		}(i)
	}
	wg.Wait()

	got, err := s.GetTrigger("tenant1", "concurrent")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
