package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrigger() *Trigger {
	now := time.Now().UTC()
	return &Trigger{
		ID:           "t1",
		TenantID:     "tenant1",
		Symbol:       "AAPL",
		Condition:    ConditionGE,
		TriggerPrice: 150,
		Action:       ActionBuy,
		OrderKind:    OrderKindMarket,
		TradeClass:   TradeClassCash,
		Quantity:     10,
		BrokerName:   "demo",
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestTriggerValidate_OK(t *testing.T) {
	tr := validTrigger()
	require.NoError(t, tr.Validate())
}

func TestTriggerValidate_RejectsMissingTenant(t *testing.T) {
	tr := validTrigger()
	tr.TenantID = ""
	assert.Error(t, tr.Validate())
}

func TestTriggerValidate_LimitOrderRequiresLimitPrice(t *testing.T) {
	tr := validTrigger()
	tr.OrderKind = OrderKindLimit
	assert.Error(t, tr.Validate())

	price := 149.5
	tr.LimitPrice = &price
	assert.NoError(t, tr.Validate())
}

func TestTriggerValidate_MarketOrderRejectsLimitPrice(t *testing.T) {
	tr := validTrigger()
	price := 100.0
	tr.LimitPrice = &price
	assert.Error(t, tr.Validate())
}

func TestTriggerValidate_QuantityBounds(t *testing.T) {
	tr := validTrigger()
	tr.Quantity = 0
	assert.Error(t, tr.Validate())
	tr.Quantity = 1000
	assert.Error(t, tr.Validate())
	tr.Quantity = 999
	assert.NoError(t, tr.Validate())
}

func TestIsConditionMet_GreaterEqual(t *testing.T) {
	tr := validTrigger()
	tr.Condition = ConditionGE
	tr.TriggerPrice = 100

	assert.True(t, tr.IsConditionMet(100, 0.01))
	assert.True(t, tr.IsConditionMet(100.5, 0.01))
	assert.True(t, tr.IsConditionMet(99.995, 0.01))
	assert.False(t, tr.IsConditionMet(99, 0.01))
}

func TestIsConditionMet_LessEqual(t *testing.T) {
	tr := validTrigger()
	tr.Condition = ConditionLE
	tr.TriggerPrice = 100

	assert.True(t, tr.IsConditionMet(100, 0.01))
	assert.True(t, tr.IsConditionMet(99.5, 0.01))
	assert.False(t, tr.IsConditionMet(101, 0.01))
}

func TestIsConditionMet_Equal(t *testing.T) {
	tr := validTrigger()
	tr.Condition = ConditionEQ
	tr.TriggerPrice = 100

	assert.True(t, tr.IsConditionMet(100, 0.01))
	assert.True(t, tr.IsConditionMet(100.009, 0.01))
	assert.False(t, tr.IsConditionMet(100.5, 0.01))
}

func TestIsExpired(t *testing.T) {
	tr := validTrigger()
	assert.False(t, tr.IsExpired(time.Now()))

	past := time.Now().Add(-time.Hour)
	tr.ExpiresAt = &past
	assert.True(t, tr.IsExpired(time.Now()))

	future := time.Now().Add(time.Hour)
	tr.ExpiresAt = &future
	assert.False(t, tr.IsExpired(time.Now()))
}
