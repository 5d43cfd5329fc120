// Package identity issues and resolves the opaque API keys tenants use
// to authenticate against the engine's management surface.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aristath/trigger-engine/internal/domain"
)

// apiKeyPrefix marks every issued key as belonging to this engine, the
// same way Stripe/GitHub-style tokens self-identify their source.
const apiKeyPrefix = "sk-"

// Store is the persistence seam identity depends on.
type Store interface {
	PutIdentity(identity *domain.TenantIdentity) error
	GetIdentity(tenantID string) (*domain.TenantIdentity, error)
	TenantByAPIKey(apiKey string) (string, error)
}

// Manager issues and resolves tenant API keys.
type Manager struct {
	store Store
}

// New builds a Manager over the given store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Issue generates a fresh key for tenantID, replacing any existing one.
func (m *Manager) Issue(tenantID string, allowedDelegateIDs []string) (*domain.TenantIdentity, error) {
	key, err := newAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	identity := &domain.TenantIdentity{
		TenantID:           tenantID,
		APIKey:             key,
		APIKeyCreatedAt:    time.Now().UTC(),
		AllowedDelegateIDs: allowedDelegateIDs,
	}
	if err := m.store.PutIdentity(identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Resolve maps an API key back to its owning tenant.
func (m *Manager) Resolve(apiKey string) (string, error) {
	return m.store.TenantByAPIKey(apiKey)
}

// newAPIKey generates a 256-bit, URL-safe, sk-prefixed token. No pack
// library does high-entropy URL-safe tokens more directly than
// crypto/rand + base64, so this one concern stays on the standard
// library rather than reaching for a dependency that adds nothing.
func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
