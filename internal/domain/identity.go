package domain

import "time"

// TenantIdentity binds an API key to the tenant directory it authorizes
// access to. One tenant may hold at most one active key; rotation
// replaces it rather than appending a second.
type TenantIdentity struct {
	TenantID        string    `json:"tenantId"`
	APIKey          string    `json:"apiKey"`
	APIKeyCreatedAt time.Time `json:"apiKeyCreatedAt"`

	// AllowedDelegateIDs lists additional principals (e.g. a chat bot's
	// user id) permitted to act on this tenant's behalf. The engine
	// itself never interprets delegate identity beyond membership.
	AllowedDelegateIDs []string `json:"allowedDelegateIds,omitempty"`
}
