package models

import "time"

// Connection holds the ledger credentials for one tenant organization.
// Rows are created by the OAuth handshake service; this engine only reads
// them, refreshes tokens and flips the active flag. Connections are never
// physically deleted.
type Connection struct {
	BaseModel
	OrganizationID  string     `json:"organization_id"`
	RealmID         string     `json:"realm_id"`
	AccessToken     string     `json:"-"`
	RefreshToken    string     `json:"-"`
	TokenExpiresAt  time.Time  `json:"token_expires_at"`
	IsActive        bool       `json:"is_active"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
}

// TokenExpiresWithin reports whether the access token expires within margin.
func (c *Connection) TokenExpiresWithin(margin time.Duration) bool {
	return time.Until(c.TokenExpiresAt) <= margin
}
