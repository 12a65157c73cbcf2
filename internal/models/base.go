package models

import "time"

// BaseModel contains common fields for all database models
type BaseModel struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncStatus is the per-record sync state kept on every entity row.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// SyncDirection controls which way changes flow for an entity type.
type SyncDirection string

const (
	DirectionToRemote      SyncDirection = "to_remote"
	DirectionFromRemote    SyncDirection = "from_remote"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// Allows reports whether a config direction permits an operation direction.
func (d SyncDirection) Allows(op SyncDirection) bool {
	return d == DirectionBidirectional || d == op
}
