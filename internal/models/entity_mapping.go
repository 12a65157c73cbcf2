package models

import "time"

// EntityMapping is the durable correspondence between a local record and its
// remote ledger identifier. A missing mapping always means the next sync
// attempt is a create; it never implies prior remote state.
type EntityMapping struct {
	BaseModel
	OrganizationID       string     `json:"organization_id"`
	EntityType           EntityType `json:"entity_type"`
	LocalID              string     `json:"local_id"`
	ExternalID           string     `json:"external_id"`
	LastLocalUpdateAt    *time.Time `json:"last_local_update_at,omitempty"`
	LastExternalUpdateAt *time.Time `json:"last_external_update_at,omitempty"`
}
