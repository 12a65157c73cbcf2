package models

import "time"

// EntityRecord is the sync-relevant projection of a business record
// (customer, vendor, item, invoice, bill, payment). Business columns beyond
// these live outside this engine; Fields carries the payload-relevant rest.
type EntityRecord struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	EntityType     EntityType             `json:"entity_type"`
	DisplayName    string                 `json:"display_name"`
	SyncStatus     SyncStatus             `json:"sync_status"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
