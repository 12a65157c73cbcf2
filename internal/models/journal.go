package models

import "time"

// JournalEntry is one append-only before/after audit record of a local
// mutation. The journal is the closest thing the platform has to a commit
// log; entries are queued and flushed in batches.
type JournalEntry struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	EntityType     EntityType             `json:"entity_type"`
	EntityID       string                 `json:"entity_id"`
	OperationType  string                 `json:"operation_type"`
	Before         map[string]interface{} `json:"before,omitempty"`
	After          map[string]interface{} `json:"after,omitempty"`
	Actor          string                 `json:"actor"`
	Source         string                 `json:"source"`
	CreatedAt      time.Time              `json:"created_at"`
}
