package models

import "time"

// SyncError is a deduplicated, counted catalog row of a recurring failure.
// Rows are keyed by (organization, category, message): repeat occurrences
// bump the counter instead of inserting duplicates.
type SyncError struct {
	BaseModel
	OrganizationID  string     `json:"organization_id"`
	Category        string     `json:"category"`
	Message         string     `json:"message"`
	OccurrenceCount int        `json:"occurrence_count"`
	LastOccurredAt  time.Time  `json:"last_occurred_at"`
	IsResolved      bool       `json:"is_resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}
