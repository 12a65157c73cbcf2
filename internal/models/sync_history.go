package models

import "time"

// SyncHistory is an append-only record of one batch drain outcome.
type SyncHistory struct {
	BaseModel
	OrganizationID   string        `json:"organization_id"`
	EntityType       EntityType    `json:"entity_type"`
	Direction        SyncDirection `json:"direction"`
	Status           string        `json:"status"`
	RecordsProcessed int           `json:"records_processed"`
	RecordsCreated   int           `json:"records_created"`
	RecordsUpdated   int           `json:"records_updated"`
	RecordsFailed    int           `json:"records_failed"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// SyncMetric is an append-only per-operation timing record.
type SyncMetric struct {
	BaseModel
	OrganizationID string     `json:"organization_id"`
	Category       string     `json:"category"`
	Operation      string     `json:"operation"`
	EntityType     EntityType `json:"entity_type"`
	Success        bool       `json:"success"`
	DurationMS     int64      `json:"duration_ms"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RecordedAt     time.Time  `json:"recorded_at"`
}
