package models

// EntityConfig is the operator-edited sync policy for one
// (organization, entity type) pair.
type EntityConfig struct {
	BaseModel
	OrganizationID  string        `json:"organization_id"`
	EntityType      EntityType    `json:"entity_type"`
	IsEnabled       bool          `json:"is_enabled"`
	Direction       SyncDirection `json:"sync_direction"`
	Priority        int           `json:"priority"`
	DependencyOrder int           `json:"dependency_order"`
	BatchSize       int           `json:"batch_size"`
	FrequencyMins   int           `json:"frequency_minutes"`
}
