package models

import "time"

// OperationStatus is the sync operation state machine state.
type OperationStatus string

const (
	OpStatusPending    OperationStatus = "pending"
	OpStatusInProgress OperationStatus = "in_progress"
	OpStatusSuccess    OperationStatus = "success"
	OpStatusFailed     OperationStatus = "failed"
	OpStatusRollback   OperationStatus = "rollback"
	OpStatusConflict   OperationStatus = "conflict"
)

// IsTerminal reports whether the status is final. Terminal operations are
// never mutated again; a retry re-enqueues a fresh operation instead.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case OpStatusSuccess, OpStatusFailed, OpStatusRollback, OpStatusConflict:
		return true
	}
	return false
}

// OperationKind is the mutation a sync operation carries to the ledger.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// SyncOperation is one queued attempt to propagate a single local entity
// change to the remote ledger.
type SyncOperation struct {
	BaseModel
	OrganizationID  string                 `json:"organization_id"`
	EntityType      EntityType             `json:"entity_type"`
	EntityID        string                 `json:"entity_id"`
	Kind            OperationKind          `json:"operation_kind"`
	Direction       SyncDirection          `json:"direction"`
	Status          OperationStatus        `json:"status"`
	ExternalID      string                 `json:"external_id,omitempty"`
	RequestPayload  map[string]interface{} `json:"request_payload,omitempty"`
	ResponsePayload map[string]interface{} `json:"response_payload,omitempty"`
	RetryCount      int                    `json:"retry_count"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	ScheduledAt     time.Time              `json:"scheduled_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}
