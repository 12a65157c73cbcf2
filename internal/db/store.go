package db

import (
	"context"
	"time"

	"github.com/Moof29/batchly/internal/models"
)

// Store defines the interface for database operations. Every row is scoped by
// an organization identifier; there are no shared rows across tenants.
type Store interface {
	// Connection operations
	GetConnection(ctx context.Context, orgID string) (*models.Connection, error)
	SaveConnection(ctx context.Context, conn *models.Connection) error
	UpdateConnectionTokens(ctx context.Context, orgID, accessToken, refreshToken string, expiresAt time.Time) error
	DeactivateConnection(ctx context.Context, orgID string) error
	ListActiveConnections(ctx context.Context) ([]*models.Connection, error)

	// Entity config operations
	GetEntityConfig(ctx context.Context, orgID string, entityType models.EntityType) (*models.EntityConfig, error)
	ListEntityConfigs(ctx context.Context, orgID string) ([]*models.EntityConfig, error)
	UpdateEntityConfig(ctx context.Context, cfg *models.EntityConfig) error

	// Entity record operations
	GetEntityRecord(ctx context.Context, orgID string, entityType models.EntityType, id string) (*models.EntityRecord, error)
	ListEntityRecords(ctx context.Context, orgID string, entityType models.EntityType, ids []string) ([]*models.EntityRecord, error)
	SampleEntityRecords(ctx context.Context, orgID string, entityType models.EntityType, limit int) ([]*models.EntityRecord, error)
	UpdateEntitySyncStatus(ctx context.Context, orgID string, entityType models.EntityType, id string, status models.SyncStatus) error

	// Sync operation operations
	CreateSyncOperation(ctx context.Context, op *models.SyncOperation) error
	UpdateSyncOperation(ctx context.Context, op *models.SyncOperation) error
	GetSyncOperation(ctx context.Context, orgID, id string) (*models.SyncOperation, error)
	ListPendingOperations(ctx context.Context, orgID string, limit int) ([]*models.SyncOperation, error)
	ListOperations(ctx context.Context, orgID string, status models.OperationStatus, limit int) ([]*models.SyncOperation, error)

	// Entity mapping operations
	GetEntityMapping(ctx context.Context, orgID string, entityType models.EntityType, localID string) (*models.EntityMapping, error)
	UpsertEntityMapping(ctx context.Context, mapping *models.EntityMapping) error
	ListEntityMappings(ctx context.Context, orgID string, entityType models.EntityType, limit int) ([]*models.EntityMapping, error)

	// Sync error registry operations
	UpsertSyncError(ctx context.Context, syncErr *models.SyncError) error
	ResolveSyncError(ctx context.Context, orgID, id string) error
	ListSyncErrors(ctx context.Context, orgID string, unresolvedOnly bool, limit int) ([]*models.SyncError, error)

	// History and metrics
	InsertSyncHistory(ctx context.Context, history *models.SyncHistory) error
	InsertSyncMetrics(ctx context.Context, batch []*models.SyncMetric) error

	// Change journal
	InsertJournalEntries(ctx context.Context, entries []*models.JournalEntry) error

	// Generic row operations used by the transaction manager
	GetRow(ctx context.Context, table, keyColumn string, key interface{}) (map[string]interface{}, error)
	InsertRow(ctx context.Context, table string, values map[string]interface{}) error
	UpdateRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error
	DeleteRow(ctx context.Context, table, keyColumn string, key interface{}) error
	UpsertRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error
}
