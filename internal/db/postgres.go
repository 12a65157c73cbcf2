package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Moof29/batchly/internal/models"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// PostgresStore implements Store over a Postgres connection using row-level
// CRUD only; no stored procedures or multi-statement transactions are
// assumed beyond single-batch inserts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "internal/db/migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func marshalJSON(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return data, nil
}

func unmarshalJSON(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return m, nil
}

// GetConnection retrieves the ledger connection for an organization
func (s *PostgresStore) GetConnection(ctx context.Context, orgID string) (*models.Connection, error) {
	query := `
		SELECT id, organization_id, realm_id, access_token, refresh_token,
			token_expires_at, is_active, last_connected_at, last_sync_at,
			created_at, updated_at
		FROM ledger_connections
		WHERE organization_id = $1`

	var c models.Connection
	var lastConnected, lastSync sql.NullTime
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&c.ID, &c.OrganizationID, &c.RealmID, &c.AccessToken, &c.RefreshToken,
		&c.TokenExpiresAt, &c.IsActive, &lastConnected, &lastSync,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if lastConnected.Valid {
		c.LastConnectedAt = &lastConnected.Time
	}
	if lastSync.Valid {
		c.LastSyncAt = &lastSync.Time
	}
	return &c, nil
}

// SaveConnection inserts or replaces the connection for an organization
func (s *PostgresStore) SaveConnection(ctx context.Context, conn *models.Connection) error {
	query := `
		INSERT INTO ledger_connections (id, organization_id, realm_id, access_token, refresh_token,
			token_expires_at, is_active, last_connected_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (organization_id) DO UPDATE SET
			realm_id = EXCLUDED.realm_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			is_active = EXCLUDED.is_active,
			last_connected_at = EXCLUDED.last_connected_at,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		conn.ID, conn.OrganizationID, conn.RealmID, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiresAt, conn.IsActive, conn.LastConnectedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// UpdateConnectionTokens persists a refreshed credential pair
func (s *PostgresStore) UpdateConnectionTokens(ctx context.Context, orgID, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE ledger_connections
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = NOW()
		WHERE organization_id = $1`

	_, err := s.db.ExecContext(ctx, query, orgID, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update connection tokens: %w", err)
	}
	return nil
}

// DeactivateConnection flips the active flag; connections are never deleted
func (s *PostgresStore) DeactivateConnection(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ledger_connections SET is_active = FALSE, updated_at = NOW() WHERE organization_id = $1",
		orgID)
	if err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}
	return nil
}

// ListActiveConnections returns all connections with the active flag set
func (s *PostgresStore) ListActiveConnections(ctx context.Context) ([]*models.Connection, error) {
	query := `
		SELECT id, organization_id, realm_id, access_token, refresh_token,
			token_expires_at, is_active, last_connected_at, last_sync_at,
			created_at, updated_at
		FROM ledger_connections
		WHERE is_active = TRUE
		ORDER BY organization_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		var c models.Connection
		var lastConnected, lastSync sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.RealmID, &c.AccessToken, &c.RefreshToken,
			&c.TokenExpiresAt, &c.IsActive, &lastConnected, &lastSync,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		if lastConnected.Valid {
			c.LastConnectedAt = &lastConnected.Time
		}
		if lastSync.Valid {
			c.LastSyncAt = &lastSync.Time
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

// GetEntityConfig retrieves the sync policy for one (organization, entity type)
func (s *PostgresStore) GetEntityConfig(ctx context.Context, orgID string, entityType models.EntityType) (*models.EntityConfig, error) {
	query := `
		SELECT id, organization_id, entity_type, is_enabled, sync_direction,
			priority, dependency_order, batch_size, frequency_minutes,
			created_at, updated_at
		FROM entity_sync_configs
		WHERE organization_id = $1 AND entity_type = $2`

	var c models.EntityConfig
	err := s.db.QueryRowContext(ctx, query, orgID, entityType).Scan(
		&c.ID, &c.OrganizationID, &c.EntityType, &c.IsEnabled, &c.Direction,
		&c.Priority, &c.DependencyOrder, &c.BatchSize, &c.FrequencyMins,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity config: %w", err)
	}
	return &c, nil
}

// ListEntityConfigs lists configs ordered by dependency order then priority
func (s *PostgresStore) ListEntityConfigs(ctx context.Context, orgID string) ([]*models.EntityConfig, error) {
	query := `
		SELECT id, organization_id, entity_type, is_enabled, sync_direction,
			priority, dependency_order, batch_size, frequency_minutes,
			created_at, updated_at
		FROM entity_sync_configs
		WHERE organization_id = $1
		ORDER BY dependency_order ASC, priority DESC`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.EntityConfig
	for rows.Next() {
		var c models.EntityConfig
		if err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.EntityType, &c.IsEnabled, &c.Direction,
			&c.Priority, &c.DependencyOrder, &c.BatchSize, &c.FrequencyMins,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity config: %w", err)
		}
		configs = append(configs, &c)
	}
	return configs, rows.Err()
}

// UpdateEntityConfig patches an operator-edited sync policy
func (s *PostgresStore) UpdateEntityConfig(ctx context.Context, cfg *models.EntityConfig) error {
	query := `
		UPDATE entity_sync_configs
		SET is_enabled = $2, sync_direction = $3, priority = $4,
			dependency_order = $5, batch_size = $6, frequency_minutes = $7,
			updated_at = NOW()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		cfg.ID, cfg.IsEnabled, cfg.Direction, cfg.Priority,
		cfg.DependencyOrder, cfg.BatchSize, cfg.FrequencyMins)
	if err != nil {
		return fmt.Errorf("failed to update entity config: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetEntityRecord retrieves the sync-relevant projection of one business record
func (s *PostgresStore) GetEntityRecord(ctx context.Context, orgID string, entityType models.EntityType, id string) (*models.EntityRecord, error) {
	desc := models.Descriptor(entityType)
	query := fmt.Sprintf(`
		SELECT id, organization_id, display_name, sync_status, payload, updated_at
		FROM %s
		WHERE organization_id = $1 AND id = $2`, desc.Table)

	var r models.EntityRecord
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, orgID, id).Scan(
		&r.ID, &r.OrganizationID, &r.DisplayName, &r.SyncStatus, &payload, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record: %w", entityType, err)
	}
	r.EntityType = entityType
	if r.Fields, err = unmarshalJSON(payload); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListEntityRecords retrieves records by id; with no ids it returns nothing
func (s *PostgresStore) ListEntityRecords(ctx context.Context, orgID string, entityType models.EntityType, ids []string) ([]*models.EntityRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	desc := models.Descriptor(entityType)
	query := fmt.Sprintf(`
		SELECT id, organization_id, display_name, sync_status, payload, updated_at
		FROM %s
		WHERE organization_id = $1 AND id = ANY($2)`, desc.Table)

	rows, err := s.db.QueryContext(ctx, query, orgID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", entityType, err)
	}
	defer rows.Close()

	return scanEntityRecords(rows, entityType)
}

// SampleEntityRecords returns up to limit most-recently-updated records,
// used by the reconciliation reporter.
func (s *PostgresStore) SampleEntityRecords(ctx context.Context, orgID string, entityType models.EntityType, limit int) ([]*models.EntityRecord, error) {
	desc := models.Descriptor(entityType)
	query := fmt.Sprintf(`
		SELECT id, organization_id, display_name, sync_status, payload, updated_at
		FROM %s
		WHERE organization_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`, desc.Table)

	rows, err := s.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s records: %w", entityType, err)
	}
	defer rows.Close()

	return scanEntityRecords(rows, entityType)
}

func scanEntityRecords(rows *sql.Rows, entityType models.EntityType) ([]*models.EntityRecord, error) {
	var records []*models.EntityRecord
	for rows.Next() {
		var r models.EntityRecord
		var payload []byte
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.DisplayName, &r.SyncStatus, &payload, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity record: %w", err)
		}
		r.EntityType = entityType
		fields, err := unmarshalJSON(payload)
		if err != nil {
			return nil, err
		}
		r.Fields = fields
		records = append(records, &r)
	}
	return records, rows.Err()
}

// UpdateEntitySyncStatus sets the per-record sync status field
func (s *PostgresStore) UpdateEntitySyncStatus(ctx context.Context, orgID string, entityType models.EntityType, id string, status models.SyncStatus) error {
	desc := models.Descriptor(entityType)
	query := fmt.Sprintf(`
		UPDATE %s SET sync_status = $3, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`, desc.Table)

	_, err := s.db.ExecContext(ctx, query, orgID, id, status)
	if err != nil {
		return fmt.Errorf("failed to update %s sync status: %w", entityType, err)
	}
	return nil
}
