package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Moof29/batchly/internal/models"
)

// CreateSyncOperation inserts a new queued operation
func (s *PostgresStore) CreateSyncOperation(ctx context.Context, op *models.SyncOperation) error {
	request, err := marshalJSON(op.RequestPayload)
	if err != nil {
		return err
	}
	response, err := marshalJSON(op.ResponsePayload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sync_operations (id, organization_id, entity_type, entity_id,
			operation_kind, direction, status, external_id, request_payload,
			response_payload, retry_count, error_message, scheduled_at,
			started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())`

	_, err = s.db.ExecContext(ctx, query,
		op.ID, op.OrganizationID, op.EntityType, op.EntityID,
		op.Kind, op.Direction, op.Status, nullString(op.ExternalID), request,
		response, op.RetryCount, nullString(op.ErrorMessage), op.ScheduledAt,
		op.StartedAt, op.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync operation: %w", err)
	}
	return nil
}

// UpdateSyncOperation persists state-machine progress for an operation
func (s *PostgresStore) UpdateSyncOperation(ctx context.Context, op *models.SyncOperation) error {
	request, err := marshalJSON(op.RequestPayload)
	if err != nil {
		return err
	}
	response, err := marshalJSON(op.ResponsePayload)
	if err != nil {
		return err
	}

	query := `
		UPDATE sync_operations
		SET status = $3, external_id = $4, request_payload = $5, response_payload = $6,
			retry_count = $7, error_message = $8, started_at = $9, completed_at = $10,
			updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`

	_, err = s.db.ExecContext(ctx, query,
		op.OrganizationID, op.ID, op.Status, nullString(op.ExternalID), request, response,
		op.RetryCount, nullString(op.ErrorMessage), op.StartedAt, op.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update sync operation: %w", err)
	}
	return nil
}

// GetSyncOperation retrieves one operation by id
func (s *PostgresStore) GetSyncOperation(ctx context.Context, orgID, id string) (*models.SyncOperation, error) {
	query := selectOperationQuery + " WHERE organization_id = $1 AND id = $2"

	row := s.db.QueryRowContext(ctx, query, orgID, id)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync operation: %w", err)
	}
	return op, nil
}

// ListPendingOperations returns pending operations oldest-scheduled first
func (s *PostgresStore) ListPendingOperations(ctx context.Context, orgID string, limit int) ([]*models.SyncOperation, error) {
	query := selectOperationQuery + `
		WHERE organization_id = $1 AND status = $2
		ORDER BY scheduled_at ASC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, orgID, models.OpStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// ListOperations returns recent operations, optionally filtered by status
func (s *PostgresStore) ListOperations(ctx context.Context, orgID string, status models.OperationStatus, limit int) ([]*models.SyncOperation, error) {
	query := selectOperationQuery + " WHERE organization_id = $1"
	args := []interface{}{orgID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY scheduled_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

const selectOperationQuery = `
	SELECT id, organization_id, entity_type, entity_id, operation_kind,
		direction, status, external_id, request_payload, response_payload,
		retry_count, error_message, scheduled_at, started_at, completed_at,
		created_at, updated_at
	FROM sync_operations`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*models.SyncOperation, error) {
	var op models.SyncOperation
	var externalID, errorMessage sql.NullString
	var request, response []byte
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&op.ID, &op.OrganizationID, &op.EntityType, &op.EntityID, &op.Kind,
		&op.Direction, &op.Status, &externalID, &request, &response,
		&op.RetryCount, &errorMessage, &op.ScheduledAt, &startedAt, &completedAt,
		&op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	op.ExternalID = externalID.String
	op.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		op.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		op.CompletedAt = &completedAt.Time
	}
	if op.RequestPayload, err = unmarshalJSON(request); err != nil {
		return nil, err
	}
	if op.ResponsePayload, err = unmarshalJSON(response); err != nil {
		return nil, err
	}
	return &op, nil
}

func scanOperations(rows *sql.Rows) ([]*models.SyncOperation, error) {
	var ops []*models.SyncOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// GetEntityMapping resolves the remote id for a local record, if any
func (s *PostgresStore) GetEntityMapping(ctx context.Context, orgID string, entityType models.EntityType, localID string) (*models.EntityMapping, error) {
	query := `
		SELECT id, organization_id, entity_type, local_id, external_id,
			last_local_update_at, last_external_update_at, created_at, updated_at
		FROM entity_mappings
		WHERE organization_id = $1 AND entity_type = $2 AND local_id = $3`

	var m models.EntityMapping
	var lastLocal, lastExternal sql.NullTime
	err := s.db.QueryRowContext(ctx, query, orgID, entityType, localID).Scan(
		&m.ID, &m.OrganizationID, &m.EntityType, &m.LocalID, &m.ExternalID,
		&lastLocal, &lastExternal, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity mapping: %w", err)
	}
	if lastLocal.Valid {
		m.LastLocalUpdateAt = &lastLocal.Time
	}
	if lastExternal.Valid {
		m.LastExternalUpdateAt = &lastExternal.Time
	}
	return &m, nil
}

// UpsertEntityMapping is idempotent on (organization, entity_type, local_id)
func (s *PostgresStore) UpsertEntityMapping(ctx context.Context, mapping *models.EntityMapping) error {
	query := `
		INSERT INTO entity_mappings (id, organization_id, entity_type, local_id,
			external_id, last_local_update_at, last_external_update_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (organization_id, entity_type, local_id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			last_local_update_at = EXCLUDED.last_local_update_at,
			last_external_update_at = EXCLUDED.last_external_update_at,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		mapping.ID, mapping.OrganizationID, mapping.EntityType, mapping.LocalID,
		mapping.ExternalID, mapping.LastLocalUpdateAt, mapping.LastExternalUpdateAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entity mapping: %w", err)
	}
	return nil
}

// ListEntityMappings lists mappings for one entity type
func (s *PostgresStore) ListEntityMappings(ctx context.Context, orgID string, entityType models.EntityType, limit int) ([]*models.EntityMapping, error) {
	query := `
		SELECT id, organization_id, entity_type, local_id, external_id,
			last_local_update_at, last_external_update_at, created_at, updated_at
		FROM entity_mappings
		WHERE organization_id = $1 AND entity_type = $2
		ORDER BY updated_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, orgID, entityType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.EntityMapping
	for rows.Next() {
		var m models.EntityMapping
		var lastLocal, lastExternal sql.NullTime
		if err := rows.Scan(
			&m.ID, &m.OrganizationID, &m.EntityType, &m.LocalID, &m.ExternalID,
			&lastLocal, &lastExternal, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity mapping: %w", err)
		}
		if lastLocal.Valid {
			m.LastLocalUpdateAt = &lastLocal.Time
		}
		if lastExternal.Valid {
			m.LastExternalUpdateAt = &lastExternal.Time
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

// UpsertSyncError dedupes on (organization, category, message): a repeat
// occurrence bumps the counter instead of inserting a new row.
func (s *PostgresStore) UpsertSyncError(ctx context.Context, syncErr *models.SyncError) error {
	query := `
		INSERT INTO sync_errors (id, organization_id, category, message,
			occurrence_count, last_occurred_at, is_resolved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, FALSE, NOW(), NOW())
		ON CONFLICT (organization_id, category, message) DO UPDATE SET
			occurrence_count = sync_errors.occurrence_count + 1,
			last_occurred_at = EXCLUDED.last_occurred_at,
			is_resolved = FALSE,
			resolved_at = NULL,
			updated_at = NOW()`

	lastOccurred := syncErr.LastOccurredAt
	if lastOccurred.IsZero() {
		lastOccurred = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		syncErr.ID, syncErr.OrganizationID, syncErr.Category, syncErr.Message, lastOccurred)
	if err != nil {
		return fmt.Errorf("failed to upsert sync error: %w", err)
	}
	return nil
}

// ResolveSyncError marks an error row resolved
func (s *PostgresStore) ResolveSyncError(ctx context.Context, orgID, id string) error {
	query := `
		UPDATE sync_errors
		SET is_resolved = TRUE, resolved_at = NOW(), updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`

	res, err := s.db.ExecContext(ctx, query, orgID, id)
	if err != nil {
		return fmt.Errorf("failed to resolve sync error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListSyncErrors lists error rows, most recent first
func (s *PostgresStore) ListSyncErrors(ctx context.Context, orgID string, unresolvedOnly bool, limit int) ([]*models.SyncError, error) {
	query := `
		SELECT id, organization_id, category, message, occurrence_count,
			last_occurred_at, is_resolved, resolved_at, created_at, updated_at
		FROM sync_errors
		WHERE organization_id = $1`
	if unresolvedOnly {
		query += " AND is_resolved = FALSE"
	}
	query += " ORDER BY last_occurred_at DESC LIMIT $2"

	rows, err := s.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync errors: %w", err)
	}
	defer rows.Close()

	var syncErrs []*models.SyncError
	for rows.Next() {
		var e models.SyncError
		var resolvedAt sql.NullTime
		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.Category, &e.Message, &e.OccurrenceCount,
			&e.LastOccurredAt, &e.IsResolved, &resolvedAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync error: %w", err)
		}
		if resolvedAt.Valid {
			e.ResolvedAt = &resolvedAt.Time
		}
		syncErrs = append(syncErrs, &e)
	}
	return syncErrs, rows.Err()
}

// InsertSyncHistory appends one batch outcome row
func (s *PostgresStore) InsertSyncHistory(ctx context.Context, history *models.SyncHistory) error {
	query := `
		INSERT INTO sync_history (id, organization_id, entity_type, direction,
			status, records_processed, records_created, records_updated,
			records_failed, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`

	_, err := s.db.ExecContext(ctx, query,
		history.ID, history.OrganizationID, history.EntityType, history.Direction,
		history.Status, history.RecordsProcessed, history.RecordsCreated,
		history.RecordsUpdated, history.RecordsFailed, history.StartedAt, history.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sync history: %w", err)
	}
	return nil
}

// InsertSyncMetrics appends a batch of timing rows as a single statement
func (s *PostgresStore) InsertSyncMetrics(ctx context.Context, batch []*models.SyncMetric) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_metrics (id, organization_id, category, operation,
			entity_type, success, duration_ms, error_message, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("failed to prepare metrics statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range batch {
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.OrganizationID, m.Category, m.Operation, m.EntityType,
			m.Success, m.DurationMS, nullString(m.ErrorMessage), m.RecordedAt,
		); err != nil {
			return fmt.Errorf("failed to insert sync metric: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics batch: %w", err)
	}
	return nil
}

// InsertJournalEntries appends a batch of change journal rows
func (s *PostgresStore) InsertJournalEntries(ctx context.Context, entries []*models.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO change_journal (id, organization_id, entity_type, entity_id,
			operation_type, before_state, after_state, actor, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return fmt.Errorf("failed to prepare journal statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		before, err := marshalJSON(e.Before)
		if err != nil {
			return err
		}
		after, err := marshalJSON(e.After)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.OrganizationID, e.EntityType, e.EntityID, e.OperationType,
			before, after, e.Actor, e.Source, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal batch: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
