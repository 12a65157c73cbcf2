package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/db"
	apperrors "github.com/Moof29/batchly/internal/errors"
	"github.com/Moof29/batchly/internal/journal"
	"github.com/Moof29/batchly/internal/models"
	"github.com/Moof29/batchly/internal/validate"
)

// BatchRequest asks for a batch sync of specific records of one entity type.
type BatchRequest struct {
	OrganizationID string
	EntityType     models.EntityType
	IDs            []string
	Direction      models.SyncDirection
}

// BatchResult reports how many operations a batch request enqueued.
type BatchResult struct {
	Enqueued     int      `json:"enqueued"`
	Skipped      int      `json:"skipped"`
	OperationIDs []string `json:"operation_ids,omitempty"`
}

// Service is the entry point the operator surface talks to: it enqueues
// batch sync requests, drains the pending queue, and owns retry policy.
type Service struct {
	store     db.Store
	processor *Processor
	mappings  *MappingService
	txm       *journal.TxManager
	cfg       *config.SyncConfig
	logger    *logrus.Logger
}

// NewService creates the sync service.
func NewService(
	store db.Store,
	processor *Processor,
	mappings *MappingService,
	txm *journal.TxManager,
	cfg *config.SyncConfig,
	logger *logrus.Logger,
) *Service {
	return &Service{
		store:     store,
		processor: processor,
		mappings:  mappings,
		txm:       txm,
		cfg:       cfg,
		logger:    logger,
	}
}

// RequestBatchSync enumerates the target records, resolves create-vs-update
// per record via the mapping table, and enqueues pending sync operations.
// Records are marked pending through the transaction manager so the status
// flip lands in the change journal.
func (s *Service) RequestBatchSync(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"organization": req.OrganizationID,
		"entity_type":  req.EntityType,
		"requested":    len(req.IDs),
		"direction":    req.Direction,
	})

	if !models.IsKnown(req.EntityType) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown entity type: %s", req.EntityType), nil)
	}
	if req.Direction == "" {
		req.Direction = models.DirectionToRemote
	}

	cfg, err := s.store.GetEntityConfig(ctx, req.OrganizationID, req.EntityType)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity config: %w", err)
	}
	if cfg != nil {
		if !cfg.IsEnabled {
			return nil, apperrors.NewValidationError(fmt.Sprintf("sync is disabled for entity type %s", req.EntityType), nil)
		}
		if !cfg.Direction.Allows(req.Direction) {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("direction %s not allowed for entity type %s (configured %s)", req.Direction, req.EntityType, cfg.Direction), nil)
		}
	}

	batchSize := s.cfg.DefaultBatchSize
	if cfg != nil && cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	ids := req.IDs
	if len(ids) > batchSize {
		logger.WithField("batch_size", batchSize).Warn("Request exceeds batch size, truncating")
		ids = ids[:batchSize]
	}

	records, err := s.store.ListEntityRecords(ctx, req.OrganizationID, req.EntityType, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", req.EntityType, err)
	}

	result := &BatchResult{}
	schema := validate.ForEntity(req.EntityType)
	desc := models.Descriptor(req.EntityType)

	for _, record := range records {
		externalID, found, err := s.mappings.Resolve(ctx, req.OrganizationID, req.EntityType, record.ID)
		if err != nil {
			return nil, err
		}

		kind := models.OpCreate
		if found {
			kind = models.OpUpdate
		}

		op := &models.SyncOperation{
			OrganizationID: req.OrganizationID,
			EntityType:     req.EntityType,
			EntityID:       record.ID,
			Kind:           kind,
			Direction:      req.Direction,
			Status:         models.OpStatusPending,
			ExternalID:     externalID,
			RequestPayload: buildPayload(record, schema),
			ScheduledAt:    time.Now(),
		}
		op.ID = uuid.NewString()

		if err := s.store.CreateSyncOperation(ctx, op); err != nil {
			logger.WithError(err).WithField("entity_id", record.ID).Error("Failed to enqueue sync operation")
			result.Skipped++
			continue
		}

		txResult := s.txm.Run(ctx, []journal.Step{{
			Kind:      journal.StepUpdate,
			Table:     desc.Table,
			KeyColumn: "id",
			Key:       record.ID,
			Values: map[string]interface{}{
				"sync_status": string(models.SyncStatusPending),
				"updated_at":  time.Now(),
			},
		}}, &journal.JournalOptions{
			OrganizationID: req.OrganizationID,
			EntityType:     req.EntityType,
			EntityID:       record.ID,
			Source:         "batch_sync_request",
		})
		if !txResult.Succeeded() {
			logger.WithError(txResult.Err).WithField("entity_id", record.ID).Warn("Failed to mark record pending")
		}

		result.Enqueued++
		result.OperationIDs = append(result.OperationIDs, op.ID)
	}

	logger.WithFields(logrus.Fields{
		"enqueued": result.Enqueued,
		"skipped":  result.Skipped,
	}).Info("Batch sync request enqueued")

	return result, nil
}

// buildPayload shapes a record into the remote payload, keeping only fields
// the entity schema knows about.
func buildPayload(record *models.EntityRecord, schema *validate.Schema) map[string]interface{} {
	payload := make(map[string]interface{}, len(record.Fields)+1)
	for k, v := range record.Fields {
		payload[k] = v
	}
	payload["display_name"] = record.DisplayName
	return schema.Sanitize(payload)
}

// ProcessPending drains the pending queue for an organization and records a
// history row with the aggregate outcome.
func (s *Service) ProcessPending(ctx context.Context, orgID string) (*DrainResult, error) {
	started := time.Now()

	result, err := s.processor.DrainPending(ctx, orgID, s.cfg.DrainLimit)
	if err != nil {
		return nil, err
	}

	if result.Processed > 0 {
		completed := time.Now()
		status := "completed"
		if result.Failed > 0 {
			status = "completed_with_errors"
		}
		history := &models.SyncHistory{
			OrganizationID:   orgID,
			EntityType:       models.EntityGeneric,
			Direction:        models.DirectionToRemote,
			Status:           status,
			RecordsProcessed: result.Processed,
			RecordsCreated:   result.Succeeded,
			RecordsFailed:    result.Failed,
			StartedAt:        started,
			CompletedAt:      &completed,
		}
		history.ID = uuid.NewString()
		if err := s.store.InsertSyncHistory(ctx, history); err != nil {
			s.logger.WithError(err).Warn("Failed to record sync history")
		}
	}

	return result, nil
}

// RetryOperation re-enqueues a failed operation as a new pending operation.
// Retries never mutate terminal history; the retry policy is bounded by
// MaxRetries.
func (s *Service) RetryOperation(ctx context.Context, orgID, operationID string) (*models.SyncOperation, error) {
	op, err := s.store.GetSyncOperation(ctx, orgID, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync operation: %w", err)
	}
	if op == nil {
		return nil, apperrors.NewNotFoundError("sync operation", operationID)
	}
	if op.Status != models.OpStatusFailed {
		return nil, apperrors.NewValidationError(fmt.Sprintf("only failed operations can be retried, status is %s", op.Status), nil)
	}
	if op.RetryCount >= s.cfg.MaxRetries {
		return nil, apperrors.NewValidationError(fmt.Sprintf("operation exceeded retry limit of %d", s.cfg.MaxRetries), nil)
	}

	retry := &models.SyncOperation{
		OrganizationID: op.OrganizationID,
		EntityType:     op.EntityType,
		EntityID:       op.EntityID,
		Kind:           op.Kind,
		Direction:      op.Direction,
		Status:         models.OpStatusPending,
		ExternalID:     op.ExternalID,
		RequestPayload: op.RequestPayload,
		RetryCount:     op.RetryCount + 1,
		ScheduledAt:    time.Now(),
	}
	retry.ID = uuid.NewString()

	if err := s.store.CreateSyncOperation(ctx, retry); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry operation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"organization": orgID,
		"operation":    op.ID,
		"retry":        retry.ID,
		"retry_count":  retry.RetryCount,
	}).Info("Failed operation re-enqueued")

	return retry, nil
}

// ResolveError marks a registry row resolved. Operator-driven.
func (s *Service) ResolveError(ctx context.Context, orgID, errorID string) error {
	if err := s.store.ResolveSyncError(ctx, orgID, errorID); err != nil {
		return fmt.Errorf("failed to resolve sync error: %w", err)
	}
	return nil
}
