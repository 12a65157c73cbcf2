package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/breaker"
	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/db"
	apperrors "github.com/Moof29/batchly/internal/errors"
	"github.com/Moof29/batchly/internal/journal"
	"github.com/Moof29/batchly/internal/ledger"
	"github.com/Moof29/batchly/internal/metrics"
	"github.com/Moof29/batchly/internal/models"
	"github.com/Moof29/batchly/internal/validate"
)

// DrainResult tallies one batch drain pass. Partial failure is reported in
// the counts, never escalated to fail the whole batch.
type DrainResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Processor drives individual sync operations through the state machine:
// pending -> in_progress -> success | failed. Terminal statuses are never
// revisited; retries re-enqueue fresh operations at the service layer.
type Processor struct {
	store      db.Store
	ledger     LedgerClient
	breakers   *breaker.Registry
	mappings   *MappingService
	collector  *metrics.Collector
	jnl        *journal.Journal
	classifier *apperrors.Classifier
	cfg        *config.SyncConfig
	logger     *logrus.Logger
}

// NewProcessor creates a sync operation processor.
func NewProcessor(
	store db.Store,
	ledgerClient LedgerClient,
	breakers *breaker.Registry,
	mappings *MappingService,
	collector *metrics.Collector,
	jnl *journal.Journal,
	cfg *config.SyncConfig,
	logger *logrus.Logger,
) *Processor {
	return &Processor{
		store:      store,
		ledger:     ledgerClient,
		breakers:   breakers,
		mappings:   mappings,
		collector:  collector,
		jnl:        jnl,
		classifier: apperrors.DefaultClassifier(),
		cfg:        cfg,
		logger:     logger,
	}
}

// ProcessOperation runs one operation to a terminal status. The returned
// error reports the failure for tallying; the operation and entity state
// have already been persisted by the time it returns.
func (p *Processor) ProcessOperation(ctx context.Context, op *models.SyncOperation) error {
	logger := p.logger.WithFields(logrus.Fields{
		"operation":    op.ID,
		"organization": op.OrganizationID,
		"entity_type":  op.EntityType,
		"entity_id":    op.EntityID,
		"kind":         op.Kind,
	})

	if op.Status.IsTerminal() {
		return fmt.Errorf("operation %s already terminal with status %s", op.ID, op.Status)
	}

	now := time.Now()
	op.Status = models.OpStatusInProgress
	op.StartedAt = &now
	if err := p.store.UpdateSyncOperation(ctx, op); err != nil {
		return fmt.Errorf("failed to mark operation in progress: %w", err)
	}
	if err := p.store.UpdateEntitySyncStatus(ctx, op.OrganizationID, op.EntityType, op.EntityID, models.SyncStatusSyncing); err != nil {
		logger.WithError(err).Warn("Failed to set entity status to syncing")
	}

	// Validation failures are terminal and never reach the remote ledger.
	if op.Kind != models.OpDelete {
		result := validate.ForEntity(op.EntityType).Validate(op.RequestPayload)
		if !result.Valid {
			err := apperrors.NewValidationError(fmt.Sprintf("payload validation failed: %s", result.ErrorMessage()), nil)
			p.failOperation(ctx, op, err, logger)
			return err
		}
	}

	desc := models.Descriptor(op.EntityType)
	externalID := op.ExternalID
	if externalID == "" && op.Kind != models.OpCreate {
		resolved, found, err := p.mappings.Resolve(ctx, op.OrganizationID, op.EntityType, op.EntityID)
		if err != nil {
			p.failOperation(ctx, op, err, logger)
			return err
		}
		if found {
			externalID = resolved
		} else if op.Kind == models.OpUpdate {
			// No mapping means no known remote state: route as create.
			logger.Info("No entity mapping found, routing update as create")
			op.Kind = models.OpCreate
		}
	}

	var callResult *ledger.CallResult
	remoteCall := func(ctx context.Context) error {
		var callErr error
		switch op.Kind {
		case models.OpCreate:
			callResult, callErr = p.ledger.Create(ctx, op.OrganizationID, desc.RemoteResource, op.RequestPayload)
		case models.OpUpdate:
			callResult, callErr = p.ledger.Update(ctx, op.OrganizationID, desc.RemoteResource, externalID, op.RequestPayload)
		case models.OpDelete:
			callResult, callErr = p.ledger.Delete(ctx, op.OrganizationID, desc.RemoteResource, externalID)
		default:
			callErr = fmt.Errorf("unknown operation kind: %s", op.Kind)
		}
		return callErr
	}

	err := p.collector.MeasureAndRecord(ctx, op.OrganizationID, "sync", string(op.Kind), op.EntityType, func(ctx context.Context) error {
		return p.breakers.For(desc.Surface).Execute(ctx, remoteCall)
	})
	if err != nil {
		p.failOperation(ctx, op, err, logger)
		return err
	}

	completed := time.Now()
	op.Status = models.OpStatusSuccess
	op.CompletedAt = &completed
	op.ErrorMessage = ""
	if callResult != nil {
		op.ResponsePayload = callResult.Raw
		if callResult.ExternalID != "" {
			op.ExternalID = callResult.ExternalID
		}
	}
	if op.ExternalID == "" {
		op.ExternalID = externalID
	}
	if err := p.store.UpdateSyncOperation(ctx, op); err != nil {
		return fmt.Errorf("failed to persist successful operation: %w", err)
	}

	if op.Kind != models.OpDelete && op.ExternalID != "" {
		var remoteUpdated time.Time
		if callResult != nil {
			remoteUpdated = callResult.LastUpdatedAt
		}
		if err := p.mappings.Upsert(ctx, op.OrganizationID, op.EntityType, op.EntityID, op.ExternalID, remoteUpdated); err != nil {
			logger.WithError(err).Error("Failed to upsert entity mapping after successful sync")
		}
	}

	if err := p.store.UpdateEntitySyncStatus(ctx, op.OrganizationID, op.EntityType, op.EntityID, models.SyncStatusSynced); err != nil {
		logger.WithError(err).Warn("Failed to set entity status to synced")
	}

	p.jnl.Record(&models.JournalEntry{
		OrganizationID: op.OrganizationID,
		EntityType:     op.EntityType,
		EntityID:       op.EntityID,
		OperationType:  string(op.Kind),
		Before:         op.RequestPayload,
		After:          op.ResponsePayload,
		Source:         "sync_processor",
	})

	logger.WithField("external_id", op.ExternalID).Info("Sync operation succeeded")
	return nil
}

// failOperation moves op to failed, logs the failure to the error registry
// and marks the entity errored. Best effort: registry or status failures are
// logged, not escalated.
func (p *Processor) failOperation(ctx context.Context, op *models.SyncOperation, opErr error, logger *logrus.Entry) {
	completed := time.Now()
	op.Status = models.OpStatusFailed
	op.CompletedAt = &completed
	op.ErrorMessage = opErr.Error()

	if err := p.store.UpdateSyncOperation(ctx, op); err != nil {
		logger.WithError(err).Error("Failed to persist failed operation")
	}

	category := p.classifier.Classify(opErr)
	syncErr := &models.SyncError{
		OrganizationID: op.OrganizationID,
		Category:       string(category),
		Message:        opErr.Error(),
		LastOccurredAt: completed,
	}
	syncErr.ID = uuid.NewString()
	if err := p.store.UpsertSyncError(ctx, syncErr); err != nil {
		logger.WithError(err).Error("Failed to record sync error")
	}

	if err := p.store.UpdateEntitySyncStatus(ctx, op.OrganizationID, op.EntityType, op.EntityID, models.SyncStatusError); err != nil {
		logger.WithError(err).Warn("Failed to set entity status to error")
	}

	logger.WithError(opErr).WithField("category", category).Error("Sync operation failed")
}

// DrainPending processes a bounded window of pending operations, oldest
// scheduled first, with a concurrency fan-out. Results are tallied and
// returned, never thrown: success + failed always equals processed.
func (p *Processor) DrainPending(ctx context.Context, orgID string, limit int) (*DrainResult, error) {
	if limit <= 0 {
		limit = p.cfg.DrainLimit
	}

	ops, err := p.store.ListPendingOperations(ctx, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}

	result := &DrainResult{}
	if len(ops) == 0 {
		return result, nil
	}

	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	slots := make(chan struct{}, concurrency)

	for _, op := range ops {
		if ctx.Err() != nil {
			// Cooperative cancellation: operations not yet begun stay
			// pending for the next drain cycle.
			wg.Wait()
			return result, nil
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return result, nil
		case slots <- struct{}{}:
		}

		wg.Add(1)
		go func(op *models.SyncOperation) {
			defer wg.Done()
			defer func() { <-slots }()

			err := p.ProcessOperation(ctx, op)

			mu.Lock()
			result.Processed++
			if err != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
			mu.Unlock()
		}(op)
	}

	wg.Wait()

	p.logger.WithFields(logrus.Fields{
		"organization": orgID,
		"processed":    result.Processed,
		"succeeded":    result.Succeeded,
		"failed":       result.Failed,
	}).Info("Drain pass completed")

	return result, nil
}
