package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Moof29/batchly/internal/errors"
	"github.com/Moof29/batchly/internal/journal"
	"github.com/Moof29/batchly/internal/models"
)

type serviceFixture struct {
	*processorFixture
	service *Service
}

func newServiceFixture() *serviceFixture {
	pf := newProcessorFixture()
	logger := testLogger()
	txm := journal.NewTxManager(pf.store, pf.jnl, logger)
	return &serviceFixture{
		processorFixture: pf,
		service:          NewService(pf.store, pf.processor, pf.mappings, txm, testSyncConfig(), logger),
	}
}

func TestRequestBatchSyncEnqueuesCreates(t *testing.T) {
	f := newServiceFixture()
	f.addRecord(models.EntityCustomer, "c-1", "Acme Corp", map[string]interface{}{"email": "ap@acme.com", "internal_ref": "keep-out"})
	f.addRecord(models.EntityCustomer, "c-2", "Globex", nil)

	result, err := f.service.RequestBatchSync(context.Background(), BatchRequest{
		OrganizationID: testOrgID,
		EntityType:     models.EntityCustomer,
		IDs:            []string{"c-1", "c-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Enqueued)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.OperationIDs, 2)

	op := f.store.operation(result.OperationIDs[0])
	require.NotNil(t, op)
	assert.Equal(t, models.OpCreate, op.Kind)
	assert.Equal(t, models.OpStatusPending, op.Status)
	assert.Equal(t, models.DirectionToRemote, op.Direction)
	assert.Equal(t, "Acme Corp", op.RequestPayload["display_name"])
	assert.Equal(t, "ap@acme.com", op.RequestPayload["email"])
	assert.NotContains(t, op.RequestPayload, "internal_ref", "payloads carry only schema fields")
}

func TestRequestBatchSyncRoutesMappedRecordsAsUpdates(t *testing.T) {
	f := newServiceFixture()
	f.addRecord(models.EntityCustomer, "c-1", "Acme Corp", nil)
	require.NoError(t, f.mappings.Upsert(context.Background(), testOrgID, models.EntityCustomer, "c-1", "ext-1", time.Time{}))

	result, err := f.service.RequestBatchSync(context.Background(), BatchRequest{
		OrganizationID: testOrgID,
		EntityType:     models.EntityCustomer,
		IDs:            []string{"c-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Enqueued)

	op := f.store.operation(result.OperationIDs[0])
	assert.Equal(t, models.OpUpdate, op.Kind)
	assert.Equal(t, "ext-1", op.ExternalID)
}

func TestRequestBatchSyncUnknownEntityType(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.RequestBatchSync(context.Background(), BatchRequest{
		OrganizationID: testOrgID,
		EntityType:     models.EntityType("ledger-unicorn"),
		IDs:            []string{"x"},
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestRequestBatchSyncDisabledEntity(t *testing.T) {
	f := newServiceFixture()
	f.store.configs[configKey(testOrgID, models.EntityInvoice)] = &models.EntityConfig{
		OrganizationID: testOrgID,
		EntityType:     models.EntityInvoice,
		IsEnabled:      false,
		Direction:      models.DirectionBidirectional,
	}

	_, err := f.service.RequestBatchSync(context.Background(), BatchRequest{
		OrganizationID: testOrgID,
		EntityType:     models.EntityInvoice,
		IDs:            []string{"inv-1"},
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestRequestBatchSyncDirectionNotAllowed(t *testing.T) {
	f := newServiceFixture()
	f.store.configs[configKey(testOrgID, models.EntityCustomer)] = &models.EntityConfig{
		OrganizationID: testOrgID,
		EntityType:     models.EntityCustomer,
		IsEnabled:      true,
		Direction:      models.DirectionFromRemote,
	}

	_, err := f.service.RequestBatchSync(context.Background(), BatchRequest{
		OrganizationID: testOrgID,
		EntityType:     models.EntityCustomer,
		IDs:            []string{"c-1"},
		Direction:      models.DirectionToRemote,
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestRequestBatchSyncTruncatesToBatchSize(t *testing.T) {
	f := newServiceFixture()
	f.store.configs[configKey(testOrgID, models.EntityCustomer)] = &models.EntityConfig{
		OrganizationID: testOrgID,
		EntityType:     models.EntityCustomer,
		IsEnabled:      true,
		Direction:      models.DirectionBidirectional,
		BatchSize:      2,
	}
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = fmt.Sprintf("c-%d", i)
		f.addRecord(models.EntityCustomer, ids[i], "Acme Corp", nil)
	}

	result, err := f.service.RequestBatchSync(context.Background(), BatchRequest{
		OrganizationID: testOrgID,
		EntityType:     models.EntityCustomer,
		IDs:            ids,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enqueued)
}

func TestRequestBatchSyncMarksRecordsPendingViaJournal(t *testing.T) {
	f := newServiceFixture()
	f.addRecord(models.EntityCustomer, "c-1", "Acme Corp", nil)

	_, err := f.service.RequestBatchSync(context.Background(), BatchRequest{
		OrganizationID: testOrgID,
		EntityType:     models.EntityCustomer,
		IDs:            []string{"c-1"},
	})
	require.NoError(t, err)

	row := f.store.rows["customer_profile"]["c-1"]
	require.NotNil(t, row)
	assert.Equal(t, string(models.SyncStatusPending), row["sync_status"])

	require.NoError(t, f.jnl.Flush(context.Background()))
	require.Len(t, f.store.journals, 1)
	assert.Equal(t, "batch_sync_request", f.store.journals[0].Source)
	assert.Equal(t, "update", f.store.journals[0].OperationType)
}

func TestProcessPendingWritesHistory(t *testing.T) {
	f := newServiceFixture()
	f.addRecord(models.EntityCustomer, "c-1", "Acme Corp", nil)
	f.pendingOp(models.EntityCustomer, "c-1", models.OpCreate, customerPayload())
	f.addRecord(models.EntityCustomer, "c-2", "", nil)
	f.pendingOp(models.EntityCustomer, "c-2", models.OpCreate, map[string]interface{}{})

	result, err := f.service.ProcessPending(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, f.store.histories, 1)
	history := f.store.histories[0]
	assert.Equal(t, "completed_with_errors", history.Status)
	assert.Equal(t, 2, history.RecordsProcessed)
	assert.Equal(t, 1, history.RecordsFailed)
	assert.NotNil(t, history.CompletedAt)
}

func TestProcessPendingNoHistoryForEmptyQueue(t *testing.T) {
	f := newServiceFixture()

	result, err := f.service.ProcessPending(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, f.store.histories)
}

func TestRetryOperationClonesAsNewPending(t *testing.T) {
	f := newServiceFixture()
	op := f.pendingOp(models.EntityCustomer, "c-1", models.OpCreate, customerPayload())
	op.Status = models.OpStatusFailed
	op.ErrorMessage = "ledger down"
	require.NoError(t, f.store.UpdateSyncOperation(context.Background(), op))

	retry, err := f.service.RetryOperation(context.Background(), testOrgID, op.ID)
	require.NoError(t, err)

	assert.NotEqual(t, op.ID, retry.ID, "retry is a new operation, not a mutation")
	assert.Equal(t, models.OpStatusPending, retry.Status)
	assert.Equal(t, 1, retry.RetryCount)
	assert.Equal(t, op.RequestPayload, retry.RequestPayload)

	// The original terminal row is untouched.
	original := f.store.operation(op.ID)
	assert.Equal(t, models.OpStatusFailed, original.Status)
}

func TestRetryOperationOnlyFailed(t *testing.T) {
	f := newServiceFixture()
	op := f.pendingOp(models.EntityCustomer, "c-1", models.OpCreate, customerPayload())

	_, err := f.service.RetryOperation(context.Background(), testOrgID, op.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRetryOperationBoundedByMaxRetries(t *testing.T) {
	f := newServiceFixture()
	op := f.pendingOp(models.EntityCustomer, "c-1", models.OpCreate, customerPayload())
	op.Status = models.OpStatusFailed
	op.RetryCount = testSyncConfig().MaxRetries
	require.NoError(t, f.store.UpdateSyncOperation(context.Background(), op))

	_, err := f.service.RetryOperation(context.Background(), testOrgID, op.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRetryOperationNotFound(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.RetryOperation(context.Background(), testOrgID, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResolveError(t *testing.T) {
	f := newServiceFixture()
	syncErr := &models.SyncError{
		OrganizationID: testOrgID,
		Category:       string(apperrors.CategoryConnection),
		Message:        "ledger down",
		LastOccurredAt: time.Now(),
	}
	syncErr.ID = "err-1"
	require.NoError(t, f.store.UpsertSyncError(context.Background(), syncErr))

	require.NoError(t, f.service.ResolveError(context.Background(), testOrgID, "err-1"))

	rows := f.store.errorRows()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsResolved)
	assert.NotNil(t, rows[0].ResolvedAt)
}
