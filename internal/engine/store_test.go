package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Moof29/batchly/internal/ledger"
	"github.com/Moof29/batchly/internal/models"
)

// memStore is the in-memory datastore the engine tests run against.
type memStore struct {
	mu sync.Mutex

	connections map[string]*models.Connection
	configs     map[string]*models.EntityConfig
	records     []*models.EntityRecord
	operations  []*models.SyncOperation
	mappings    map[string]*models.EntityMapping
	syncErrors  map[string]*models.SyncError
	histories   []*models.SyncHistory
	metrics     []*models.SyncMetric
	journals    []*models.JournalEntry
	rows        map[string]map[string]map[string]interface{}
}

func newMemStore() *memStore {
	return &memStore{
		connections: make(map[string]*models.Connection),
		configs:     make(map[string]*models.EntityConfig),
		mappings:    make(map[string]*models.EntityMapping),
		syncErrors:  make(map[string]*models.SyncError),
		rows:        make(map[string]map[string]map[string]interface{}),
	}
}

func configKey(orgID string, t models.EntityType) string {
	return orgID + "/" + string(t)
}

func memMappingKey(orgID string, t models.EntityType, localID string) string {
	return fmt.Sprintf("%s/%s/%s", orgID, t, localID)
}

func (s *memStore) GetConnection(ctx context.Context, orgID string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[orgID], nil
}

func (s *memStore) SaveConnection(ctx context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.OrganizationID] = conn
	return nil
}

func (s *memStore) UpdateConnectionTokens(ctx context.Context, orgID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.connections[orgID]; ok {
		conn.AccessToken = accessToken
		conn.RefreshToken = refreshToken
		conn.TokenExpiresAt = expiresAt
	}
	return nil
}

func (s *memStore) DeactivateConnection(ctx context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.connections[orgID]; ok {
		conn.IsActive = false
	}
	return nil
}

func (s *memStore) ListActiveConnections(ctx context.Context) ([]*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*models.Connection
	for _, conn := range s.connections {
		if conn.IsActive {
			active = append(active, conn)
		}
	}
	return active, nil
}

func (s *memStore) GetEntityConfig(ctx context.Context, orgID string, entityType models.EntityType) (*models.EntityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[configKey(orgID, entityType)], nil
}

func (s *memStore) ListEntityConfigs(ctx context.Context, orgID string) ([]*models.EntityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var configs []*models.EntityConfig
	for _, cfg := range s.configs {
		if cfg.OrganizationID == orgID {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

func (s *memStore) UpdateEntityConfig(ctx context.Context, cfg *models.EntityConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[configKey(cfg.OrganizationID, cfg.EntityType)] = cfg
	return nil
}

func (s *memStore) GetEntityRecord(ctx context.Context, orgID string, entityType models.EntityType, id string) (*models.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.OrganizationID == orgID && r.EntityType == entityType && r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListEntityRecords(ctx context.Context, orgID string, entityType models.EntityType, ids []string) ([]*models.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*models.EntityRecord
	for _, r := range s.records {
		if r.OrganizationID == orgID && r.EntityType == entityType && wanted[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) SampleEntityRecords(ctx context.Context, orgID string, entityType models.EntityType, limit int) ([]*models.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EntityRecord
	for _, r := range s.records {
		if r.OrganizationID == orgID && r.EntityType == entityType {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) UpdateEntitySyncStatus(ctx context.Context, orgID string, entityType models.EntityType, id string, status models.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.OrganizationID == orgID && r.EntityType == entityType && r.ID == id {
			r.SyncStatus = status
			return nil
		}
	}
	return nil
}

func (s *memStore) CreateSyncOperation(ctx context.Context, op *models.SyncOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *op
	s.operations = append(s.operations, &clone)
	return nil
}

func (s *memStore) UpdateSyncOperation(ctx context.Context, op *models.SyncOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.operations {
		if existing.ID == op.ID {
			clone := *op
			s.operations[i] = &clone
			return nil
		}
	}
	clone := *op
	s.operations = append(s.operations, &clone)
	return nil
}

func (s *memStore) GetSyncOperation(ctx context.Context, orgID, id string) (*models.SyncOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.operations {
		if op.OrganizationID == orgID && op.ID == id {
			clone := *op
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListPendingOperations(ctx context.Context, orgID string, limit int) ([]*models.SyncOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SyncOperation
	for _, op := range s.operations {
		if op.OrganizationID == orgID && op.Status == models.OpStatusPending {
			clone := *op
			out = append(out, &clone)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) ListOperations(ctx context.Context, orgID string, status models.OperationStatus, limit int) ([]*models.SyncOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SyncOperation
	for _, op := range s.operations {
		if op.OrganizationID != orgID {
			continue
		}
		if status != "" && op.Status != status {
			continue
		}
		clone := *op
		out = append(out, &clone)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) GetEntityMapping(ctx context.Context, orgID string, entityType models.EntityType, localID string) (*models.EntityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mappings[memMappingKey(orgID, entityType, localID)], nil
}

func (s *memStore) UpsertEntityMapping(ctx context.Context, mapping *models.EntityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memMappingKey(mapping.OrganizationID, mapping.EntityType, mapping.LocalID)
	if existing, ok := s.mappings[key]; ok {
		// The conflict target keeps the original row id.
		mapping.ID = existing.ID
	}
	s.mappings[key] = mapping
	return nil
}

func (s *memStore) ListEntityMappings(ctx context.Context, orgID string, entityType models.EntityType, limit int) ([]*models.EntityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EntityMapping
	for _, m := range s.mappings {
		if m.OrganizationID == orgID && m.EntityType == entityType {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) UpsertSyncError(ctx context.Context, syncErr *models.SyncError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := syncErr.OrganizationID + "/" + syncErr.Category + "/" + syncErr.Message
	if existing, ok := s.syncErrors[key]; ok {
		existing.OccurrenceCount++
		existing.LastOccurredAt = syncErr.LastOccurredAt
		existing.IsResolved = false
		existing.ResolvedAt = nil
		return nil
	}
	syncErr.OccurrenceCount = 1
	s.syncErrors[key] = syncErr
	return nil
}

func (s *memStore) ResolveSyncError(ctx context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, e := range s.syncErrors {
		if e.OrganizationID == orgID && e.ID == id {
			e.IsResolved = true
			e.ResolvedAt = &now
			return nil
		}
	}
	return nil
}

func (s *memStore) ListSyncErrors(ctx context.Context, orgID string, unresolvedOnly bool, limit int) ([]*models.SyncError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SyncError
	for _, e := range s.syncErrors {
		if e.OrganizationID != orgID {
			continue
		}
		if unresolvedOnly && e.IsResolved {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) InsertSyncHistory(ctx context.Context, history *models.SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = append(s.histories, history)
	return nil
}

func (s *memStore) InsertSyncMetrics(ctx context.Context, batch []*models.SyncMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, batch...)
	return nil
}

func (s *memStore) InsertJournalEntries(ctx context.Context, entries []*models.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journals = append(s.journals, entries...)
	return nil
}

func (s *memStore) GetRow(ctx context.Context, table, keyColumn string, key interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows, ok := s.rows[table]; ok {
		return rows[fmt.Sprint(key)], nil
	}
	return nil, nil
}

func (s *memStore) InsertRow(ctx context.Context, table string, values map[string]interface{}) error {
	return s.UpsertRow(ctx, table, "id", values["id"], values)
}

func (s *memStore) UpdateRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error {
	return s.UpsertRow(ctx, table, keyColumn, key, values)
}

func (s *memStore) DeleteRow(ctx context.Context, table, keyColumn string, key interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows, ok := s.rows[table]; ok {
		delete(rows, fmt.Sprint(key))
	}
	return nil
}

func (s *memStore) UpsertRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[table]; !ok {
		s.rows[table] = make(map[string]map[string]interface{})
	}
	s.rows[table][fmt.Sprint(key)] = values
	return nil
}

// Accessors used by assertions.

func (s *memStore) operation(id string) *models.SyncOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.operations {
		if op.ID == id {
			return op
		}
	}
	return nil
}

func (s *memStore) record(id string) *models.EntityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *memStore) errorRows() []*models.SyncError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SyncError, 0, len(s.syncErrors))
	for _, e := range s.syncErrors {
		out = append(out, e)
	}
	return out
}

// ledgerCall records one remote invocation the fake ledger served.
type ledgerCall struct {
	Kind       string
	Resource   string
	ExternalID string
	Payload    map[string]interface{}
}

// fakeLedger is a programmable engine.LedgerClient. Errors are dequeued in
// order; once the queue is empty calls succeed with the configured result.
type fakeLedger struct {
	mu     sync.Mutex
	calls  []ledgerCall
	errs   []error
	result *ledger.CallResult
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		result: &ledger.CallResult{ExternalID: "ext-123", SyncToken: "0"},
	}
}

func (f *fakeLedger) failWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLedger) do(kind, resource, externalID string, payload map[string]interface{}) (*ledger.CallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ledgerCall{Kind: kind, Resource: resource, ExternalID: externalID, Payload: payload})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	result := *f.result
	return &result, nil
}

func (f *fakeLedger) Create(ctx context.Context, orgID, resource string, payload map[string]interface{}) (*ledger.CallResult, error) {
	return f.do("create", resource, "", payload)
}

func (f *fakeLedger) Update(ctx context.Context, orgID, resource, externalID string, payload map[string]interface{}) (*ledger.CallResult, error) {
	return f.do("update", resource, externalID, payload)
}

func (f *fakeLedger) Delete(ctx context.Context, orgID, resource, externalID string) (*ledger.CallResult, error) {
	return f.do("delete", resource, externalID, nil)
}
