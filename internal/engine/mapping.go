package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Moof29/batchly/internal/db"
	"github.com/Moof29/batchly/internal/models"
)

// MappingService is the single source of truth for create-vs-update routing:
// a missing mapping always means "create" on the next sync attempt. Reads go
// through a write-through cache.
type MappingService struct {
	store db.Store
	mu    sync.RWMutex
	cache map[string]*models.EntityMapping
}

// NewMappingService creates a mapping service.
func NewMappingService(store db.Store) *MappingService {
	return &MappingService{
		store: store,
		cache: make(map[string]*models.EntityMapping),
	}
}

func mappingKey(orgID string, entityType models.EntityType, localID string) string {
	return fmt.Sprintf("%s/%s/%s", orgID, entityType, localID)
}

// Resolve returns the external id for a local record, if a mapping exists.
func (s *MappingService) Resolve(ctx context.Context, orgID string, entityType models.EntityType, localID string) (string, bool, error) {
	key := mappingKey(orgID, entityType, localID)

	s.mu.RLock()
	if m, exists := s.cache[key]; exists {
		s.mu.RUnlock()
		return m.ExternalID, true, nil
	}
	s.mu.RUnlock()

	mapping, err := s.store.GetEntityMapping(ctx, orgID, entityType, localID)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve entity mapping: %w", err)
	}
	if mapping == nil {
		return "", false, nil
	}

	s.mu.Lock()
	s.cache[key] = mapping
	s.mu.Unlock()

	return mapping.ExternalID, true, nil
}

// Upsert records the local-to-external correspondence. Idempotent: repeat
// calls with the same external id leave exactly one mapping row.
func (s *MappingService) Upsert(ctx context.Context, orgID string, entityType models.EntityType, localID, externalID string, externalUpdatedAt time.Time) error {
	now := time.Now()
	mapping := &models.EntityMapping{
		OrganizationID:    orgID,
		EntityType:        entityType,
		LocalID:           localID,
		ExternalID:        externalID,
		LastLocalUpdateAt: &now,
	}
	mapping.ID = uuid.NewString()
	if !externalUpdatedAt.IsZero() {
		mapping.LastExternalUpdateAt = &externalUpdatedAt
	}

	if err := s.store.UpsertEntityMapping(ctx, mapping); err != nil {
		return fmt.Errorf("failed to upsert entity mapping: %w", err)
	}

	s.mu.Lock()
	s.cache[mappingKey(orgID, entityType, localID)] = mapping
	s.mu.Unlock()

	return nil
}
