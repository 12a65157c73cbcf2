package engine

import (
	"context"

	"github.com/Moof29/batchly/internal/ledger"
)

// LedgerClient is the remote ledger surface the processor depends on.
type LedgerClient interface {
	Create(ctx context.Context, orgID, resource string, payload map[string]interface{}) (*ledger.CallResult, error)
	Update(ctx context.Context, orgID, resource, externalID string, payload map[string]interface{}) (*ledger.CallResult, error)
	Delete(ctx context.Context, orgID, resource, externalID string) (*ledger.CallResult, error)
}
