package journal

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/models"
)

// StepKind is the mutation a transaction step performs.
type StepKind string

const (
	StepInsert StepKind = "insert"
	StepUpdate StepKind = "update"
	StepDelete StepKind = "delete"
	StepUpsert StepKind = "upsert"
)

// Step is one datastore write in a sequenced transaction.
type Step struct {
	Kind      StepKind
	Table     string
	KeyColumn string
	Key       interface{}
	Values    map[string]interface{}
}

// StepResult reports the outcome of one step.
type StepResult struct {
	Step    Step
	Applied bool
	Err     error
}

// RunResult reports which steps applied and which did not. Because the
// backing store offers no multi-statement transactions, partial application
// is a possible outcome callers must reconcile via status fields.
type RunResult struct {
	Steps   []StepResult
	Applied int
	Err     error
}

// Succeeded reports whether every step applied.
func (r *RunResult) Succeeded() bool {
	return r.Err == nil && r.Applied == len(r.Steps)
}

// JournalOptions describes how a run is journaled. A nil options value
// disables journaling for the run.
type JournalOptions struct {
	OrganizationID string
	EntityType     models.EntityType
	EntityID       string
	Actor          string
	Source         string
}

// RowStore is the slice of the datastore the transaction manager needs.
type RowStore interface {
	GetRow(ctx context.Context, table, keyColumn string, key interface{}) (map[string]interface{}, error)
	InsertRow(ctx context.Context, table string, values map[string]interface{}) error
	UpdateRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error
	DeleteRow(ctx context.Context, table, keyColumn string, key interface{}) error
	UpsertRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error
}

// TxManager sequences datastore writes one at a time, capturing pre-state
// for the journal before each mutation. On failure it stops and reports;
// already-applied steps are not compensated.
type TxManager struct {
	store   RowStore
	journal *Journal
	logger  *logrus.Logger
}

// NewTxManager creates a transaction manager.
func NewTxManager(store RowStore, jnl *Journal, logger *logrus.Logger) *TxManager {
	return &TxManager{
		store:   store,
		journal: jnl,
		logger:  logger,
	}
}

// Run executes steps in order. The returned result always covers every step;
// steps after the first failure are reported as not applied.
func (m *TxManager) Run(ctx context.Context, steps []Step, opts *JournalOptions) *RunResult {
	result := &RunResult{Steps: make([]StepResult, 0, len(steps))}

	for i, step := range steps {
		var before map[string]interface{}
		if opts != nil && step.Kind != StepInsert {
			var err error
			before, err = m.store.GetRow(ctx, step.Table, step.KeyColumn, step.Key)
			if err != nil {
				m.logger.WithError(err).WithField("table", step.Table).Warn("Failed to capture pre-state for journal")
			}
		}

		err := m.apply(ctx, step)
		if err != nil {
			result.Steps = append(result.Steps, StepResult{Step: step, Applied: false, Err: err})
			for _, rest := range steps[i+1:] {
				result.Steps = append(result.Steps, StepResult{Step: rest, Applied: false})
			}
			result.Err = fmt.Errorf("step %d (%s %s) failed: %w", i, step.Kind, step.Table, err)

			m.logger.WithError(err).WithFields(logrus.Fields{
				"step":    i,
				"table":   step.Table,
				"applied": result.Applied,
				"total":   len(steps),
			}).Error("Transaction stopped on failed step")
			return result
		}

		result.Steps = append(result.Steps, StepResult{Step: step, Applied: true})
		result.Applied++

		if opts != nil {
			var after map[string]interface{}
			if step.Kind != StepDelete {
				after = step.Values
			}
			m.journal.Record(&models.JournalEntry{
				OrganizationID: opts.OrganizationID,
				EntityType:     opts.EntityType,
				EntityID:       opts.EntityID,
				OperationType:  string(step.Kind),
				Before:         before,
				After:          after,
				Actor:          opts.Actor,
				Source:         opts.Source,
			})
		}
	}

	return result
}

func (m *TxManager) apply(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepInsert:
		return m.store.InsertRow(ctx, step.Table, step.Values)
	case StepUpdate:
		return m.store.UpdateRow(ctx, step.Table, step.KeyColumn, step.Key, step.Values)
	case StepDelete:
		return m.store.DeleteRow(ctx, step.Table, step.KeyColumn, step.Key)
	case StepUpsert:
		return m.store.UpsertRow(ctx, step.Table, step.KeyColumn, step.Key, step.Values)
	default:
		return fmt.Errorf("unknown step kind: %s", step.Kind)
	}
}
