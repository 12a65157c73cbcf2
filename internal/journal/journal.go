package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/models"
)

// EntryStore is the slice of the datastore the journal needs.
type EntryStore interface {
	InsertJournalEntries(ctx context.Context, entries []*models.JournalEntry) error
}

// Journal is the queued, batched write-behind change log. Entries accumulate
// in memory and flush on size threshold, timer tick, or shutdown. A failed
// flush requeues the batch instead of dropping it.
type Journal struct {
	store  EntryStore
	cfg    *config.JournalConfig
	logger *logrus.Logger

	mu    sync.Mutex
	queue []*models.JournalEntry

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewJournal creates a change journal.
func NewJournal(store EntryStore, cfg *config.JournalConfig, logger *logrus.Logger) *Journal {
	return &Journal{
		store:  store,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (j *Journal) Start() {
	j.ticker = time.NewTicker(j.cfg.FlushInterval)
	go func() {
		for {
			select {
			case <-j.done:
				return
			case <-j.ticker.C:
				if err := j.Flush(context.Background()); err != nil {
					j.logger.WithError(err).Warn("Journal flush failed, batch requeued")
				}
			}
		}
	}()
}

// Record queues one entry, assigning its id and timestamp. A full queue
// triggers an asynchronous flush.
func (j *Journal) Record(entry *models.JournalEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	if entry.Source == "" {
		entry.Source = "sync_engine"
	}

	j.mu.Lock()
	j.queue = append(j.queue, entry)
	full := len(j.queue) >= j.cfg.FlushSize
	j.mu.Unlock()

	if full {
		go func() {
			if err := j.Flush(context.Background()); err != nil {
				j.logger.WithError(err).Warn("Journal flush failed, batch requeued")
			}
		}()
	}
}

// Flush writes the queued entries as one batch. On failure the batch goes
// back to the front of the queue for the next attempt.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.Lock()
	if len(j.queue) == 0 {
		j.mu.Unlock()
		return nil
	}
	batch := j.queue
	j.queue = nil
	j.mu.Unlock()

	if err := j.store.InsertJournalEntries(ctx, batch); err != nil {
		j.mu.Lock()
		j.queue = append(batch, j.queue...)
		j.mu.Unlock()
		return err
	}

	j.logger.WithField("entries", len(batch)).Debug("Journal batch flushed")
	return nil
}

// Pending returns the number of queued entries.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.queue)
}

// Shutdown stops the flush loop and performs a final flush.
func (j *Journal) Shutdown(ctx context.Context) error {
	j.once.Do(func() {
		close(j.done)
		if j.ticker != nil {
			j.ticker.Stop()
		}
	})
	return j.Flush(ctx)
}
