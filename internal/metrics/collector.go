package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/models"
)

// MetricStore is the slice of the datastore the collector needs.
type MetricStore interface {
	InsertSyncMetrics(ctx context.Context, batch []*models.SyncMetric) error
}

// Collector is a fire-and-forget recorder of operation outcomes and
// latencies. Records queue in memory; flushes happen on size threshold, a
// periodic timer, or shutdown. A failed batch goes back to the front of the
// queue for the next tick.
type Collector struct {
	store  MetricStore
	cfg    *config.MetricsConfig
	logger *logrus.Logger

	mu    sync.Mutex
	queue []*models.SyncMetric

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewCollector creates a metrics collector.
func NewCollector(store MetricStore, cfg *config.MetricsConfig, logger *logrus.Logger) *Collector {
	return &Collector{
		store:  store,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (c *Collector) Start() {
	c.ticker = time.NewTicker(c.cfg.FlushInterval)
	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-c.ticker.C:
				if err := c.Flush(context.Background()); err != nil {
					c.logger.WithError(err).Warn("Metrics flush failed, batch requeued")
				}
			}
		}
	}()
}

// Record queues one metric. Never blocks on the datastore.
func (c *Collector) Record(orgID, category, operation string, entityType models.EntityType, success bool, duration time.Duration, opErr error) {
	metric := &models.SyncMetric{
		OrganizationID: orgID,
		Category:       category,
		Operation:      operation,
		EntityType:     entityType,
		Success:        success,
		DurationMS:     duration.Milliseconds(),
		RecordedAt:     time.Now(),
	}
	metric.ID = uuid.NewString()
	if opErr != nil {
		metric.ErrorMessage = opErr.Error()
	}

	c.mu.Lock()
	c.queue = append(c.queue, metric)
	full := len(c.queue) >= c.cfg.FlushSize
	c.mu.Unlock()

	if full {
		go func() {
			if err := c.Flush(context.Background()); err != nil {
				c.logger.WithError(err).Warn("Metrics flush failed, batch requeued")
			}
		}()
	}
}

// MeasureAndRecord times fn and records its outcome, returning fn's error
// unchanged.
func (c *Collector) MeasureAndRecord(ctx context.Context, orgID, category, operation string, entityType models.EntityType, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	c.Record(orgID, category, operation, entityType, err == nil, time.Since(start), err)
	return err
}

// Flush writes the queued metrics as one batch insert.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	if err := c.store.InsertSyncMetrics(ctx, batch); err != nil {
		c.mu.Lock()
		c.queue = append(batch, c.queue...)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Pending returns the number of queued metrics.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Shutdown stops the flush loop and performs a final flush.
func (c *Collector) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		close(c.done)
		if c.ticker != nil {
			c.ticker.Stop()
		}
	})
	return c.Flush(ctx)
}
