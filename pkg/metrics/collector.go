package metrics

import (
	"time"

	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

var taskStatuses = []types.TaskStatus{
	types.TaskStatusPending,
	types.TaskStatusProcessing,
	types.TaskStatusCompleted,
	types.TaskStatusFailed,
}

// Collector periodically samples task gauges from the store
type Collector struct {
	store    storage.Store
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a store-backed metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:    store,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	counts, err := c.store.CountTasksByStatus()
	if err != nil {
		return
	}

	for _, status := range taskStatuses {
		TasksTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	QueueDepth.Set(float64(counts[types.TaskStatusPending]))
}
