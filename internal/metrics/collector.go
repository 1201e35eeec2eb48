package metrics

import (
	"context"
	"sync"
	"time"

	"grimm.is/speedctl/internal/clock"
	"grimm.is/speedctl/internal/ctlplane"
	"grimm.is/speedctl/internal/logging"
)

// StatusSource reports control plane status. ctlplane.Client satisfies it.
type StatusSource interface {
	GetStatus() (*ctlplane.Status, error)
}

// Collector polls the control plane and updates the Prometheus registry.
type Collector struct {
	registry *Registry
	source   StatusSource
	logger   *logging.Logger
	interval time.Duration
	started  time.Time

	stopOnce sync.Once
	stopCh   chan struct{}

	// Cached for the health endpoint
	mu         sync.RWMutex
	lastUpdate time.Time
	lastStatus *ctlplane.Status
	lastErr    error
}

// NewCollector creates a new metrics collector.
func NewCollector(registry *Registry, source StatusSource, logger *logging.Logger, interval time.Duration) *Collector {
	if registry == nil {
		registry = Get()
	}
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	return &Collector{
		registry: registry,
		source:   source,
		logger:   logger,
		interval: interval,
		started:  clock.Now(),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	c.Collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-ctx.Done():
			c.logger.Info("Stopping metrics collector")
			return
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect polls the control plane once.
func (c *Collector) Collect() {
	c.registry.Uptime.Set(clock.Since(c.started).Seconds())

	status, err := c.source.GetStatus()

	c.mu.Lock()
	c.lastUpdate = clock.Now()
	c.lastErr = err
	if err == nil {
		c.lastStatus = status
	}
	c.mu.Unlock()

	if err != nil {
		c.registry.ControlPlaneUp.Set(0)
		c.logger.Debug("Control plane status poll failed", "error", err)
		return
	}

	c.registry.ControlPlaneUp.Set(1)
	c.registry.ControlPlaneActions.Set(float64(status.Actions))
	c.registry.ControlPlaneInFlight.Set(float64(status.InFlight))
	c.registry.ControlPlaneExecuted.Set(float64(status.Executed))
}

// LastStatus returns the most recent successful status, when the last poll
// happened and that poll's error.
func (c *Collector) LastStatus() (*ctlplane.Status, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastStatus, c.lastUpdate, c.lastErr
}
