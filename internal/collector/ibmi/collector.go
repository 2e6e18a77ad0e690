package ibmi

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/config"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/connection"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/metrics"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/model"
)

// openFunc opens a verified connection to a target.
type openFunc func(ctx context.Context, target config.TargetConfig) (*sql.DB, error)

// Collector refreshes the metrics of every configured IBM i target.
type Collector struct {
	cfg     *config.ExporterConfig
	metrics *metrics.IbmiMetrics
	open    openFunc
}

// NewCollector creates a new Collector instance.
func NewCollector(cfg *config.ExporterConfig, m *metrics.IbmiMetrics) *Collector {
	return &Collector{
		cfg:     cfg,
		metrics: m,
		open:    connection.Open,
	}
}

// withTarget runs fn with a connection to the target and closes the
// connection on every exit path.
func (c *Collector) withTarget(ctx context.Context, target config.TargetConfig, fn func(*sql.DB) error) error {
	db, err := c.open(ctx, target)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warning("closing connection to %s failed: %s", target.Host, cerr)
		}
	}()
	return fn(db)
}

// RefreshAll runs one collection cycle over every target, in name order. A
// failing target is marked down and never stops the cycle.
func (c *Collector) RefreshAll(ctx context.Context) {
	cycleID := uuid.New().String()
	for _, name := range c.cfg.TargetNames() {
		logger.Info("refreshing metrics for %s", name)
		c.refreshTarget(ctx, cycleID, name, c.cfg.Targets[name])
	}
}

// refreshTarget opens a connection to one target and runs the collectors in
// their fixed order. The status series goes to 1 only when every collector
// succeeded; any error or panic marks the target down instead of escaping.
func (c *Collector) refreshTarget(ctx context.Context, cycleID, name string, target config.TargetConfig) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("%s: refresh panic recovered: %v", name, r)
			c.metrics.SystemStatusUp.WithLabelValues(name).Set(0)
		}
		c.metrics.CollectionDurationSeconds.WithLabelValues(name).
			Set(time.Since(start).Seconds())
	}()

	logger.Debug("[%s] %s: start", cycleID, name)
	err := c.withTarget(ctx, target, func(db *sql.DB) error {
		logger.Debug("[%s] %s: connected", cycleID, name)
		timeout := connection.Timeout(target)
		cycle := &model.CycleContext{}

		if err := c.collectInfo(ctx, db, timeout, name, target, cycle); err != nil {
			return fmt.Errorf("info: %w", err)
		}
		logger.Debug("[%s] %s: info", cycleID, name)
		if err := c.collectSystem(ctx, db, timeout, name, cycle); err != nil {
			return fmt.Errorf("system: %w", err)
		}
		logger.Debug("[%s] %s: system", cycleID, name)
		if err := c.collectNetwork(ctx, db, timeout, name); err != nil {
			return fmt.Errorf("net: %w", err)
		}
		logger.Debug("[%s] %s: net", cycleID, name)
		if err := c.collectSubsystems(ctx, db, timeout, name); err != nil {
			return fmt.Errorf("subsystem: %w", err)
		}
		logger.Debug("[%s] %s: subsystem", cycleID, name)
		if err := c.collectHTTP(ctx, db, timeout, name); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		logger.Debug("[%s] %s: http", cycleID, name)
		if err := c.collectPools(ctx, db, timeout, name); err != nil {
			return fmt.Errorf("pool: %w", err)
		}
		logger.Debug("[%s] %s: pool", cycleID, name)
		return nil
	})
	if err != nil {
		logger.Error("%s: refresh failed: %s", name, err)
		c.metrics.SystemStatusUp.WithLabelValues(name).Set(0)
		return
	}
	c.metrics.SystemStatusUp.WithLabelValues(name).Set(1)
}
