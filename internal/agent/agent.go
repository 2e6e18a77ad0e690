package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/collector/ibmi"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/config"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/metrics"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/pkg/utils"
)

// Agent owns the refresh loop and the scrape endpoint.
type Agent struct {
	cfg        *config.ExporterConfig
	collector  *ibmi.Collector
	registry   *prometheus.Registry
	httpServer *http.Server
	pollTicker *time.Ticker
	stopCh     chan struct{}
}

// NewAgent creates an agent for the given configuration.
func NewAgent(cfg *config.ExporterConfig) *Agent {
	m, reg := metrics.Default()
	return &Agent{
		cfg:       cfg,
		collector: ibmi.NewCollector(cfg, m),
		registry:  reg,
		stopCh:    make(chan struct{}),
	}
}

// Start brings up the metrics endpoint and the collection loop. It does not
// block; the service wrapper expects it to return once everything runs.
func (a *Agent) Start() error {
	logger.Info("starting the exporter for %d targets", len(a.cfg.Targets))

	if err := a.startMetricsServer(); err != nil {
		return err
	}
	a.startPolling()

	return nil
}

// Stop shuts down the collection loop and the metrics endpoint.
func (a *Agent) Stop() {
	logger.Info("stopping the exporter")
	close(a.stopCh)

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown failed: %v", err)
		}
	}
}

// startMetricsServer binds the scrape port right away so a busy port fails
// Start instead of surfacing later inside a goroutine.
func (a *Agent) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.ListenPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("cannot listen on port %d: %w", a.cfg.ListenPort, err)
	}

	go func() {
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed: %v", err)
		}
	}()

	logger.Info("metrics endpoint listening on http://%s:%d/metrics", utils.GetLocalIP(), a.cfg.ListenPort)
	return nil
}

// startPolling refreshes all targets once immediately, then on every tick,
// so the endpoint never serves an empty registry while waiting for the
// first interval to pass.
func (a *Agent) startPolling() {
	interval := time.Duration(a.cfg.PollInterval) * time.Second
	a.pollTicker = time.NewTicker(interval)

	go func() {
		a.collector.RefreshAll(context.Background())
		for {
			select {
			case <-a.stopCh:
				a.pollTicker.Stop()
				return
			case <-a.pollTicker.C:
				a.collector.RefreshAll(context.Background())
			}
		}
	}()

	logger.Info("periodic collection started (interval: %v)", interval)
}
