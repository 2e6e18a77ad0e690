package ibmi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/connection"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/model"
)

// collectSystem publishes the job, thread, CPU, memory and storage series
// from the system status and activity services.
func (c *Collector) collectSystem(ctx context.Context, db *sql.DB, timeout time.Duration, name string, cycle *model.CycleContext) error {
	var status systemStatusRow
	err := queryRowRecord(ctx, db, timeout, querySystemStatusDetailed, status.field)
	if connection.IsFeatureUnavailable(err) {
		// Releases before 7.3 reject the DETAILED_INFO parameter.
		logger.Debug("%s: %s", name, err)
		status = systemStatusRow{}
		err = queryRowRecord(ctx, db, timeout, querySystemStatus, status.field)
	}
	if err != nil {
		return fmt.Errorf("reading SYSTEM_STATUS failed: %w", err)
	}

	server := prometheus.Labels{"server": name}
	setGauge(c.metrics.SystemJobsMax, server, status.MaximumJobs, nil)
	setGauge(c.metrics.SystemJobsAllTotal, server, status.TotalJobs, nil)
	setGauge(c.metrics.SystemJobsActiveTotal, server, status.ActiveJobs, nil)
	setGauge(c.metrics.SystemJobsBatchTotal, server, status.BatchRunning, nil)
	setGauge(c.metrics.SystemThreadsTotal, server, status.ActiveThreads, nil)

	totalMemory, ok := cycle.TotalMemoryBytes()
	if !ok {
		return errors.New("total memory was not collected in this cycle")
	}
	c.metrics.SystemMemoryCapacityBytesTotal.With(server).Set(totalMemory)

	setGauge(c.metrics.SystemStorageCapacityBytes,
		prometheus.Labels{"server": name, "storage_type": "main"},
		status.MainStorageKB, kilobytesToBytes)
	setGauge(c.metrics.SystemStorageCapacityBytes,
		prometheus.Labels{"server": name, "storage_type": "asp"},
		status.SystemASPMB, megabytesToBytes)
	setGauge(c.metrics.SystemStorageCapacityBytes,
		prometheus.Labels{"server": name, "storage_type": "auxiliary"},
		status.TotalAuxiliaryMB, megabytesToBytes)

	setGauge(c.metrics.SystemStorageUsedRatio,
		prometheus.Labels{"server": name, "storage_type": "asp"},
		status.SystemASPUsedPct, percentToRatio)
	// The auxiliary use ratio is the temporary storage share of the total
	// auxiliary storage, both reported in megabytes.
	if status.CurrentTemporaryMB.Valid {
		if !status.TotalAuxiliaryMB.Valid || status.TotalAuxiliaryMB.Float64 == 0 {
			return errors.New("TOTAL_AUXILIARY_STORAGE is absent or zero, cannot compute the auxiliary use ratio")
		}
		c.metrics.SystemStorageUsedRatio.
			With(prometheus.Labels{"server": name, "storage_type": "auxiliary"}).
			Set(status.CurrentTemporaryMB.Float64 / status.TotalAuxiliaryMB.Float64)
	}

	setGauge(c.metrics.SystemStorageAddressUsedRatio,
		prometheus.Labels{"server": name, "object_type": "permanent"},
		status.PermanentAddressPct, percentToRatio)
	setGauge(c.metrics.SystemStorageAddressUsedRatio,
		prometheus.Labels{"server": name, "object_type": "temporary"},
		status.TemporaryAddressPct, percentToRatio)

	// Since 7.3 SYSTEM_STATUS always reports AVERAGE_CPU_RATE as zero and
	// the real figures live in SYSTEM_ACTIVITY_INFO. Older releases lack the
	// service and keep the figures of the status row.
	cpuRate := status.AverageCPURatePct
	cpuUtilization := status.AverageCPUUtilizationPct
	var activity systemActivityRow
	err = queryRowRecord(ctx, db, timeout, querySystemActivity, activity.field)
	switch {
	case err == nil:
		cpuRate = activity.AverageCPURatePct
		cpuUtilization = activity.AverageCPUUtilizationPct
	case connection.IsFeatureUnavailable(err):
		logger.Debug("%s: %s", name, err)
	default:
		return fmt.Errorf("reading SYSTEM_ACTIVITY_INFO failed: %w", err)
	}
	setGauge(c.metrics.SystemCPUNominalAverageRatio, server, cpuRate, percentToRatio)
	setGauge(c.metrics.SystemCPUUsageAverageRatio, server, cpuUtilization, percentToRatio)

	return nil
}
