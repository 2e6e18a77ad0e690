package ibmi

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/connection"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
)

// collectSubsystems publishes the status and active job count of every
// subsystem. A status outside the known vocabulary fails the target.
func (c *Collector) collectSubsystems(ctx context.Context, db *sql.DB, timeout time.Duration, name string) error {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryContext(qctx, querySubsystemInfo)
	if err != nil {
		if connection.IsFeatureUnavailable(err) {
			// Releases before 7.3 have no SUBSYSTEM_INFO.
			logger.Debug("%s: %s", name, err)
			return nil
		}
		return fmt.Errorf("reading SUBSYSTEM_INFO failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row subsystemRow
		if err := scanCurrentRow(rows, row.field); err != nil {
			return fmt.Errorf("decoding SUBSYSTEM_INFO row failed: %w", err)
		}

		labels := prometheus.Labels{"server": name, "subsystem": row.Description.String}
		if err := c.metrics.SubsystemStatus.Set(labels, row.Status.String); err != nil {
			return err
		}
		setGauge(c.metrics.SubsystemJobsActiveTotal, labels, row.ActiveJobs, nil)
	}
	return rows.Err()
}
