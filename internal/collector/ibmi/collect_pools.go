package ibmi

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// collectPools publishes the size and thread figures of the memory pools.
// MEMORY_POOL_INFO exists on every supported release, there is no fallback.
func (c *Collector) collectPools(ctx context.Context, db *sql.DB, timeout time.Duration, name string) error {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryContext(qctx, queryMemoryPoolInfo)
	if err != nil {
		return fmt.Errorf("reading MEMORY_POOL_INFO failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row memoryPoolRow
		if err := scanCurrentRow(rows, row.field); err != nil {
			return fmt.Errorf("decoding MEMORY_POOL_INFO row failed: %w", err)
		}

		// Pool names of the shared pools come back blank padded.
		labels := prometheus.Labels{
			"server":    name,
			"pool_name": strings.TrimSpace(row.PoolName.String),
		}
		setGauge(c.metrics.PoolStorageCurrentBytes, labels, row.CurrentSizeMB, megabytesToBytes)
		setGauge(c.metrics.PoolStorageReservedBytes, labels, row.ReservedSizeMB, megabytesToBytes)
		setGauge(c.metrics.PoolThreadsTotal, labels, row.CurrentThreads, nil)
	}
	return rows.Err()
}
