package ibmi

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// collectNetwork publishes the count of established remote connections.
func (c *Collector) collectNetwork(ctx context.Context, db *sql.DB, timeout time.Duration, name string) error {
	var count float64
	if err := queryValue(ctx, db, timeout, queryRemoteConnections, &count); err != nil {
		return fmt.Errorf("counting remote connections failed: %w", err)
	}
	c.metrics.RemoteConnectionsTotal.With(prometheus.Labels{"server": name}).Set(count)
	return nil
}
