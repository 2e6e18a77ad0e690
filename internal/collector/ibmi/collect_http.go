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

// collectHTTP publishes the per server, per function figures of the
// integrated HTTP servers.
func (c *Collector) collectHTTP(ctx context.Context, db *sql.DB, timeout time.Duration, name string) error {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryContext(qctx, queryHTTPServerInfo)
	if err != nil {
		if connection.IsFeatureUnavailable(err) {
			// Releases before 7.3 have no HTTP_SERVER_INFO.
			logger.Debug("%s: %s", name, err)
			return nil
		}
		return fmt.Errorf("reading HTTP_SERVER_INFO failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row httpServerRow
		if err := scanCurrentRow(rows, row.field); err != nil {
			return fmt.Errorf("decoding HTTP_SERVER_INFO row failed: %w", err)
		}

		base := prometheus.Labels{
			"server":        name,
			"http_server":   row.ServerName.String,
			"http_function": row.HTTPFunction.String,
		}
		setGauge(c.metrics.HTTPServerConnectionsTotal,
			withLabel(base, "connections_type", "normal"), row.NormalConnections, nil)
		setGauge(c.metrics.HTTPServerConnectionsTotal,
			withLabel(base, "connections_type", "ssl"), row.SSLConnections, nil)
		setGauge(c.metrics.HTTPServerRequestsTotal, base, row.Requests, nil)
		setGauge(c.metrics.HTTPServerResponsesTotal, base, row.Responses, nil)
		setGauge(c.metrics.HTTPServerErrorResponsesTotal, base, row.ErrorResponses, nil)
		setGauge(c.metrics.HTTPServerBytesTotal,
			withLabel(base, "flow_direction", "sent"), row.BytesSent, nil)
		setGauge(c.metrics.HTTPServerBytesTotal,
			withLabel(base, "flow_direction", "received"), row.BytesReceived, nil)
	}
	return rows.Err()
}

// withLabel copies labels and adds one more.
func withLabel(labels prometheus.Labels, key, value string) prometheus.Labels {
	out := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}
