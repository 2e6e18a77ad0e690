package ibmi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/config"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/connection"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/model"
)

// collectInfo reads the machine facts and publishes the environment info
// series. It also records the total memory for the system collector, which
// is why it has to run first in a cycle.
func (c *Collector) collectInfo(ctx context.Context, db *sql.DB, timeout time.Duration, name string, target config.TargetConfig, cycle *model.CycleContext) error {
	var env envSysInfoRow
	if err := queryRowRecord(ctx, db, timeout, queryEnvSysInfo, env.field); err != nil {
		return fmt.Errorf("reading ENV_SYS_INFO failed: %w", err)
	}
	if !env.HostName.Valid || !env.OSVersion.Valid || !env.OSRelease.Valid || !env.TotalMemoryMB.Valid {
		return errors.New("ENV_SYS_INFO row lacks mandatory columns")
	}
	cycle.SetTotalMemoryBytes(megabytesToBytes(env.TotalMemoryMB.Float64))

	osVersion := fmt.Sprintf("V%sR%s",
		strings.TrimSpace(env.OSVersion.String), strings.TrimSpace(env.OSRelease.String))
	languageFeatureCode := ""

	var dataAreaValue string
	err := queryValue(ctx, db, timeout, queryOSVersionDataArea, &dataAreaValue)
	switch {
	case err == nil:
		// QSS1MRI holds the full version string and the language feature
		// code, for example "V7R5M0 2924".
		parts := strings.Fields(dataAreaValue)
		if len(parts) != 2 {
			return fmt.Errorf("unexpected QSS1MRI data area value %q", dataAreaValue)
		}
		osVersion, languageFeatureCode = parts[0], parts[1]
	case connection.IsFeatureUnavailable(err):
		// Releases before 7.3 have no DATA_AREA_INFO, keep the coarse form.
		logger.Debug("%s: %s", name, err)
	default:
		return fmt.Errorf("reading QSS1MRI data area failed: %w", err)
	}

	var databaseName string
	if err := queryValue(ctx, db, timeout, queryCurrentServer, &databaseName); err != nil {
		return fmt.Errorf("reading current server failed: %w", err)
	}

	return c.metrics.EcosystemEnvironment.Set(
		prometheus.Labels{"server": name},
		map[string]string{
			"database_name": strings.TrimSpace(databaseName),
			"dbms_product":  strings.TrimSpace(env.OSName.String),
			"dbms_version": fmt.Sprintf("%s.%s",
				strings.TrimSpace(env.OSVersion.String), strings.TrimSpace(env.OSRelease.String)),
			"server_name":           target.Host,
			"host_name":             strings.TrimSpace(env.HostName.String),
			"os_version":            osVersion,
			"language_feature_code": languageFeatureCode,
		})
}
