package ibmi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/config"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/metrics"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/model"
)

func testTarget(host string) config.TargetConfig {
	return config.TargetConfig{Host: host, User: "monitor", Pass: "s3cret", Timeout: 5}
}

// openResult is what the stubbed opener hands out for one refresh.
type openResult struct {
	db  *sql.DB
	err error
}

// prepareCollector builds a collector whose opener pops one result per
// refresh from the per host queues.
func prepareCollector(targets map[string]config.TargetConfig, opens map[string][]openResult) (*Collector, *metrics.IbmiMetrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := metrics.NewIbmiMetrics(reg)
	collr := NewCollector(&config.ExporterConfig{Targets: targets}, m)
	collr.open = func(_ context.Context, target config.TargetConfig) (*sql.DB, error) {
		queue := opens[target.Host]
		if len(queue) == 0 {
			return nil, fmt.Errorf("unexpected open for %s", target.Host)
		}
		next := queue[0]
		opens[target.Host] = queue[1:]
		return next.db, next.err
	}
	return collr, m, reg
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return db, mock
}

func expectEnvSysInfo(m sqlmock.Sqlmock) {
	m.ExpectQuery(queryEnvSysInfo).WillReturnRows(
		sqlmock.NewRows([]string{"HOST_NAME", "OS_NAME", "OS_VERSION", "OS_RELEASE", "TOTAL_MEMORY"}).
			AddRow("PROD1", "IBM i", "7", "5", 8192))
}

func expectDataArea(m sqlmock.Sqlmock) {
	m.ExpectQuery(queryOSVersionDataArea).WillReturnRows(
		sqlmock.NewRows([]string{"DATA_AREA_VALUE"}).AddRow("V7R5M0 2924"))
}

func expectCurrentServer(m sqlmock.Sqlmock) {
	m.ExpectQuery(queryCurrentServer).WillReturnRows(
		sqlmock.NewRows([]string{"CURRENT_SERVER"}).AddRow("S65BILL"))
}

var systemStatusColumns = []string{
	"ELAPSED_TIME", "MAXIMUM_JOBS_IN_SYSTEM", "TOTAL_JOBS_IN_SYSTEM",
	"ACTIVE_JOBS_IN_SYSTEM", "BATCH_RUNNING", "ACTIVE_THREADS_IN_SYSTEM",
	"MAIN_STORAGE_SIZE", "SYSTEM_ASP_STORAGE", "TOTAL_AUXILIARY_STORAGE",
	"SYSTEM_ASP_USED", "CURRENT_TEMPORARY_STORAGE",
	"PERMANENT_ADDRESS_RATE", "TEMPORARY_ADDRESS_RATE",
	"AVERAGE_CPU_RATE", "AVERAGE_CPU_UTILIZATION",
}

func expectDetailedStatus(m sqlmock.Sqlmock) {
	m.ExpectQuery(querySystemStatusDetailed).WillReturnRows(
		sqlmock.NewRows(systemStatusColumns).
			AddRow(3600, 163520, 4200, 310, 12, 900, 7, 5, 200, 42, 50, 3.5, 1.5, 0, 0))
}

func expectActivity(m sqlmock.Sqlmock) {
	m.ExpectQuery(querySystemActivity).WillReturnRows(
		sqlmock.NewRows([]string{"AVERAGE_CPU_RATE", "AVERAGE_CPU_UTILIZATION"}).
			AddRow(55.5, 23.25))
}

func expectRemoteConnections(m sqlmock.Sqlmock, count int) {
	m.ExpectQuery(queryRemoteConnections).WillReturnRows(
		sqlmock.NewRows([]string{"REMOTE_CONNECTIONS"}).AddRow(count))
}

func expectSubsystems(m sqlmock.Sqlmock) {
	m.ExpectQuery(querySubsystemInfo).WillReturnRows(
		sqlmock.NewRows([]string{"SUBSYSTEM_DESCRIPTION", "STATUS", "CURRENT_ACTIVE_JOBS"}).
			AddRow("QBATCH", "ACTIVE", 42).
			AddRow("QINTER", "INACTIVE", nil))
}

func expectHTTPServers(m sqlmock.Sqlmock) {
	m.ExpectQuery(queryHTTPServerInfo).WillReturnRows(
		sqlmock.NewRows([]string{
			"SERVER_NAME", "HTTP_FUNCTION", "SERVER_NORMAL_CONNECTIONS",
			"SERVER_SSL_CONNECTIONS", "REQUESTS", "RESPONSES",
			"ERROR_RESPONSES", "BYTES_SENT", "BYTES_RECEIVED",
		}).AddRow("ADMIN", "*ADMIN", 5, 2, 100, 99, 1, 12345, 6789))
}

func expectPools(m sqlmock.Sqlmock) {
	m.ExpectQuery(queryMemoryPoolInfo).WillReturnRows(
		sqlmock.NewRows([]string{"POOL_NAME", "CURRENT_SIZE", "RESERVED_SIZE", "CURRENT_THREADS"}).
			AddRow("*BASE    ", 5, 1, 37).
			AddRow("*MACHINE", 300, 120, 100))
}

// expectHealthyTarget declares the full expectation set of one successful
// refresh on a current release.
func expectHealthyTarget(m sqlmock.Sqlmock) {
	expectEnvSysInfo(m)
	expectDataArea(m)
	expectCurrentServer(m)
	expectDetailedStatus(m)
	expectActivity(m)
	expectRemoteConnections(m, 17)
	expectSubsystems(m)
	expectHTTPServers(m)
	expectPools(m)
	m.ExpectClose()
}

func expectFeatureMissing(m sqlmock.Sqlmock, query, object string) {
	m.ExpectQuery(query).WillReturnError(
		fmt.Errorf("SQLExecute: {42S02} [IBM][System i Access ODBC Driver][DB2 for i5/OS]SQL0204 - %s in QSYS2 type *FILE not found.", object))
}

func gauge(t *testing.T, vec *prometheus.GaugeVec, labels prometheus.Labels) float64 {
	t.Helper()
	g, err := vec.GetMetricWith(labels)
	require.NoError(t, err)
	return testutil.ToFloat64(g)
}

func TestRefreshAllSuccess(t *testing.T) {
	db, mock := newMock(t)
	expectHealthyTarget(mock)

	collr, m, reg := prepareCollector(
		map[string]config.TargetConfig{"ibmi_alpha": testTarget("alpha.example.com")},
		map[string][]openResult{"alpha.example.com": {{db: db}}},
	)
	collr.RefreshAll(context.Background())

	server := prometheus.Labels{"server": "ibmi_alpha"}
	assert.Equal(t, 1.0, gauge(t, m.SystemStatusUp, server))

	assert.Equal(t, 163520.0, gauge(t, m.SystemJobsMax, server))
	assert.Equal(t, 4200.0, gauge(t, m.SystemJobsAllTotal, server))
	assert.Equal(t, 310.0, gauge(t, m.SystemJobsActiveTotal, server))
	assert.Equal(t, 12.0, gauge(t, m.SystemJobsBatchTotal, server))
	assert.Equal(t, 900.0, gauge(t, m.SystemThreadsTotal, server))

	// 8192 MB of main memory, converted to bytes.
	assert.Equal(t, 8192000000.0, gauge(t, m.SystemMemoryCapacityBytesTotal, server))

	assert.Equal(t, 7000.0, gauge(t, m.SystemStorageCapacityBytes,
		prometheus.Labels{"server": "ibmi_alpha", "storage_type": "main"}))
	assert.Equal(t, 5000000.0, gauge(t, m.SystemStorageCapacityBytes,
		prometheus.Labels{"server": "ibmi_alpha", "storage_type": "asp"}))
	assert.Equal(t, 200000000.0, gauge(t, m.SystemStorageCapacityBytes,
		prometheus.Labels{"server": "ibmi_alpha", "storage_type": "auxiliary"}))

	assert.Equal(t, 0.42, gauge(t, m.SystemStorageUsedRatio,
		prometheus.Labels{"server": "ibmi_alpha", "storage_type": "asp"}))
	// 50 MB temporary storage of 200 MB total auxiliary storage.
	assert.Equal(t, 0.25, gauge(t, m.SystemStorageUsedRatio,
		prometheus.Labels{"server": "ibmi_alpha", "storage_type": "auxiliary"}))

	assert.Equal(t, 0.035, gauge(t, m.SystemStorageAddressUsedRatio,
		prometheus.Labels{"server": "ibmi_alpha", "object_type": "permanent"}))
	assert.Equal(t, 0.015, gauge(t, m.SystemStorageAddressUsedRatio,
		prometheus.Labels{"server": "ibmi_alpha", "object_type": "temporary"}))

	// CPU figures come from SYSTEM_ACTIVITY_INFO, not from the zeroed
	// columns of the detailed status row.
	assert.Equal(t, 0.555, gauge(t, m.SystemCPUNominalAverageRatio, server))
	assert.Equal(t, 0.2325, gauge(t, m.SystemCPUUsageAverageRatio, server))

	assert.Equal(t, 17.0, gauge(t, m.RemoteConnectionsTotal, server))

	httpBase := prometheus.Labels{"server": "ibmi_alpha", "http_server": "ADMIN", "http_function": "*ADMIN"}
	assert.Equal(t, 5.0, gauge(t, m.HTTPServerConnectionsTotal, withLabel(httpBase, "connections_type", "normal")))
	assert.Equal(t, 2.0, gauge(t, m.HTTPServerConnectionsTotal, withLabel(httpBase, "connections_type", "ssl")))
	assert.Equal(t, 100.0, gauge(t, m.HTTPServerRequestsTotal, httpBase))
	assert.Equal(t, 99.0, gauge(t, m.HTTPServerResponsesTotal, httpBase))
	assert.Equal(t, 1.0, gauge(t, m.HTTPServerErrorResponsesTotal, httpBase))
	assert.Equal(t, 12345.0, gauge(t, m.HTTPServerBytesTotal, withLabel(httpBase, "flow_direction", "sent")))
	assert.Equal(t, 6789.0, gauge(t, m.HTTPServerBytesTotal, withLabel(httpBase, "flow_direction", "received")))

	// Padded pool names are trimmed before they become label values.
	base := prometheus.Labels{"server": "ibmi_alpha", "pool_name": "*BASE"}
	assert.Equal(t, 5000000.0, gauge(t, m.PoolStorageCurrentBytes, base))
	assert.Equal(t, 1000000.0, gauge(t, m.PoolStorageReservedBytes, base))
	assert.Equal(t, 37.0, gauge(t, m.PoolThreadsTotal, base))

	// A subsystem with a null job count gets its status but no job series.
	assert.Equal(t, 42.0, gauge(t, m.SubsystemJobsActiveTotal,
		prometheus.Labels{"server": "ibmi_alpha", "subsystem": "QBATCH"}))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SubsystemJobsActiveTotal))

	expected := `
# HELP ibmi_subsystem_status The status of the subsystem
# TYPE ibmi_subsystem_status gauge
ibmi_subsystem_status{ibmi_subsystem_status="ACTIVE",server="ibmi_alpha",subsystem="QBATCH"} 1
ibmi_subsystem_status{ibmi_subsystem_status="ACTIVE",server="ibmi_alpha",subsystem="QINTER"} 0
ibmi_subsystem_status{ibmi_subsystem_status="ENDING",server="ibmi_alpha",subsystem="QBATCH"} 0
ibmi_subsystem_status{ibmi_subsystem_status="ENDING",server="ibmi_alpha",subsystem="QINTER"} 0
ibmi_subsystem_status{ibmi_subsystem_status="INACTIVE",server="ibmi_alpha",subsystem="QBATCH"} 0
ibmi_subsystem_status{ibmi_subsystem_status="INACTIVE",server="ibmi_alpha",subsystem="QINTER"} 1
ibmi_subsystem_status{ibmi_subsystem_status="RESTRICTED",server="ibmi_alpha",subsystem="QBATCH"} 0
ibmi_subsystem_status{ibmi_subsystem_status="RESTRICTED",server="ibmi_alpha",subsystem="QINTER"} 0
ibmi_subsystem_status{ibmi_subsystem_status="STARTING",server="ibmi_alpha",subsystem="QBATCH"} 0
ibmi_subsystem_status{ibmi_subsystem_status="STARTING",server="ibmi_alpha",subsystem="QINTER"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ibmi_subsystem_status"))

	expected = `
# HELP ibmi_ecosystem_environment_info Environment of the server
# TYPE ibmi_ecosystem_environment_info gauge
ibmi_ecosystem_environment_info{database_name="S65BILL",dbms_product="IBM i",dbms_version="7.5",host_name="PROD1",language_feature_code="2924",os_version="V7R5M0",server="ibmi_alpha",server_name="alpha.example.com"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ibmi_ecosystem_environment_info"))

	assert.Equal(t, 1, testutil.CollectAndCount(m.CollectionDurationSeconds))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshAllOlderRelease(t *testing.T) {
	db, mock := newMock(t)
	expectEnvSysInfo(mock)
	expectFeatureMissing(mock, queryOSVersionDataArea, "DATA_AREA_INFO")
	expectCurrentServer(mock)
	expectFeatureMissing(mock, querySystemStatusDetailed, "SYSTEM_STATUS")
	// The plain variant of an older release carries real CPU figures and a
	// smaller column set.
	mock.ExpectQuery(querySystemStatus).WillReturnRows(
		sqlmock.NewRows([]string{
			"MAXIMUM_JOBS_IN_SYSTEM", "TOTAL_JOBS_IN_SYSTEM", "ACTIVE_JOBS_IN_SYSTEM",
			"BATCH_RUNNING", "ACTIVE_THREADS_IN_SYSTEM", "MAIN_STORAGE_SIZE",
			"SYSTEM_ASP_STORAGE", "TOTAL_AUXILIARY_STORAGE", "SYSTEM_ASP_USED",
			"CURRENT_TEMPORARY_STORAGE", "AVERAGE_CPU_RATE", "AVERAGE_CPU_UTILIZATION",
		}).AddRow(163520, 2100, 200, 7, 500, 4096, 100, 400, 31, 100, 12.5, 34.5))
	expectFeatureMissing(mock, querySystemActivity, "SYSTEM_ACTIVITY_INFO")
	expectRemoteConnections(mock, 5)
	expectFeatureMissing(mock, querySubsystemInfo, "SUBSYSTEM_INFO")
	expectFeatureMissing(mock, queryHTTPServerInfo, "HTTP_SERVER_INFO")
	expectPools(mock)
	mock.ExpectClose()

	collr, m, reg := prepareCollector(
		map[string]config.TargetConfig{"ibmi_legacy": testTarget("legacy.example.com")},
		map[string][]openResult{"legacy.example.com": {{db: db}}},
	)
	collr.RefreshAll(context.Background())

	server := prometheus.Labels{"server": "ibmi_legacy"}
	// Missing optional services never fail the target.
	assert.Equal(t, 1.0, gauge(t, m.SystemStatusUp, server))

	// Without the data area the coarse version form is kept.
	expected := `
# HELP ibmi_ecosystem_environment_info Environment of the server
# TYPE ibmi_ecosystem_environment_info gauge
ibmi_ecosystem_environment_info{database_name="S65BILL",dbms_product="IBM i",dbms_version="7.5",host_name="PROD1",language_feature_code="",os_version="V7R5",server="ibmi_legacy",server_name="legacy.example.com"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ibmi_ecosystem_environment_info"))

	// CPU figures fall back to the status row.
	assert.Equal(t, 0.125, gauge(t, m.SystemCPUNominalAverageRatio, server))
	assert.Equal(t, 0.345, gauge(t, m.SystemCPUUsageAverageRatio, server))

	assert.Equal(t, 5.0, gauge(t, m.RemoteConnectionsTotal, server))

	// Absent services leave their series absent, absent columns likewise.
	assert.Equal(t, 0, testutil.CollectAndCount(m.HTTPServerRequestsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.SubsystemJobsActiveTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.SystemStorageAddressUsedRatio))

	// Pools still populate on old releases.
	assert.Equal(t, 100.0, gauge(t, m.PoolThreadsTotal,
		prometheus.Labels{"server": "ibmi_legacy", "pool_name": "*MACHINE"}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshAllIsolatesTargetFailure(t *testing.T) {
	alphaDB, alphaMock := newMock(t)
	expectHealthyTarget(alphaMock)

	collr, m, _ := prepareCollector(
		map[string]config.TargetConfig{
			"ibmi_alpha": testTarget("alpha.example.com"),
			"ibmi_beta":  testTarget("beta.example.com"),
		},
		map[string][]openResult{
			"alpha.example.com": {{db: alphaDB}},
			"beta.example.com":  {{err: errors.New("communication link failure")}},
		},
	)
	collr.RefreshAll(context.Background())

	assert.Equal(t, 1.0, gauge(t, m.SystemStatusUp, prometheus.Labels{"server": "ibmi_alpha"}))
	assert.Equal(t, 0.0, gauge(t, m.SystemStatusUp, prometheus.Labels{"server": "ibmi_beta"}))
	// Both targets report a refresh duration, even the failed one.
	assert.Equal(t, 2, testutil.CollectAndCount(m.CollectionDurationSeconds))

	require.NoError(t, alphaMock.ExpectationsWereMet())
}

func TestRefreshAllKeepsLastValuesOfFailedTarget(t *testing.T) {
	firstDB, firstMock := newMock(t)
	expectHealthyTarget(firstMock)

	collr, m, _ := prepareCollector(
		map[string]config.TargetConfig{"ibmi_alpha": testTarget("alpha.example.com")},
		map[string][]openResult{"alpha.example.com": {
			{db: firstDB},
			{err: errors.New("communication link failure")},
		}},
	)

	collr.RefreshAll(context.Background())
	server := prometheus.Labels{"server": "ibmi_alpha"}
	assert.Equal(t, 1.0, gauge(t, m.SystemStatusUp, server))
	assert.Equal(t, 17.0, gauge(t, m.RemoteConnectionsTotal, server))

	// The next cycle cannot reach the host: the status flips to down, the
	// previously published values stay until a refresh succeeds again.
	collr.RefreshAll(context.Background())
	assert.Equal(t, 0.0, gauge(t, m.SystemStatusUp, server))
	assert.Equal(t, 17.0, gauge(t, m.RemoteConnectionsTotal, server))

	require.NoError(t, firstMock.ExpectationsWereMet())
}

func TestRefreshAllFailureScenarios(t *testing.T) {
	tests := map[string]struct {
		prepareMock func(m sqlmock.Sqlmock)
	}{
		"unknown subsystem state": {
			prepareMock: func(m sqlmock.Sqlmock) {
				expectEnvSysInfo(m)
				expectDataArea(m)
				expectCurrentServer(m)
				expectDetailedStatus(m)
				expectActivity(m)
				expectRemoteConnections(m, 17)
				m.ExpectQuery(querySubsystemInfo).WillReturnRows(
					sqlmock.NewRows([]string{"SUBSYSTEM_DESCRIPTION", "STATUS", "CURRENT_ACTIVE_JOBS"}).
						AddRow("QBATCH", "HIBERNATING", 42))
				m.ExpectClose()
			},
		},
		"malformed data area value": {
			prepareMock: func(m sqlmock.Sqlmock) {
				expectEnvSysInfo(m)
				m.ExpectQuery(queryOSVersionDataArea).WillReturnRows(
					sqlmock.NewRows([]string{"DATA_AREA_VALUE"}).AddRow("V7R5M0"))
				m.ExpectClose()
			},
		},
		"mandatory env column missing": {
			prepareMock: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(queryEnvSysInfo).WillReturnRows(
					sqlmock.NewRows([]string{"HOST_NAME", "OS_NAME", "OS_VERSION", "OS_RELEASE", "TOTAL_MEMORY"}).
						AddRow("PROD1", "IBM i", "7", "5", nil))
				m.ExpectClose()
			},
		},
		"auxiliary denominator missing": {
			prepareMock: func(m sqlmock.Sqlmock) {
				expectEnvSysInfo(m)
				expectDataArea(m)
				expectCurrentServer(m)
				m.ExpectQuery(querySystemStatusDetailed).WillReturnRows(
					sqlmock.NewRows(systemStatusColumns).
						AddRow(3600, 163520, 4200, 310, 12, 900, 7, 5, nil, 42, 50, 3.5, 1.5, 0, 0))
				m.ExpectClose()
			},
		},
		"transport error mid cycle": {
			prepareMock: func(m sqlmock.Sqlmock) {
				expectEnvSysInfo(m)
				expectDataArea(m)
				expectCurrentServer(m)
				m.ExpectQuery(querySystemStatusDetailed).
					WillReturnError(errors.New("communication link failure"))
				m.ExpectClose()
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			db, mock := newMock(t)
			test.prepareMock(mock)

			collr, m, _ := prepareCollector(
				map[string]config.TargetConfig{"ibmi_alpha": testTarget("alpha.example.com")},
				map[string][]openResult{"alpha.example.com": {{db: db}}},
			)
			collr.RefreshAll(context.Background())

			assert.Equal(t, 0.0, gauge(t, m.SystemStatusUp, prometheus.Labels{"server": "ibmi_alpha"}))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCollectSystemNeedsTotalMemoryOfThisCycle(t *testing.T) {
	db, mock := newMock(t)
	expectDetailedStatus(mock)

	collr, _, _ := prepareCollector(nil, nil)
	err := collr.collectSystem(context.Background(), db, 5*time.Second, "ibmi_alpha", &model.CycleContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total memory")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoteConnectionsQueryExcludesLoopback(t *testing.T) {
	assert.Contains(t, queryRemoteConnections, "TCP_STATE = 'ESTABLISHED'")
	assert.Contains(t, queryRemoteConnections, "REMOTE_ADDRESS != '::1'")
	assert.Contains(t, queryRemoteConnections, "REMOTE_ADDRESS != '127.0.0.1'")
}
