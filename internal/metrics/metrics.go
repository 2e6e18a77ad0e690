package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every series the exporter publishes.
const Namespace = "ibmi"

// IbmiMetrics declares every series the exporter publishes. All series are
// registered once at construction; label tuples appear on first write and
// are never pruned, so a previously seen target keeps its last values until
// the next successful refresh.
type IbmiMetrics struct {
	SystemStatusUp       *prometheus.GaugeVec
	EcosystemEnvironment *InfoVec

	SystemJobsMax                  *prometheus.GaugeVec
	SystemJobsAllTotal             *prometheus.GaugeVec
	SystemJobsActiveTotal          *prometheus.GaugeVec
	SystemJobsBatchTotal           *prometheus.GaugeVec
	SystemThreadsTotal             *prometheus.GaugeVec
	SystemCPUUsageAverageRatio     *prometheus.GaugeVec
	SystemCPUNominalAverageRatio   *prometheus.GaugeVec
	SystemMemoryCapacityBytesTotal *prometheus.GaugeVec
	SystemStorageCapacityBytes     *prometheus.GaugeVec
	SystemStorageUsedRatio         *prometheus.GaugeVec
	SystemStorageAddressUsedRatio  *prometheus.GaugeVec

	RemoteConnectionsTotal *prometheus.GaugeVec

	HTTPServerConnectionsTotal    *prometheus.GaugeVec
	HTTPServerRequestsTotal       *prometheus.GaugeVec
	HTTPServerResponsesTotal      *prometheus.GaugeVec
	HTTPServerErrorResponsesTotal *prometheus.GaugeVec
	HTTPServerBytesTotal          *prometheus.GaugeVec

	SubsystemStatus          *EnumVec
	SubsystemJobsActiveTotal *prometheus.GaugeVec

	PoolStorageCurrentBytes  *prometheus.GaugeVec
	PoolStorageReservedBytes *prometheus.GaugeVec
	PoolThreadsTotal         *prometheus.GaugeVec

	CollectionDurationSeconds *prometheus.GaugeVec
}

// NewIbmiMetrics constructs the full series set and registers it with reg.
func NewIbmiMetrics(reg prometheus.Registerer) *IbmiMetrics {
	return &IbmiMetrics{
		SystemStatusUp: newGauge(reg,
			"system_status_up",
			"System is up",
			"server"),
		EcosystemEnvironment: newInfo(reg,
			"ecosystem_environment_info",
			"Environment of the server",
			[]string{"server"},
			"database_name", "dbms_product", "dbms_version", "server_name",
			"host_name", "os_version", "language_feature_code"),
		SystemJobsMax: newGauge(reg,
			"system_jobs_max",
			"The maximum number of jobs that are allowed on the system",
			"server"),
		SystemJobsAllTotal: newGauge(reg,
			"system_jobs_all_total",
			"The total number of user and system jobs that are currently in the system",
			"server"),
		SystemJobsActiveTotal: newGauge(reg,
			"system_jobs_active_total",
			"The total number of user and system active jobs in the system",
			"server"),
		SystemJobsBatchTotal: newGauge(reg,
			"system_jobs_batch_total",
			"The number of batch jobs currently running on the system",
			"server"),
		SystemThreadsTotal: newGauge(reg,
			"system_threads_total",
			"The number of initial and secondary threads in the system, including both user and system threads",
			"server"),
		SystemCPUUsageAverageRatio: newGauge(reg,
			"system_cpu_usage_average_ratio",
			"Average CPU utilization for all of the active processors",
			"server"),
		SystemCPUNominalAverageRatio: newGauge(reg,
			"system_cpu_nominal_average_ratio",
			"CPU rate per nominal frequency",
			"server"),
		SystemMemoryCapacityBytesTotal: newGauge(reg,
			"system_memory_capacity_bytes_total",
			"Total amount of memory on the system",
			"server"),
		SystemStorageCapacityBytes: newGauge(reg,
			"system_storage_capacity_bytes",
			"The amount of storage in the system",
			"server", "storage_type"),
		SystemStorageUsedRatio: newGauge(reg,
			"system_storage_used_ratio",
			"The percentage of the storage currently in use",
			"server", "storage_type"),
		SystemStorageAddressUsedRatio: newGauge(reg,
			"system_storage_address_used_ratio",
			"The percentage of the maximum possible addresses for objects that have been used",
			"server", "object_type"),
		RemoteConnectionsTotal: newGauge(reg,
			"remote_connections_total",
			"Total number of IPv4 and IPv6 network connections",
			"server"),
		HTTPServerConnectionsTotal: newGauge(reg,
			"http_server_connections_total",
			"Total number of connections to the server",
			"server", "http_server", "http_function", "connections_type"),
		HTTPServerRequestsTotal: newGauge(reg,
			"http_server_requests_total",
			"Number of requests received",
			"server", "http_server", "http_function"),
		HTTPServerResponsesTotal: newGauge(reg,
			"http_server_responses_total",
			"Number of responses sent",
			"server", "http_server", "http_function"),
		HTTPServerErrorResponsesTotal: newGauge(reg,
			"http_server_error_responses_total",
			"Number of error responses",
			"server", "http_server", "http_function"),
		HTTPServerBytesTotal: newGauge(reg,
			"http_server_bytes_total",
			"Total number of bytes sent or received for all requests",
			"server", "http_server", "http_function", "flow_direction"),
		SubsystemStatus: newEnum(reg,
			"subsystem_status",
			"The status of the subsystem",
			[]string{"server", "subsystem"},
			"ACTIVE", "ENDING", "INACTIVE", "RESTRICTED", "STARTING"),
		SubsystemJobsActiveTotal: newGauge(reg,
			"subsystem_jobs_active_total",
			"The number of jobs currently active in the subsystem",
			"server", "subsystem"),
		PoolStorageCurrentBytes: newGauge(reg,
			"pool_storage_current_bytes",
			"The amount of main storage, in the pool",
			"server", "pool_name"),
		PoolStorageReservedBytes: newGauge(reg,
			"pool_storage_reserved_bytes",
			"The amount of storage, in the pool reserved for system use (for example, for save/restore operations).",
			"server", "pool_name"),
		PoolThreadsTotal: newGauge(reg,
			"pool_threads_total",
			"The number of threads currently using the pool",
			"server", "pool_name"),
		CollectionDurationSeconds: newGauge(reg,
			"collection_duration_seconds",
			"Duration of the last refresh of the server",
			"server"),
	}
}

func newGauge(reg prometheus.Registerer, name, help string, labelNames ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, labelNames)
	reg.MustRegister(vec)
	return vec
}

var (
	defaultMetrics  *IbmiMetrics
	defaultRegistry *prometheus.Registry
	defaultOnce     sync.Once
)

// Default returns the process wide metrics instance and the registry backing
// it, both created on first use. The registry also carries the standard Go
// process series so the exposition endpoint reports the exporter itself.
func Default() (*IbmiMetrics, *prometheus.Registry) {
	defaultOnce.Do(func() {
		defaultRegistry = prometheus.NewRegistry()
		defaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		defaultMetrics = NewIbmiMetrics(defaultRegistry)
	})
	return defaultMetrics, defaultRegistry
}
