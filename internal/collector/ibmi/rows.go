package ibmi

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Each query decodes into a fixed shape record. Optional figures are Null
// types: a column the release does not produce leaves its field invalid and
// the matching series is simply not written. Columns a record does not
// declare are discarded.

// envSysInfoRow mirrors the single row of SYSIBMADM.ENV_SYS_INFO.
type envSysInfoRow struct {
	HostName      sql.NullString
	OSName        sql.NullString
	OSVersion     sql.NullString
	OSRelease     sql.NullString
	TotalMemoryMB sql.NullFloat64
}

func (r *envSysInfoRow) field(column string) any {
	switch column {
	case "HOST_NAME":
		return &r.HostName
	case "OS_NAME":
		return &r.OSName
	case "OS_VERSION":
		return &r.OSVersion
	case "OS_RELEASE":
		return &r.OSRelease
	case "TOTAL_MEMORY":
		return &r.TotalMemoryMB
	default:
		return nil
	}
}

// systemStatusRow mirrors the row of QSYS2.SYSTEM_STATUS. The column set
// varies with the release and with the DETAILED_INFO parameter.
type systemStatusRow struct {
	MaximumJobs   sql.NullFloat64
	TotalJobs     sql.NullFloat64
	ActiveJobs    sql.NullFloat64
	BatchRunning  sql.NullFloat64
	ActiveThreads sql.NullFloat64

	MainStorageKB      sql.NullFloat64
	SystemASPMB        sql.NullFloat64
	TotalAuxiliaryMB   sql.NullFloat64
	SystemASPUsedPct   sql.NullFloat64
	CurrentTemporaryMB sql.NullFloat64

	PermanentAddressPct sql.NullFloat64
	TemporaryAddressPct sql.NullFloat64

	AverageCPURatePct        sql.NullFloat64
	AverageCPUUtilizationPct sql.NullFloat64
}

func (r *systemStatusRow) field(column string) any {
	switch column {
	case "MAXIMUM_JOBS_IN_SYSTEM":
		return &r.MaximumJobs
	case "TOTAL_JOBS_IN_SYSTEM":
		return &r.TotalJobs
	case "ACTIVE_JOBS_IN_SYSTEM":
		return &r.ActiveJobs
	case "BATCH_RUNNING":
		return &r.BatchRunning
	case "ACTIVE_THREADS_IN_SYSTEM":
		return &r.ActiveThreads
	case "MAIN_STORAGE_SIZE":
		return &r.MainStorageKB
	case "SYSTEM_ASP_STORAGE":
		return &r.SystemASPMB
	case "TOTAL_AUXILIARY_STORAGE":
		return &r.TotalAuxiliaryMB
	case "SYSTEM_ASP_USED":
		return &r.SystemASPUsedPct
	case "CURRENT_TEMPORARY_STORAGE":
		return &r.CurrentTemporaryMB
	case "PERMANENT_ADDRESS_RATE":
		return &r.PermanentAddressPct
	case "TEMPORARY_ADDRESS_RATE":
		return &r.TemporaryAddressPct
	case "AVERAGE_CPU_RATE":
		return &r.AverageCPURatePct
	case "AVERAGE_CPU_UTILIZATION":
		return &r.AverageCPUUtilizationPct
	default:
		return nil
	}
}

// systemActivityRow mirrors the row of QSYS2.SYSTEM_ACTIVITY_INFO.
type systemActivityRow struct {
	AverageCPURatePct        sql.NullFloat64
	AverageCPUUtilizationPct sql.NullFloat64
}

func (r *systemActivityRow) field(column string) any {
	switch column {
	case "AVERAGE_CPU_RATE":
		return &r.AverageCPURatePct
	case "AVERAGE_CPU_UTILIZATION":
		return &r.AverageCPUUtilizationPct
	default:
		return nil
	}
}

// httpServerRow mirrors one row of QSYS2.HTTP_SERVER_INFO.
type httpServerRow struct {
	ServerName        sql.NullString
	HTTPFunction      sql.NullString
	NormalConnections sql.NullFloat64
	SSLConnections    sql.NullFloat64
	Requests          sql.NullFloat64
	Responses         sql.NullFloat64
	ErrorResponses    sql.NullFloat64
	BytesSent         sql.NullFloat64
	BytesReceived     sql.NullFloat64
}

func (r *httpServerRow) field(column string) any {
	switch column {
	case "SERVER_NAME":
		return &r.ServerName
	case "HTTP_FUNCTION":
		return &r.HTTPFunction
	case "SERVER_NORMAL_CONNECTIONS":
		return &r.NormalConnections
	case "SERVER_SSL_CONNECTIONS":
		return &r.SSLConnections
	case "REQUESTS":
		return &r.Requests
	case "RESPONSES":
		return &r.Responses
	case "ERROR_RESPONSES":
		return &r.ErrorResponses
	case "BYTES_SENT":
		return &r.BytesSent
	case "BYTES_RECEIVED":
		return &r.BytesReceived
	default:
		return nil
	}
}

// subsystemRow mirrors one row of QSYS2.SUBSYSTEM_INFO.
type subsystemRow struct {
	Description sql.NullString
	Status      sql.NullString
	ActiveJobs  sql.NullFloat64
}

func (r *subsystemRow) field(column string) any {
	switch column {
	case "SUBSYSTEM_DESCRIPTION":
		return &r.Description
	case "STATUS":
		return &r.Status
	case "CURRENT_ACTIVE_JOBS":
		return &r.ActiveJobs
	default:
		return nil
	}
}

// memoryPoolRow mirrors one row of QSYS2.MEMORY_POOL_INFO.
type memoryPoolRow struct {
	PoolName       sql.NullString
	CurrentSizeMB  sql.NullFloat64
	ReservedSizeMB sql.NullFloat64
	CurrentThreads sql.NullFloat64
}

func (r *memoryPoolRow) field(column string) any {
	switch column {
	case "POOL_NAME":
		return &r.PoolName
	case "CURRENT_SIZE":
		return &r.CurrentSizeMB
	case "RESERVED_SIZE":
		return &r.ReservedSizeMB
	case "CURRENT_THREADS":
		return &r.CurrentThreads
	default:
		return nil
	}
}

// scanCurrentRow scans the current row, mapping each result column through
// pick onto a record field. Columns pick does not know go to a throwaway
// destination.
func scanCurrentRow(rows *sql.Rows, pick func(column string) any) error {
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading columns failed: %w", err)
	}
	targets := make([]any, len(columns))
	for i, column := range columns {
		if dst := pick(strings.ToUpper(column)); dst != nil {
			targets[i] = dst
		} else {
			targets[i] = new(sql.RawBytes)
		}
	}
	return rows.Scan(targets...)
}

// queryRowRecord runs a query expected to return one row and decodes it
// through pick. No row at all is reported as sql.ErrNoRows. Driver errors
// are returned unwrapped so the caller can classify them.
func queryRowRecord(ctx context.Context, db *sql.DB, timeout time.Duration, query string, pick func(column string) any) error {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryContext(qctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := scanCurrentRow(rows, pick); err != nil {
		return err
	}
	return rows.Err()
}

// queryValue runs a single value query.
func queryValue(ctx context.Context, db *sql.DB, timeout time.Duration, query string, dst any) error {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.QueryRowContext(qctx, query).Scan(dst)
}

// Unit transforms applied when the database reports a figure in another unit
// than the published series.
func kilobytesToBytes(v float64) float64 { return v * 1000 }
func megabytesToBytes(v float64) float64 { return v * 1000000 }
func percentToRatio(v float64) float64   { return v / 100 }

// setGauge writes a figure to a series child when the figure is present,
// applying transform first. An absent figure leaves the series untouched.
func setGauge(vec *prometheus.GaugeVec, labels prometheus.Labels, value sql.NullFloat64, transform func(float64) float64) {
	if !value.Valid {
		return
	}
	v := value.Float64
	if transform != nil {
		v = transform(v)
	}
	vec.With(labels).Set(v)
}
