package ibmi

// SQL services used for collection. All of them are read only views or table
// functions shipped with the operating system, no user objects are touched.
const (
	// queryEnvSysInfo returns a single row describing the machine.
	queryEnvSysInfo = "SELECT * FROM SYSIBMADM.ENV_SYS_INFO"

	// queryOSVersionDataArea reads the QSS1MRI data area, which holds the
	// precise version string and the language feature code separated by
	// blanks. DATA_AREA_INFO exists since 7.3.
	queryOSVersionDataArea = "SELECT DATA_AREA_VALUE FROM " +
		"TABLE(QSYS2.DATA_AREA_INFO(DATA_AREA_LIBRARY=>'QUSRSYS',DATA_AREA_NAME=>'QSS1MRI')) X"

	// queryCurrentServer names the relational database of the session.
	queryCurrentServer = "SELECT CURRENT SERVER FROM SYSIBM.SYSDUMMY1"

	// querySystemStatusDetailed resets the statistics window and asks for the
	// full column set. DETAILED_INFO exists since 7.3, older releases reject
	// the parameter and take querySystemStatus instead.
	querySystemStatusDetailed = "SELECT * FROM " +
		"TABLE(QSYS2.SYSTEM_STATUS(RESET_STATISTICS=>'YES',DETAILED_INFO=>'ALL')) X"
	querySystemStatus = "SELECT * FROM TABLE(QSYS2.SYSTEM_STATUS(RESET_STATISTICS=>'YES')) X"

	// querySystemActivity carries the CPU figures on 7.3 and later, where
	// SYSTEM_STATUS always reports AVERAGE_CPU_RATE as zero.
	querySystemActivity = "SELECT * FROM TABLE(QSYS2.SYSTEM_ACTIVITY_INFO())"

	// queryRemoteConnections counts established sessions from other hosts,
	// leaving out both loopback literals.
	queryRemoteConnections = "SELECT COUNT(REMOTE_ADDRESS) AS REMOTE_CONNECTIONS " +
		"FROM QSYS2.NETSTAT_INFO WHERE TCP_STATE = 'ESTABLISHED' " +
		"AND REMOTE_ADDRESS != '::1' AND REMOTE_ADDRESS != '127.0.0.1'"

	// queryHTTPServerInfo exists since 7.3.
	queryHTTPServerInfo = "SELECT * FROM QSYS2.HTTP_SERVER_INFO"

	// querySubsystemInfo exists since 7.3.
	querySubsystemInfo = "SELECT * FROM QSYS2.SUBSYSTEM_INFO"

	queryMemoryPoolInfo = "SELECT * FROM QSYS2.MEMORY_POOL_INFO"
)
