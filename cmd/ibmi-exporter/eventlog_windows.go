//go:build windows

package main

import (
	"log"
	"os"
	"strings"

	"golang.org/x/sys/windows/svc/eventlog"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
)

// setupWindowsEventLog routes logging to the Windows Event Log. It reports
// false when the event source cannot be opened or created, so the caller
// falls back to file logging.
func setupWindowsEventLog() bool {
	const sourceName = "IbmiExporter"

	elog, err := eventlog.Open(sourceName)
	if err != nil {
		// The source may not exist yet. Creating it needs elevated
		// rights, typically present during service install.
		err = eventlog.InstallAsEventCreate(sourceName, eventlog.Info|eventlog.Warning|eventlog.Error)
		if err != nil {
			log.Printf("Windows Event Log setup failed: %v, falling back to file logging", err)
			return false
		}

		elog, err = eventlog.Open(sourceName)
		if err != nil {
			log.Printf("Windows Event Log could not be opened: %v, falling back to file logging", err)
			return false
		}
	}

	writer := &eventLogWriter{elog: elog}

	log.SetOutput(writer)
	logger.SetOutput(writer)

	logger.Info("Windows Event Log enabled, log level: %s", logger.LevelToString(logger.GetLevel()))
	return true
}

// eventLogWriter maps formatted log lines onto event log severities.
type eventLogWriter struct {
	elog *eventlog.Log
}

func (w *eventLogWriter) Write(p []byte) (n int, err error) {
	message := string(p)

	var logLevel int

	if strings.Contains(message, "[DEBUG]") {
		logLevel = logger.LevelDebug
	} else if strings.Contains(message, "[INFO]") || !strings.Contains(message, "[") {
		logLevel = logger.LevelInfo
	} else if strings.Contains(message, "[WARNING]") || strings.Contains(message, "[WARN]") {
		logLevel = logger.LevelWarning
	} else if strings.Contains(message, "[ERROR]") {
		logLevel = logger.LevelError
	} else if strings.Contains(message, "[FATAL]") {
		logLevel = logger.LevelFatal
	} else {
		logLevel = logger.LevelInfo
	}

	switch logLevel {
	case logger.LevelDebug, logger.LevelInfo:
		err = w.elog.Info(1, message)
	case logger.LevelWarning:
		err = w.elog.Warning(2, message)
	case logger.LevelError, logger.LevelFatal:
		err = w.elog.Error(3, message)
	}

	if err != nil {
		os.Stderr.Write(p)
		return 0, err
	}

	return len(p), nil
}
