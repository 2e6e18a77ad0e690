package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/alexbrainman/odbc"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/config"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
)

// ErrFeatureUnavailable indicates that a requested SQL service does not exist
// on the IBM i release of the target. Collectors treat it as an expected
// degradation, not a failure.
var ErrFeatureUnavailable = errors.New("feature unavailable")

// SQLCODE tokens the IBM i ODBC driver emits when a catalog object, function
// or parameter does not exist on this release.
var featureErrorTokens = []string{
	"SQL0204",
	"SQL0206",
	"SQL0443",
	"SQL0551",
	"SQL7024",
	"SQL0707",
	"SQLCODE=-204",
	"SQLCODE=-206",
	"SQLCODE=-443",
	"SQLCODE=-551",
	"SQLCODE=-707",
}

// IsFeatureUnavailable reports whether err indicates an unavailable SQL service.
func IsFeatureUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFeatureUnavailable) {
		return true
	}
	msg := strings.ToUpper(err.Error())
	for _, token := range featureErrorTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// BuildDSN builds the IBM i Access ODBC connection string for a target.
// CommitMode=0 keeps the session free of commitment control, the collection
// queries only read.
func BuildDSN(target config.TargetConfig) string {
	ssl := 0
	if target.UseSSL {
		ssl = 1
	}
	parts := []string{
		"Driver={IBM i Access ODBC Driver}",
		fmt.Sprintf("System=%s", target.Host),
		fmt.Sprintf("Uid=%s", target.User),
		fmt.Sprintf("Pwd=%s", target.Pass),
		fmt.Sprintf("Database=%s", target.Database),
		fmt.Sprintf("SSL=%d", ssl),
		"CommitMode=0",
		fmt.Sprintf("ConnectionTimeout=%d", timeoutSeconds(target)),
	}

	keys := make([]string, 0, len(target.Options))
	for key := range target.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, target.Options[key]))
	}

	return strings.Join(parts, ";")
}

// SanitizeDSN masks the password in a DSN for logging.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return "<empty>"
	}

	masked := dsn
	passwordKeys := []string{"PWD=", "pwd=", "Pwd=", "PASSWORD=", "password=", "Password="}
	for _, key := range passwordKeys {
		if idx := strings.Index(masked, key); idx != -1 {
			start := idx + len(key)
			end := strings.IndexAny(masked[start:], ";")
			if end == -1 {
				masked = masked[:start] + "***"
			} else {
				masked = masked[:start] + "***" + masked[start+end:]
			}
		}
	}
	return masked
}

// Timeout returns the per operation deadline of a target.
func Timeout(target config.TargetConfig) time.Duration {
	return time.Duration(timeoutSeconds(target)) * time.Second
}

func timeoutSeconds(target config.TargetConfig) int {
	if target.Timeout > 0 {
		return target.Timeout
	}
	return config.DefaultTimeout
}

// Open opens a connection to a target and verifies it with a bounded ping.
// The handle is limited to a single session so a refresh runs its queries
// one after the other on the same connection.
func Open(ctx context.Context, target config.TargetConfig) (*sql.DB, error) {
	dsn := BuildDSN(target)
	logger.Debug("connecting with %s", SanitizeDSN(dsn))

	db, err := sql.Open("odbc", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection to %s failed: %w", target.Host, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, Timeout(target))
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s failed: %w", target.Host, err)
	}
	return db, nil
}

