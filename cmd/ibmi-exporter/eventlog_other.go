//go:build !windows

package main

// setupWindowsEventLog is a no-op on non-Windows platforms.
func setupWindowsEventLog() bool {
	return false
}
