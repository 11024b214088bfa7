package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// RunLock is the lock file format claiming exclusive tournament execution
// on a data directory. Candidate lifecycle writes are serialized per
// process, so two concurrent runners against the same database would break
// the single-writer guarantee.
type RunLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireRunLock creates a lock file in the .gauntlet directory. Returns
// the lock file path for cleanup on shutdown.
func AcquireRunLock(dbPath, version string) (lockPath string, err error) {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}

	lockPath = filepath.Join(projectRoot, ".gauntlet", ".run-lock")

	// Check for existing lock
	if data, err := os.ReadFile(lockPath); err == nil {
		var existing RunLock
		if json.Unmarshal(data, &existing) == nil {
			if isProcessAlive(existing.PID, existing.Hostname) {
				return "", fmt.Errorf("another tournament is already running (PID %d on %s, started %s)",
					existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
			}
			// Stale lock - will overwrite
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := RunLock{
		Holder:    "gauntlet-run",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create run lock: %w", err)
	}

	return lockPath, nil
}

// ReleaseRunLock removes the run lock file. Should be called on shutdown
// (use defer).
func ReleaseRunLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove run lock: %w", err)
	}

	return nil
}

// CleanupStaleLock removes the run lock if its holder process is gone.
// A lock held by a live process is left alone. Returns true when a stale
// lock was removed.
func CleanupStaleLock(dbPath string) (bool, error) {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return false, fmt.Errorf("invalid database path: %w", err)
	}
	lockPath := filepath.Join(projectRoot, ".gauntlet", ".run-lock")

	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read run lock: %w", err)
	}

	// An unparseable lock cannot be probed; treat it as stale
	var lock RunLock
	if json.Unmarshal(data, &lock) == nil && isProcessAlive(lock.PID, lock.Hostname) {
		return false, nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove stale lock: %w", err)
	}
	return true, nil
}

// isProcessAlive checks if a process with the given PID exists on the given
// hostname. Returns true if the process is alive, false otherwise.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		// Can't check hostname, assume remote/alive
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		// Remote host - can't check, assume alive
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else
	if err == syscall.EPERM {
		return true
	}

	return false
}
