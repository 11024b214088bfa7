package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testDBPath(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, ".gauntlet")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	return filepath.Join(dataDir, "gauntlet.db")
}

func TestAcquireAndReleaseRunLock(t *testing.T) {
	dbPath := testDBPath(t)

	lockPath, err := AcquireRunLock(dbPath, "0.1.0")
	if err != nil {
		t.Fatalf("AcquireRunLock() error = %v", err)
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("lock file not written: %v", err)
	}
	var lock RunLock
	if err := json.Unmarshal(data, &lock); err != nil {
		t.Fatalf("lock file is not JSON: %v", err)
	}
	if lock.PID != os.Getpid() {
		t.Errorf("lock PID = %d, want %d", lock.PID, os.Getpid())
	}
	if lock.Version != "0.1.0" {
		t.Errorf("lock version = %q, want 0.1.0", lock.Version)
	}

	// A live lock blocks a second runner
	if _, err := AcquireRunLock(dbPath, "0.1.0"); err == nil {
		t.Error("second acquire should fail while the lock is held")
	}

	if err := ReleaseRunLock(lockPath); err != nil {
		t.Fatalf("ReleaseRunLock() error = %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock file still present after release")
	}

	if _, err := AcquireRunLock(dbPath, "0.1.0"); err != nil {
		t.Errorf("acquire after release failed: %v", err)
	}
}

func TestAcquireRunLockReplacesStaleLock(t *testing.T) {
	dbPath := testDBPath(t)
	lockPath := filepath.Join(filepath.Dir(dbPath), ".run-lock")

	// Linux caps pids well below this, so the holder cannot exist
	hostname, _ := os.Hostname()
	stale := RunLock{
		Holder:    "gauntlet-run",
		PID:       99999999,
		Hostname:  hostname,
		StartedAt: time.Now().Add(-time.Hour),
		Version:   "0.0.9",
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		t.Fatalf("failed to plant stale lock: %v", err)
	}

	if _, err := AcquireRunLock(dbPath, "0.1.0"); err != nil {
		t.Fatalf("acquire over a stale lock failed: %v", err)
	}
}

func TestCleanupStaleLock(t *testing.T) {
	dbPath := testDBPath(t)
	lockPath := filepath.Join(filepath.Dir(dbPath), ".run-lock")

	// Nothing to clean
	removed, err := CleanupStaleLock(dbPath)
	if err != nil {
		t.Fatalf("CleanupStaleLock() error = %v", err)
	}
	if removed {
		t.Error("no lock present, got removed=true")
	}

	// A live holder is left alone
	if _, err := AcquireRunLock(dbPath, "0.1.0"); err != nil {
		t.Fatalf("AcquireRunLock() error = %v", err)
	}
	removed, err = CleanupStaleLock(dbPath)
	if err != nil {
		t.Fatalf("CleanupStaleLock() error = %v", err)
	}
	if removed {
		t.Error("live lock was removed")
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("live lock file should remain: %v", err)
	}

	// A dead holder is cleaned
	hostname, _ := os.Hostname()
	stale := RunLock{PID: 99999999, Hostname: hostname}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		t.Fatalf("failed to plant stale lock: %v", err)
	}
	removed, err = CleanupStaleLock(dbPath)
	if err != nil {
		t.Fatalf("CleanupStaleLock() error = %v", err)
	}
	if !removed {
		t.Error("stale lock was not removed")
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("stale lock file still present")
	}
}

func TestCleanupStaleLockUnparseable(t *testing.T) {
	dbPath := testDBPath(t)
	lockPath := filepath.Join(filepath.Dir(dbPath), ".run-lock")

	if err := os.WriteFile(lockPath, []byte("not json"), 0644); err != nil {
		t.Fatalf("failed to write lock: %v", err)
	}

	removed, err := CleanupStaleLock(dbPath)
	if err != nil {
		t.Fatalf("CleanupStaleLock() error = %v", err)
	}
	if !removed {
		t.Error("unparseable lock should be treated as stale")
	}
}
