// scripts/cleanup-stale.go - Manual cleanup for artifacts left by a crashed run
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/slushpile/gauntlet/internal/control"
	"github.com/slushpile/gauntlet/internal/storage"
)

func main() {
	// DiscoverDatabase honors GAUNTLET_DB before scanning the cwd
	dbPath, err := storage.DiscoverDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error locating database: %v\n", err)
		os.Exit(1)
	}

	dataDir := filepath.Dir(dbPath)
	fmt.Printf("Inspecting run artifacts in: %s\n", dataDir)

	cleaned := 0

	removed, err := storage.CleanupStaleLock(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking run lock: %v\n", err)
		os.Exit(1)
	}
	if removed {
		fmt.Println("  Removed stale run lock")
		cleaned++
	}

	// A socket nobody answers on is an orphan from a crashed run
	socketPath := control.DefaultSocketPath(dataDir)
	if _, err := os.Stat(socketPath); err == nil {
		if _, err := control.NewClient(socketPath).Status(); err != nil {
			if err := os.Remove(socketPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing control socket: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("  Removed orphaned control socket")
			cleaned++
		}
	}

	if cleaned > 0 {
		fmt.Printf("✓ Cleaned up %d stale artifact(s)\n", cleaned)
	} else {
		fmt.Println("✓ No stale artifacts found")
	}
}
