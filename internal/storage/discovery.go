package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiscoverDatabase looks for .gauntlet/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Only the current directory is checked, never parents: a tournament nested
// inside another project must not silently pick up that project's archive,
// because the archive drives duplicate suppression.
//
// GAUNTLET_DB is checked first so tests and scripts can pin a database
// (including ":memory:") without touching the filesystem.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("GAUNTLET_DB"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .gauntlet/*.db in the specified directory
// only. Does not walk up the directory tree.
func discoverDatabaseInDir(dir string) (string, error) {
	dataDir := filepath.Join(dir, ".gauntlet")

	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(dataDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					dbPath := filepath.Join(dataDir, entry.Name())
					absPath, err := filepath.Abs(dbPath)
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no .gauntlet/*.db found in %s\n"+
			"  Run 'gauntlet init' to initialize a tournament workspace here\n"+
			"  Or use --db flag to specify database path explicitly",
		dir)
}

// GetProjectRoot returns the project root directory for a given database
// path. The project root is the directory containing the .gauntlet/
// directory.
//
// Example:
//
//	dbPath: /home/user/stories/.gauntlet/gauntlet.db
//	returns: /home/user/stories
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dbDir := filepath.Dir(absPath)

	if filepath.Base(dbDir) != ".gauntlet" {
		return "", fmt.Errorf(
			"database must be in a .gauntlet/ directory, got: %s",
			dbPath)
	}

	return filepath.Dir(dbDir), nil
}

// InitProject creates a new .gauntlet directory with paths for a database
// and returns the path the database should be created at. The database file
// itself is created on first connection.
func InitProject(projectDir, projectName string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	dataDir := filepath.Join(projectDir, ".gauntlet")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .gauntlet directory: %w", err)
	}

	dbName := projectName
	if dbName == "" {
		dbName = "gauntlet"
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}

	dbPath := filepath.Join(dataDir, dbName)

	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	return dbPath, nil
}
