package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/slushpile/gauntlet/internal/events"
	"github.com/slushpile/gauntlet/internal/storage/migrations"
	"github.com/slushpile/gauntlet/internal/types"
)

// candidatePrefix is the prefix for generated candidate IDs (cand-1, cand-2, ...)
const candidatePrefix = "cand"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	// Ensure directory exists (":memory:" has no directory)
	if path != ":memory:" && !strings.HasPrefix(path, ":memory:") {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize base schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Apply versioned migrations on top of the base schema
	if err := registeredMigrations().Apply(db); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// registeredMigrations returns the manager with every schema change that
// postdates the base schema.
func registeredMigrations() *migrations.Manager {
	m := migrations.NewManager()
	m.Register(migrations.Migration{
		Version:     1,
		Description: "Add judge spend ledger",
		Up: `
			CREATE TABLE IF NOT EXISTS spend_ledger (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tournament_id TEXT NOT NULL,
				operation TEXT NOT NULL,
				calls INTEGER NOT NULL DEFAULT 0,
				input_tokens INTEGER NOT NULL DEFAULT 0,
				output_tokens INTEGER NOT NULL DEFAULT 0,
				cost_usd REAL NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_spend_tournament ON spend_ledger(tournament_id);
		`,
		Down: `
			DROP TABLE IF EXISTS spend_ledger;
		`,
	})
	return m
}

// CreateCandidate creates a new candidate, generating a cand-N id if the
// candidate does not carry one
func (s *SQLiteStorage) CreateCandidate(ctx context.Context, candidate *types.Candidate, actor string) error {
	now := time.Now()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now
	if candidate.Status == "" {
		candidate.Status = types.StatusActive
	}

	// Acquire a dedicated connection for the transaction. We need raw
	// "BEGIN IMMEDIATE"/"COMMIT" on one connection, and database/sql's
	// pool would otherwise spread statements across connections.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// IMMEDIATE acquires the write lock up front, serializing ID
	// generation across concurrent writers. The sqlite3 driver's BeginTx
	// always uses DEFERRED mode, hence raw Exec.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup happens even if
	// ctx is canceled
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if candidate.ID == "" {
		var nextID int
		err = conn.QueryRowContext(ctx, `
			INSERT INTO candidate_counters (prefix, last_id) VALUES (?, 1)
			ON CONFLICT(prefix) DO UPDATE SET last_id = last_id + 1
			RETURNING last_id
		`, candidatePrefix).Scan(&nextID)
		if err != nil {
			return fmt.Errorf("failed to generate next candidate ID: %w", err)
		}
		candidate.ID = fmt.Sprintf("%s-%d", candidatePrefix, nextID)
	}

	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	historyJSON, err := json.Marshal(candidate.ScoreHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal score history: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO candidates (
			id, batch_id, title, content, status, round_reached,
			score_history, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		candidate.ID, candidate.BatchID, candidate.Title, candidate.Content,
		candidate.Status, candidate.RoundReached, string(historyJSON),
		candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

// GetCandidate retrieves a candidate by ID. Returns nil, nil when the
// candidate does not exist.
func (s *SQLiteStorage) GetCandidate(ctx context.Context, id string) (*types.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, title, content, status, round_reached,
		       score_history, created_at, updated_at
		FROM candidates
		WHERE id = ?
	`, id)

	candidate, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return candidate, nil
}

// GetCandidates retrieves a set of candidates by ID, in no particular order.
// Missing IDs are skipped, not errors; callers that care compare lengths.
func (s *SQLiteStorage) GetCandidates(ctx context.Context, ids []string) ([]*types.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, batch_id, title, content, status, round_reached,
		       score_history, created_at, updated_at
		FROM candidates
		WHERE id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// GetCandidatesByBatch retrieves all candidates in a generation batch
func (s *SQLiteStorage) GetCandidatesByBatch(ctx context.Context, batchID string) ([]*types.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, title, content, status, round_reached,
		       score_history, created_at, updated_at
		FROM candidates
		WHERE batch_id = ?
		ORDER BY id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates by batch: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// GetCandidatesByStatus retrieves all candidates with the given status
func (s *SQLiteStorage) GetCandidatesByStatus(ctx context.Context, status types.CandidateStatus) ([]*types.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, title, content, status, round_reached,
		       score_history, created_at, updated_at
		FROM candidates
		WHERE status = ?
		ORDER BY id
	`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates by status: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// UpdateCandidateStatus transitions a candidate's lifecycle state. The
// transition is validated against the lifecycle state machine, and the
// audit event is written in the same transaction so no transition can
// escape the trail.
func (s *SQLiteStorage) UpdateCandidateStatus(ctx context.Context, id string, status types.CandidateStatus, reason, actor string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current types.CandidateStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM candidates WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("candidate %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read candidate status: %w", err)
	}

	if current == status {
		// No-op transition; nothing to record
		return nil
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("invalid status transition for %s: %s -> %s", id, current, status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE candidates SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update candidate status: %w", err)
	}

	event := events.NewStatusChangedEvent("", id, actor, string(current), string(status), reason)
	if err := storeEventTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}

	return tx.Commit()
}

// RecordRoundResult appends a round summary to the candidate's score
// history and advances round_reached.
func (s *SQLiteStorage) RecordRoundResult(ctx context.Context, id string, summary types.RoundSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var historyJSON string
	var roundReached int
	err = tx.QueryRowContext(ctx, `
		SELECT score_history, round_reached FROM candidates WHERE id = ?
	`, id).Scan(&historyJSON, &roundReached)
	if err == sql.ErrNoRows {
		return fmt.Errorf("candidate %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read score history: %w", err)
	}

	var history []types.RoundSummary
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return fmt.Errorf("failed to unmarshal score history: %w", err)
	}
	history = append(history, summary)

	updated, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal score history: %w", err)
	}

	if summary.Round > roundReached {
		roundReached = summary.Round
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE candidates SET score_history = ?, round_reached = ?, updated_at = ?
		WHERE id = ?
	`, string(updated), roundReached, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update score history: %w", err)
	}

	return tx.Commit()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row scanner) (*types.Candidate, error) {
	var candidate types.Candidate
	var historyJSON string

	err := row.Scan(
		&candidate.ID, &candidate.BatchID, &candidate.Title, &candidate.Content,
		&candidate.Status, &candidate.RoundReached, &historyJSON,
		&candidate.CreatedAt, &candidate.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if historyJSON != "" && historyJSON != "[]" {
		if err := json.Unmarshal([]byte(historyJSON), &candidate.ScoreHistory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal score history: %w", err)
		}
	}

	return &candidate, nil
}

func scanCandidates(rows *sql.Rows) ([]*types.Candidate, error) {
	var result []*types.Candidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		result = append(result, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidate rows: %w", err)
	}
	return result, nil
}

// GetConfig gets a configuration value from the config table
func (s *SQLiteStorage) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig sets a configuration value in the config table
func (s *SQLiteStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
