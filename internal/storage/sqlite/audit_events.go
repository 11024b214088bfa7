package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slushpile/gauntlet/internal/events"
)

// execer abstracts *sql.DB and *sql.Tx so event writes can join an open
// transaction
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// StoreEvent appends an event to the audit trail
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	return storeEventTx(ctx, s.db, event)
}

func storeEventTx(ctx context.Context, ex execer, event *events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, type, timestamp, tournament_id, candidate_id, round,
			actor, severity, message, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Type,
		event.Timestamp,
		event.TournamentID,
		event.CandidateID,
		event.Round,
		event.Actor,
		event.Severity,
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, tournament=%s): %w", event.Type, event.TournamentID, err)
	}

	return nil
}

// GetEvents retrieves events matching the given filter, most recent first
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, tournament_id, candidate_id, round,
		       actor, severity, message, data
		FROM audit_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.TournamentID != "" {
		query += " AND tournament_id = ?"
		args = append(args, filter.TournamentID)
	}
	if filter.CandidateID != "" {
		query += " AND candidate_id = ?"
		args = append(args, filter.CandidateID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime)
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByTournament retrieves the full audit trail of a tournament in
// chronological order, oldest first, as a reviewer would replay it
func (s *SQLiteStorage) GetEventsByTournament(ctx context.Context, tournamentID string) ([]*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, timestamp, tournament_id, candidate_id, round,
		       actor, severity, message, data
		FROM audit_events
		WHERE tournament_id = ?
		ORDER BY timestamp ASC
	`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by tournament: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var result []*events.Event

	for rows.Next() {
		var event events.Event
		var dataJSON string
		var timestamp time.Time

		err := rows.Scan(
			&event.ID,
			&event.Type,
			&timestamp,
			&event.TournamentID,
			&event.CandidateID,
			&event.Round,
			&event.Actor,
			&event.Severity,
			&event.Message,
			&dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Timestamp = timestamp

		event.Data = make(map[string]interface{})
		if dataJSON != "" && dataJSON != "{}" {
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return result, nil
}
