package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slushpile/gauntlet/internal/types"
)

// CreateTournament creates a new tournament record
func (s *SQLiteStorage) CreateTournament(ctx context.Context, tournament *types.Tournament, actor string) error {
	if err := tournament.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	tournament.CreatedAt = now
	tournament.UpdatedAt = now
	if tournament.Phase == "" {
		tournament.Phase = types.PhaseRunning
	}

	criteriaJSON, err := json.Marshal(tournament.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	personasJSON, err := json.Marshal(tournament.Personas)
	if err != nil {
		return fmt.Errorf("failed to marshal personas: %w", err)
	}
	winnersJSON, err := json.Marshal(tournament.WinnerIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal winner ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tournaments (
			id, batch_id, target_k, phase, criteria, personas,
			last_round, winner_ids, abort_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tournament.ID, tournament.BatchID, tournament.TargetK, tournament.Phase,
		string(criteriaJSON), string(personasJSON), tournament.LastRound,
		string(winnersJSON), tournament.AbortReason,
		tournament.CreatedAt, tournament.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tournament: %w", err)
	}

	return nil
}

// GetTournament retrieves a tournament by ID. Returns nil, nil when the
// tournament does not exist.
func (s *SQLiteStorage) GetTournament(ctx context.Context, id string) (*types.Tournament, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, target_k, phase, criteria, personas,
		       last_round, winner_ids, abort_reason,
		       created_at, updated_at, completed_at
		FROM tournaments
		WHERE id = ?
	`, id)

	tournament, err := scanTournament(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	return tournament, nil
}

// ListTournaments retrieves tournaments ordered by creation time, most
// recent first
func (s *SQLiteStorage) ListTournaments(ctx context.Context, limit int) ([]*types.Tournament, error) {
	query := `
		SELECT id, batch_id, target_k, phase, criteria, personas,
		       last_round, winner_ids, abort_reason,
		       created_at, updated_at, completed_at
		FROM tournaments
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	var result []*types.Tournament
	for rows.Next() {
		tournament, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tournament: %w", err)
		}
		result = append(result, tournament)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return result, nil
}

// UpdateTournamentPhase transitions the tournament state machine. Invalid
// transitions are rejected; terminal phases set completed_at.
func (s *SQLiteStorage) UpdateTournamentPhase(ctx context.Context, id string, phase types.TournamentPhase, abortReason, actor string) error {
	if !phase.IsValid() {
		return fmt.Errorf("invalid phase: %s", phase)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current types.TournamentPhase
	err = tx.QueryRowContext(ctx, `SELECT phase FROM tournaments WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("tournament %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read tournament phase: %w", err)
	}

	if !current.CanTransitionTo(phase) {
		return fmt.Errorf("invalid phase transition for %s: %s -> %s", id, current, phase)
	}

	now := time.Now()
	if phase.Terminal() {
		_, err = tx.ExecContext(ctx, `
			UPDATE tournaments SET phase = ?, abort_reason = ?, updated_at = ?, completed_at = ?
			WHERE id = ?
		`, phase, abortReason, now, now, id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE tournaments SET phase = ?, abort_reason = ?, updated_at = ?
			WHERE id = ?
		`, phase, abortReason, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update tournament phase: %w", err)
	}

	return tx.Commit()
}

// SetTournamentWinners records the final winner set
func (s *SQLiteStorage) SetTournamentWinners(ctx context.Context, id string, winnerIDs []string) error {
	winnersJSON, err := json.Marshal(winnerIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal winner ids: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tournaments SET winner_ids = ?, updated_at = ? WHERE id = ?
	`, string(winnersJSON), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set tournament winners: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("tournament %s not found", id)
	}
	return nil
}

// CreateRound records the start of a round with its input set and bye
func (s *SQLiteStorage) CreateRound(ctx context.Context, round *types.Round) error {
	inputJSON, err := json.Marshal(round.InputIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal input ids: %w", err)
	}

	if round.StartedAt.IsZero() {
		round.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rounds (tournament_id, number, input_ids, bye_id, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, round.TournamentID, round.Number, string(inputJSON), round.ByeID, round.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tournaments SET last_round = ?, updated_at = ? WHERE id = ?
	`, round.Number, time.Now(), round.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to update tournament round counter: %w", err)
	}

	return tx.Commit()
}

// CompleteRound records the output set once every matchup has resolved
func (s *SQLiteStorage) CompleteRound(ctx context.Context, tournamentID string, number int, outputIDs []string) error {
	outputJSON, err := json.Marshal(outputIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal output ids: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rounds SET output_ids = ?, completed_at = ?
		WHERE tournament_id = ? AND number = ?
	`, string(outputJSON), time.Now(), tournamentID, number)
	if err != nil {
		return fmt.Errorf("failed to complete round: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("round %d of tournament %s not found", number, tournamentID)
	}
	return nil
}

// GetRounds retrieves all rounds of a tournament in order, with their
// matchups attached
func (s *SQLiteStorage) GetRounds(ctx context.Context, tournamentID string) ([]*types.Round, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tournament_id, number, input_ids, output_ids, bye_id,
		       started_at, completed_at
		FROM rounds
		WHERE tournament_id = ?
		ORDER BY number ASC
	`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var result []*types.Round
	for rows.Next() {
		var round types.Round
		var inputJSON, outputJSON string
		var completedAt sql.NullTime

		err := rows.Scan(
			&round.TournamentID, &round.Number, &inputJSON, &outputJSON,
			&round.ByeID, &round.StartedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}

		if err := json.Unmarshal([]byte(inputJSON), &round.InputIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input ids: %w", err)
		}
		if err := json.Unmarshal([]byte(outputJSON), &round.OutputIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output ids: %w", err)
		}
		if completedAt.Valid {
			round.CompletedAt = &completedAt.Time
		}

		result = append(result, &round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round rows: %w", err)
	}

	// Attach matchups, grouped by round number
	matchups, err := s.GetAllMatchups(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	byRound := make(map[int][]*types.Matchup)
	for _, m := range matchups {
		byRound[m.Round] = append(byRound[m.Round], m)
	}
	for _, round := range result {
		round.Matchups = byRound[round.Number]
	}

	return result, nil
}

// SaveMatchup inserts a matchup shell or updates it with its resolution.
// Verdicts are stored verbatim as JSON for the audit trail.
func (s *SQLiteStorage) SaveMatchup(ctx context.Context, matchup *types.Matchup) error {
	verdictsJSON, err := json.Marshal(matchup.Verdicts)
	if err != nil {
		return fmt.Errorf("failed to marshal verdicts: %w", err)
	}

	if matchup.CreatedAt.IsZero() {
		matchup.CreatedAt = time.Now()
	}

	var resolvedAt interface{}
	if matchup.ResolvedAt != nil {
		resolvedAt = *matchup.ResolvedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matchups (
			id, tournament_id, round, candidate_a, candidate_b,
			verdicts, winner_id, reason, score_a, score_b,
			created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			verdicts = excluded.verdicts,
			winner_id = excluded.winner_id,
			reason = excluded.reason,
			score_a = excluded.score_a,
			score_b = excluded.score_b,
			resolved_at = excluded.resolved_at
	`,
		matchup.ID, matchup.TournamentID, matchup.Round,
		matchup.CandidateA, matchup.CandidateB,
		string(verdictsJSON), matchup.WinnerID, string(matchup.Reason),
		matchup.ScoreA, matchup.ScoreB, matchup.CreatedAt, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save matchup: %w", err)
	}
	return nil
}

// GetMatchups retrieves the matchups of a single round
func (s *SQLiteStorage) GetMatchups(ctx context.Context, tournamentID string, round int) ([]*types.Matchup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tournament_id, round, candidate_a, candidate_b,
		       verdicts, winner_id, reason, score_a, score_b,
		       created_at, resolved_at
		FROM matchups
		WHERE tournament_id = ? AND round = ?
		ORDER BY id
	`, tournamentID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to query matchups: %w", err)
	}
	defer rows.Close()

	return scanMatchups(rows)
}

// GetAllMatchups retrieves every matchup of a tournament across all rounds
func (s *SQLiteStorage) GetAllMatchups(ctx context.Context, tournamentID string) ([]*types.Matchup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tournament_id, round, candidate_a, candidate_b,
		       verdicts, winner_id, reason, score_a, score_b,
		       created_at, resolved_at
		FROM matchups
		WHERE tournament_id = ?
		ORDER BY round ASC, id ASC
	`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matchups: %w", err)
	}
	defer rows.Close()

	return scanMatchups(rows)
}

// GetPairHistory returns the set of normalized candidate pairs that have
// already met in this tournament, keyed by types.PairKey. The bracket
// builder consults this for rematch avoidance.
func (s *SQLiteStorage) GetPairHistory(ctx context.Context, tournamentID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate_a, candidate_b FROM matchups WHERE tournament_id = ?
	`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pair history: %w", err)
	}
	defer rows.Close()

	history := make(map[string]bool)
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		history[types.PairKey(a, b)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pair rows: %w", err)
	}
	return history, nil
}

func scanTournament(row scanner) (*types.Tournament, error) {
	var tournament types.Tournament
	var criteriaJSON, personasJSON, winnersJSON string
	var completedAt sql.NullTime

	err := row.Scan(
		&tournament.ID, &tournament.BatchID, &tournament.TargetK,
		&tournament.Phase, &criteriaJSON, &personasJSON,
		&tournament.LastRound, &winnersJSON, &tournament.AbortReason,
		&tournament.CreatedAt, &tournament.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(criteriaJSON), &tournament.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(personasJSON), &tournament.Personas); err != nil {
		return nil, fmt.Errorf("failed to unmarshal personas: %w", err)
	}
	if err := json.Unmarshal([]byte(winnersJSON), &tournament.WinnerIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal winner ids: %w", err)
	}
	if completedAt.Valid {
		tournament.CompletedAt = &completedAt.Time
	}

	return &tournament, nil
}

func scanMatchups(rows *sql.Rows) ([]*types.Matchup, error) {
	var result []*types.Matchup
	for rows.Next() {
		var matchup types.Matchup
		var verdictsJSON, reason string
		var resolvedAt sql.NullTime

		err := rows.Scan(
			&matchup.ID, &matchup.TournamentID, &matchup.Round,
			&matchup.CandidateA, &matchup.CandidateB,
			&verdictsJSON, &matchup.WinnerID, &reason,
			&matchup.ScoreA, &matchup.ScoreB,
			&matchup.CreatedAt, &resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan matchup: %w", err)
		}

		if err := json.Unmarshal([]byte(verdictsJSON), &matchup.Verdicts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal verdicts: %w", err)
		}
		matchup.Reason = types.ResolutionReason(reason)
		if resolvedAt.Valid {
			matchup.ResolvedAt = &resolvedAt.Time
		}

		result = append(result, &matchup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matchup rows: %w", err)
	}
	return result, nil
}
