package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/slushpile/gauntlet/internal/types"
)

// AppendArchiveEntry appends a candidate to the archive. Idempotent on
// candidate id: re-archiving the same candidate is a no-op, and the entry
// is backfilled with the stored row either way.
func (s *SQLiteStorage) AppendArchiveEntry(ctx context.Context, entry *types.ArchiveEntry) error {
	if !entry.Reason.IsValid() {
		return fmt.Errorf("invalid archive reason: %s", entry.Reason)
	}
	if entry.CandidateID == "" {
		return fmt.Errorf("archive entry requires a candidate id")
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO archive_entries (
			candidate_id, tournament_id, title, content_hash,
			embedding, embedding_model, elimination_round, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(candidate_id) DO NOTHING
	`,
		entry.CandidateID, entry.TournamentID, entry.Title, entry.ContentHash,
		encodeEmbedding(entry.Embedding), entry.EmbeddingModel,
		entry.Round, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append archive entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check archive insert: %w", err)
	}
	if affected == 1 {
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read archive entry id: %w", err)
		}
		entry.ID = id
		return nil
	}

	// Entry already existed; surface the stored row so callers see the
	// original archive record, not their own re-submission.
	existing, err := s.GetArchiveEntryByCandidate(ctx, entry.CandidateID)
	if err != nil {
		return err
	}
	if existing != nil {
		*entry = *existing
	}
	return nil
}

// GetArchiveEntryByCandidate retrieves the archive entry for a candidate.
// Returns nil, nil when the candidate was never archived.
func (s *SQLiteStorage) GetArchiveEntryByCandidate(ctx context.Context, candidateID string) (*types.ArchiveEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, candidate_id, tournament_id, title, content_hash,
		       embedding, embedding_model, elimination_round, reason, created_at
		FROM archive_entries
		WHERE candidate_id = ?
	`, candidateID)

	entry, err := scanArchiveEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive entry: %w", err)
	}
	return entry, nil
}

// GetArchiveEntryByHash retrieves the oldest archive entry with the given
// content hash. Returns nil, nil when no entry matches.
func (s *SQLiteStorage) GetArchiveEntryByHash(ctx context.Context, contentHash string) (*types.ArchiveEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, candidate_id, tournament_id, title, content_hash,
		       embedding, embedding_model, elimination_round, reason, created_at
		FROM archive_entries
		WHERE content_hash = ?
		ORDER BY id ASC
		LIMIT 1
	`, contentHash)

	entry, err := scanArchiveEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive entry by hash: %w", err)
	}
	return entry, nil
}

// ListArchiveEntries retrieves archive entries, newest first
func (s *SQLiteStorage) ListArchiveEntries(ctx context.Context, limit int) ([]*types.ArchiveEntry, error) {
	query := `
		SELECT id, candidate_id, tournament_id, title, content_hash,
		       embedding, embedding_model, elimination_round, reason, created_at
		FROM archive_entries
		ORDER BY id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive entries: %w", err)
	}
	defer rows.Close()

	var result []*types.ArchiveEntry
	for rows.Next() {
		entry, err := scanArchiveEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive entry: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archive rows: %w", err)
	}
	return result, nil
}

// RecordSpend appends a row to the spend ledger
func (s *SQLiteStorage) RecordSpend(ctx context.Context, tournamentID, operation string, spend types.Spend) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spend_ledger (tournament_id, operation, calls, input_tokens, output_tokens, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tournamentID, operation, spend.Calls, spend.InputTokens, spend.OutputTokens, spend.CostUSD)
	if err != nil {
		return fmt.Errorf("failed to record spend: %w", err)
	}
	return nil
}

// GetSpend aggregates the spend ledger for a tournament
func (s *SQLiteStorage) GetSpend(ctx context.Context, tournamentID string) (types.Spend, error) {
	var spend types.Spend
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(calls), 0), COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM spend_ledger
		WHERE tournament_id = ?
	`, tournamentID).Scan(&spend.Calls, &spend.InputTokens, &spend.OutputTokens, &spend.CostUSD)
	if err != nil {
		return types.Spend{}, fmt.Errorf("failed to aggregate spend: %w", err)
	}
	return spend, nil
}

func scanArchiveEntry(row scanner) (*types.ArchiveEntry, error) {
	var entry types.ArchiveEntry
	var embeddingBlob []byte
	var reason string

	err := row.Scan(
		&entry.ID, &entry.CandidateID, &entry.TournamentID, &entry.Title,
		&entry.ContentHash, &embeddingBlob, &entry.EmbeddingModel,
		&entry.Round, &reason, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Reason = types.ArchiveReason(reason)
	entry.Embedding, err = decodeEmbedding(embeddingBlob)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// encodeEmbedding packs an embedding vector into a little-endian float32
// BLOB. Nil and empty vectors store as NULL.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
