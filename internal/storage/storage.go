package storage

import (
	"context"

	"github.com/slushpile/gauntlet/internal/events"
	"github.com/slushpile/gauntlet/internal/storage/sqlite"
	"github.com/slushpile/gauntlet/internal/types"
)

// Storage defines the interface for tournament storage backends
type Storage interface {
	// Candidates
	CreateCandidate(ctx context.Context, candidate *types.Candidate, actor string) error
	GetCandidate(ctx context.Context, id string) (*types.Candidate, error)
	GetCandidates(ctx context.Context, ids []string) ([]*types.Candidate, error)
	GetCandidatesByBatch(ctx context.Context, batchID string) ([]*types.Candidate, error)
	GetCandidatesByStatus(ctx context.Context, status types.CandidateStatus) ([]*types.Candidate, error)
	UpdateCandidateStatus(ctx context.Context, id string, status types.CandidateStatus, reason, actor string) error
	RecordRoundResult(ctx context.Context, id string, summary types.RoundSummary) error

	// Tournaments
	CreateTournament(ctx context.Context, tournament *types.Tournament, actor string) error
	GetTournament(ctx context.Context, id string) (*types.Tournament, error)
	ListTournaments(ctx context.Context, limit int) ([]*types.Tournament, error)
	UpdateTournamentPhase(ctx context.Context, id string, phase types.TournamentPhase, abortReason, actor string) error
	SetTournamentWinners(ctx context.Context, id string, winnerIDs []string) error

	// Rounds & Matchups
	CreateRound(ctx context.Context, round *types.Round) error
	CompleteRound(ctx context.Context, tournamentID string, number int, outputIDs []string) error
	GetRounds(ctx context.Context, tournamentID string) ([]*types.Round, error)
	SaveMatchup(ctx context.Context, matchup *types.Matchup) error
	GetMatchups(ctx context.Context, tournamentID string, round int) ([]*types.Matchup, error)
	GetAllMatchups(ctx context.Context, tournamentID string) ([]*types.Matchup, error)
	GetPairHistory(ctx context.Context, tournamentID string) (map[string]bool, error)

	// Archive (append-only)
	AppendArchiveEntry(ctx context.Context, entry *types.ArchiveEntry) error
	GetArchiveEntryByCandidate(ctx context.Context, candidateID string) (*types.ArchiveEntry, error)
	GetArchiveEntryByHash(ctx context.Context, contentHash string) (*types.ArchiveEntry, error)
	ListArchiveEntries(ctx context.Context, limit int) ([]*types.ArchiveEntry, error)

	// Audit events (append-only)
	StoreEvent(ctx context.Context, event *events.Event) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)
	GetEventsByTournament(ctx context.Context, tournamentID string) ([]*events.Event, error)

	// Spend ledger
	RecordSpend(ctx context.Context, tournamentID, operation string, spend types.Spend) error
	GetSpend(ctx context.Context, tournamentID string) (types.Spend, error)

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".gauntlet/gauntlet.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".gauntlet/gauntlet.db",
	}
}

// NewStorage creates a new SQLite storage backend
// The ctx parameter is currently unused but kept for API consistency
// and future extension possibilities
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Path == "" {
		cfg.Path = ".gauntlet/gauntlet.db"
	}

	return sqlite.New(cfg.Path)
}
