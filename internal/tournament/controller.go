// Package tournament drives the elimination state machine: duplicate
// admission against the archive, seeded bracket rounds judged under a
// round barrier, the human review checkpoint, and final result assembly.
// The controller is the only component that moves candidates and
// tournaments between lifecycle states; judging and archival are injected
// collaborators.
package tournament

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slushpile/gauntlet/internal/bracket"
	"github.com/slushpile/gauntlet/internal/config"
	"github.com/slushpile/gauntlet/internal/events"
	"github.com/slushpile/gauntlet/internal/storage"
	"github.com/slushpile/gauntlet/internal/types"
)

// Judge evaluates one matchup with the full persona panel and returns one
// verdict per persona. Implementations never fail the matchup: personas
// that cannot be reached degrade to unavailable sentinel verdicts.
type Judge interface {
	Evaluate(ctx context.Context, matchup *types.Matchup, candA, candB *types.Candidate, criteria []types.Criterion, personas []types.Persona) []types.Verdict
}

// Archiver appends candidates that left a tournament to the historical
// archive and answers similarity probes against it.
type Archiver interface {
	Archive(ctx context.Context, candidate *types.Candidate, tournamentID string, round int, reason types.ArchiveReason) (*types.ArchiveEntry, error)
	FindSimilar(ctx context.Context, candidate *types.Candidate, threshold float64) ([]types.SimilarMatch, error)
}

// CheckpointInfo is the notification payload for the transition into human
// review: the finalist set with full lineage attached.
type CheckpointInfo struct {
	TournamentID string
	Round        int
	TargetK      int
	Finalists    []*types.Candidate
	Degraded     bool
}

// Config holds the controller's dependencies and tuning.
type Config struct {
	// Store is the persistence layer (required)
	Store storage.Storage

	// Judge evaluates matchups (required)
	Judge Judge

	// Archiver maintains the historical archive (required)
	Archiver Archiver

	// Engine is the runtime tuning. The zero value means
	// config.DefaultConfig().
	Engine config.Config

	// Actor is recorded on audit events the controller emits.
	// Default: "controller"
	Actor string

	// OnCheckpoint, when set, is invoked after the tournament enters
	// human review. It must not block; long-running reviewers drive the
	// checkpoint through the controller's review methods instead.
	OnCheckpoint func(CheckpointInfo)
}

// Controller runs tournaments through the phase machine. A controller
// executes one tournament at a time but is safe for concurrent use by the
// review surface: approve, reject, reinstate, and abort arrive from other
// goroutines while Run blocks.
type Controller struct {
	store    storage.Storage
	judge    Judge
	archiver Archiver
	cfg      config.Config
	actor    string
	notify   func(CheckpointInfo)

	mu          sync.Mutex
	review      *reviewState
	cancelRun   context.CancelFunc
	abortReason string
}

// New creates a tournament controller
func New(cfg *Config) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.Archiver == nil {
		return nil, fmt.Errorf("archiver is required")
	}

	engine := cfg.Engine
	if engine == (config.Config{}) {
		engine = config.DefaultConfig()
	}
	if err := engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	actor := cfg.Actor
	if actor == "" {
		actor = "controller"
	}

	return &Controller{
		store:    cfg.Store,
		judge:    cfg.Judge,
		archiver: cfg.Archiver,
		cfg:      engine,
		actor:    actor,
		notify:   cfg.OnCheckpoint,
	}, nil
}

// Run executes a full tournament over the given candidate pool: admission,
// elimination rounds until the survivor set fits targetK, the human review
// checkpoint, and completion. It blocks until the tournament reaches a
// terminal phase. An aborted tournament returns the partial result
// assembled from every round resolved so far alongside the abort error.
func (c *Controller) Run(ctx context.Context, candidateIDs []string, targetK int, criteria []types.Criterion, personas []types.Persona) (*types.TournamentResult, error) {
	if targetK < 1 {
		return nil, fmt.Errorf("target winner count must be at least 1 (got %d)", targetK)
	}
	if len(candidateIDs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 (got %d)", bracket.ErrInsufficientCandidates, len(candidateIDs))
	}
	if err := types.ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	if err := types.ValidatePersonas(personas); err != nil {
		return nil, err
	}

	candidates, err := c.loadActiveCandidates(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancelRun != nil {
		c.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("a tournament is already running")
	}
	c.cancelRun = cancel
	c.abortReason = ""
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancelRun = nil
		c.review = nil
		c.mu.Unlock()
	}()

	startedAt := time.Now()
	tournament := &types.Tournament{
		ID:       newTournamentID(),
		BatchID:  sharedBatchID(candidates),
		TargetK:  targetK,
		Phase:    types.PhaseRunning,
		Criteria: criteria,
		Personas: personas,
	}
	if err := c.store.CreateTournament(ctx, tournament, c.actor); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	c.storeEvent(ctx, events.NewTournamentCreatedEvent(tournament.ID, c.actor, len(candidates), targetK, len(personas)))
	log.Printf("Tournament %s: %d candidates, target %d, %d personas, %d criteria",
		tournament.ID, len(candidates), targetK, len(personas), len(criteria))

	// Admission runs before any judge spend: near-duplicates of archived
	// entries never reach a matchup
	active, suppressed, err := c.admitCandidates(runCtx, tournament, candidates)
	if err != nil {
		return c.abort(tournament, suppressed, startedAt, c.abortReasonOr(fmt.Sprintf("admission failed: %v", err)))
	}
	if len(active) == 0 {
		return c.abort(tournament, suppressed, startedAt, "every candidate was suppressed as a duplicate")
	}

	activeIDs := make([]string, 0, len(active))
	for _, cand := range active {
		activeIDs = append(activeIDs, cand.ID)
	}

	round := 0
	for len(activeIDs) > targetK {
		if err := runCtx.Err(); err != nil {
			return c.abort(tournament, suppressed, startedAt, c.abortReasonOr("tournament canceled"))
		}
		round++
		output, err := c.runRound(runCtx, tournament, round, activeIDs)
		if err != nil {
			if runCtx.Err() != nil {
				return c.abort(tournament, suppressed, startedAt, c.abortReasonOr("tournament canceled"))
			}
			return c.abort(tournament, suppressed, startedAt, err.Error())
		}
		activeIDs = output
	}

	winnerIDs, err := c.checkpoint(runCtx, tournament, round, activeIDs)
	if err != nil {
		if runCtx.Err() != nil {
			return c.abort(tournament, suppressed, startedAt, c.abortReasonOr("tournament canceled"))
		}
		return c.abort(tournament, suppressed, startedAt, c.abortReasonOr(err.Error()))
	}
	return c.complete(tournament, winnerIDs, suppressed, startedAt)
}

// loadActiveCandidates fetches the pool in caller order and rejects ids
// that are unknown, duplicated, or not in the active state.
func (c *Controller) loadActiveCandidates(ctx context.Context, ids []string) ([]*types.Candidate, error) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("duplicate candidate id %s in pool", id)
		}
		seen[id] = true
	}

	candidates, err := c.store.GetCandidates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	byID := make(map[string]*types.Candidate, len(candidates))
	for _, cand := range candidates {
		byID[cand.ID] = cand
	}

	ordered := make([]*types.Candidate, 0, len(ids))
	for _, id := range ids {
		cand := byID[id]
		if cand == nil {
			return nil, fmt.Errorf("candidate %s not found", id)
		}
		if cand.Status != types.StatusActive {
			return nil, fmt.Errorf("candidate %s is %s, not active", id, cand.Status)
		}
		ordered = append(ordered, cand)
	}
	return ordered, nil
}

// admitCandidates runs the pre-round duplicate check. A candidate whose
// best archive match clears the similarity threshold is suppressed: marked
// archived, appended to the archive as duplicate_of_rejected, and excluded
// from the bracket without consuming a judge call.
func (c *Controller) admitCandidates(ctx context.Context, t *types.Tournament, candidates []*types.Candidate) (active, suppressed []*types.Candidate, err error) {
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, suppressed, err
		}
		matches, err := c.archiver.FindSimilar(ctx, cand, c.cfg.SimilarityThreshold)
		if err != nil {
			return nil, suppressed, fmt.Errorf("similarity probe failed for %s: %w", cand.ID, err)
		}
		if len(matches) == 0 {
			active = append(active, cand)
			continue
		}

		best := matches[0]
		reason := fmt.Sprintf("near-duplicate of %s (similarity %.3f)", best.Entry.CandidateID, best.Similarity)
		if err := c.store.UpdateCandidateStatus(ctx, cand.ID, types.StatusArchived, reason, c.actor); err != nil {
			return nil, suppressed, fmt.Errorf("failed to suppress %s: %w", cand.ID, err)
		}
		if _, err := c.archiver.Archive(ctx, cand, t.ID, 0, types.ArchiveDuplicate); err != nil {
			return nil, suppressed, fmt.Errorf("failed to archive suppressed %s: %w", cand.ID, err)
		}
		c.storeEvent(ctx, events.NewDuplicateSuppressedEvent(t.ID, cand.ID, c.actor, best.Entry.ID, best.Similarity))
		c.storeEvent(ctx, events.NewArchiveWrittenEvent(t.ID, cand.ID, c.actor, 0, string(types.ArchiveDuplicate)))
		cand.Status = types.StatusArchived
		suppressed = append(suppressed, cand)
		log.Printf("Tournament %s: suppressed %s as near-duplicate of %s (%.3f)",
			t.ID, cand.ID, best.Entry.CandidateID, best.Similarity)
	}
	return active, suppressed, nil
}

// complete finishes an approved tournament: winners recorded, phase moved
// to complete, spend rolled up, result assembled from the store.
func (c *Controller) complete(t *types.Tournament, winnerIDs []string, suppressed []*types.Candidate, startedAt time.Time) (*types.TournamentResult, error) {
	// Terminal-state persistence runs on a fresh context: a cancellation
	// racing the decision must still leave a consistent terminal row.
	ctx := context.Background()
	if err := c.store.SetTournamentWinners(ctx, t.ID, winnerIDs); err != nil {
		return nil, fmt.Errorf("failed to record winners: %w", err)
	}
	if err := c.store.UpdateTournamentPhase(ctx, t.ID, types.PhaseComplete, "", c.actor); err != nil {
		return nil, fmt.Errorf("failed to complete tournament: %w", err)
	}
	c.storeEvent(ctx, events.NewTournamentCompletedEvent(t.ID, c.actor, winnerIDs, t.TargetK))

	spend, err := c.store.GetSpend(ctx, t.ID)
	if err != nil {
		log.Printf("Warning: failed to load spend for %s: %v", t.ID, err)
	} else if spend.Calls > 0 {
		c.storeEvent(ctx, events.NewJudgeCostEvent(t.ID, c.actor, "tournament", spend.InputTokens, spend.OutputTokens, spend.CostUSD))
	}

	log.Printf("Tournament %s complete: %d winners (target %d)", t.ID, len(winnerIDs), t.TargetK)
	return c.buildResult(ctx, t.ID, suppressed, startedAt)
}

// abort moves the tournament to its terminal aborted phase and assembles
// the partial result from everything persisted so far. Terminal-state
// persistence runs on a fresh context: a canceled run must still leave a
// consistent terminal row behind.
func (c *Controller) abort(t *types.Tournament, suppressed []*types.Candidate, startedAt time.Time, reason string) (*types.TournamentResult, error) {
	ctx := context.Background()
	if err := c.store.UpdateTournamentPhase(ctx, t.ID, types.PhaseAborted, reason, c.actor); err != nil {
		log.Printf("Warning: failed to persist aborted phase for %s: %v", t.ID, err)
	}

	lastRound := 0
	if stored, err := c.store.GetTournament(ctx, t.ID); err == nil && stored != nil {
		lastRound = stored.LastRound
	}
	c.storeEvent(ctx, events.NewTournamentAbortedEvent(t.ID, c.actor, reason, lastRound))
	log.Printf("Tournament %s aborted: %s", t.ID, reason)

	result, buildErr := c.buildResult(ctx, t.ID, suppressed, startedAt)
	if buildErr != nil {
		return nil, fmt.Errorf("tournament %s aborted: %s (result assembly failed: %v)", t.ID, reason, buildErr)
	}
	return result, fmt.Errorf("tournament %s aborted: %s", t.ID, reason)
}

// buildResult assembles the outcome from persisted state only, so an
// auditor reloading the same tournament later reconstructs the same
// answer.
func (c *Controller) buildResult(ctx context.Context, tournamentID string, suppressed []*types.Candidate, startedAt time.Time) (*types.TournamentResult, error) {
	t, err := c.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload tournament: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("tournament %s not found", tournamentID)
	}

	rounds, err := c.store.GetRounds(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rounds: %w", err)
	}
	matchups, err := c.store.GetAllMatchups(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matchups: %w", err)
	}

	idSet := make(map[string]bool)
	for _, m := range matchups {
		idSet[m.CandidateA] = true
		idSet[m.CandidateB] = true
	}
	for _, r := range rounds {
		if r.ByeID != "" {
			idSet[r.ByeID] = true
		}
	}
	for _, id := range t.WinnerIDs {
		idSet[id] = true
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	participants, err := c.store.GetCandidates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	byID := make(map[string]*types.Candidate, len(participants))
	for _, cand := range participants {
		byID[cand.ID] = cand
	}

	winners := make([]*types.Candidate, 0, len(t.WinnerIDs))
	for _, id := range t.WinnerIDs {
		if cand := byID[id]; cand != nil {
			winners = append(winners, cand)
		}
	}
	var eliminated []*types.Candidate
	for _, id := range ids {
		cand := byID[id]
		if cand != nil && cand.Status == types.StatusEliminated {
			eliminated = append(eliminated, cand)
		}
	}
	// Later exits outrank earlier ones
	sort.SliceStable(eliminated, func(i, j int) bool {
		if eliminated[i].RoundReached != eliminated[j].RoundReached {
			return eliminated[i].RoundReached > eliminated[j].RoundReached
		}
		return eliminated[i].ID < eliminated[j].ID
	})

	spend, err := c.store.GetSpend(ctx, tournamentID)
	if err != nil {
		log.Printf("Warning: failed to load spend for %s: %v", tournamentID, err)
	}

	return &types.TournamentResult{
		TournamentID: tournamentID,
		Phase:        t.Phase,
		TargetK:      t.TargetK,
		Winners:      winners,
		Eliminated:   eliminated,
		Suppressed:   suppressed,
		Rounds:       rounds,
		Matchups:     matchups,
		Degraded:     t.Phase == types.PhaseComplete && len(winners) < t.TargetK,
		AbortReason:  t.AbortReason,
		Spend:        spend,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}, nil
}

// storeEvent writes an audit event, logging rather than failing the run.
// Lifecycle transitions carry their own transactional events inside the
// store, so a lost controller-level event never breaks trail consistency.
func (c *Controller) storeEvent(ctx context.Context, event *events.Event) {
	if err := c.store.StoreEvent(ctx, event); err != nil {
		log.Printf("Warning: failed to store %s event: %v", event.Type, err)
	}
}

func (c *Controller) abortReasonOr(fallback string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abortReason != "" {
		return c.abortReason
	}
	return fallback
}

func newTournamentID() string {
	return "trn-" + uuid.New().String()[:8]
}

// sharedBatchID returns the pool's batch id when every candidate came from
// the same batch, otherwise empty.
func sharedBatchID(candidates []*types.Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	batch := candidates[0].BatchID
	for _, cand := range candidates[1:] {
		if cand.BatchID != batch {
			return ""
		}
	}
	return batch
}
