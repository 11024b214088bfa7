package tournament

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slushpile/gauntlet/internal/bracket"
	"github.com/slushpile/gauntlet/internal/events"
	"github.com/slushpile/gauntlet/internal/types"
)

// runRound executes one full bracket layer: build the pairing, judge every
// matchup concurrently, then persist the resolved round. The round barrier
// holds throughout: either every matchup of the round persists as resolved
// or none does, and a cancellation mid-round abandons the round entirely.
func (c *Controller) runRound(ctx context.Context, t *types.Tournament, number int, inputIDs []string) ([]string, error) {
	startedAt := time.Now()

	history, err := c.store.GetPairHistory(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pair history: %w", err)
	}
	plan, err := bracket.Build(t.ID, number, inputIDs, history, c.cfg.MaxReshuffles)
	if err != nil {
		return nil, err
	}

	round := &types.Round{
		TournamentID: t.ID,
		Number:       number,
		InputIDs:     append([]string(nil), inputIDs...),
		ByeID:        plan.ByeID,
		StartedAt:    startedAt,
	}
	if err := c.store.CreateRound(ctx, round); err != nil {
		return nil, fmt.Errorf("failed to create round %d: %w", number, err)
	}
	c.storeEvent(ctx, events.NewRoundStartedEvent(t.ID, c.actor, number, len(inputIDs), len(plan.Pairs), plan.ByeID))
	log.Printf("Tournament %s round %d: %d matchups, bye=%q, %d reshuffles, %d rematches",
		t.ID, number, len(plan.Pairs), plan.ByeID, plan.Reshuffles, plan.Rematches)

	// Unresolved shells persist before judging starts so a crash
	// mid-round leaves evidence of what was in flight
	matchups := make([]*types.Matchup, len(plan.Pairs))
	for i, pair := range plan.Pairs {
		m := types.NewMatchup(t.ID, number, i, pair[0], pair[1])
		if err := c.store.SaveMatchup(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to save matchup %s: %w", m.ID, err)
		}
		matchups[i] = m
	}

	candidates, err := c.loadCandidateMap(ctx, inputIDs)
	if err != nil {
		return nil, err
	}

	// Fan out judging, resolving in memory only. Nothing writes a
	// resolved matchup until the whole round has resolved.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentMatchups)
	for _, m := range matchups {
		g.Go(func() error {
			verdicts := c.judge.Evaluate(gctx, m, candidates[m.CandidateA], candidates[m.CandidateB], t.Criteria, t.Personas)
			if err := gctx.Err(); err != nil {
				return err
			}
			resolveMatchup(m, verdicts, t.Criteria, c.cfg.ScoreEpsilon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Round abandoned: only the unresolved shells remain behind
		return nil, fmt.Errorf("round %d abandoned: %w", number, err)
	}

	return c.persistRound(ctx, t, round, matchups, candidates, startedAt)
}

// persistRound writes the resolved matchups, eliminates and archives the
// losers, records per-candidate lineage, and completes the round. It runs
// only after the round barrier, when every matchup holds a winner.
func (c *Controller) persistRound(ctx context.Context, t *types.Tournament, round *types.Round, matchups []*types.Matchup, candidates map[string]*types.Candidate, startedAt time.Time) ([]string, error) {
	outputIDs := make([]string, 0, len(matchups)+1)

	for _, m := range matchups {
		if err := c.store.SaveMatchup(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to persist matchup %s: %w", m.ID, err)
		}
		loserID := m.LoserID()
		c.storeEvent(ctx, events.NewMatchupResolvedEvent(t.ID, c.actor, round.Number, m.ID, m.WinnerID, loserID, string(m.Reason), m.ScoreA, m.ScoreB))
		for _, v := range m.Verdicts {
			if v.Unavailable {
				c.storeEvent(ctx, events.NewJudgeUnavailableEvent(t.ID, c.actor, round.Number, m.ID, v.Persona, v.Rationale))
			}
		}

		winnerScore, loserScore := m.ScoreA, m.ScoreB
		if m.WinnerID == m.CandidateB {
			winnerScore, loserScore = m.ScoreB, m.ScoreA
		}
		if err := c.store.RecordRoundResult(ctx, m.WinnerID, types.RoundSummary{
			Round:         round.Number,
			MatchupID:     m.ID,
			OpponentID:    loserID,
			Score:         winnerScore,
			OpponentScore: loserScore,
			Won:           true,
			Reason:        m.Reason,
		}); err != nil {
			return nil, fmt.Errorf("failed to record result for %s: %w", m.WinnerID, err)
		}
		if err := c.store.RecordRoundResult(ctx, loserID, types.RoundSummary{
			Round:         round.Number,
			MatchupID:     m.ID,
			OpponentID:    m.WinnerID,
			Score:         loserScore,
			OpponentScore: winnerScore,
			Won:           false,
			Reason:        m.Reason,
		}); err != nil {
			return nil, fmt.Errorf("failed to record result for %s: %w", loserID, err)
		}

		if err := c.eliminate(ctx, t, candidates[loserID], round.Number); err != nil {
			return nil, err
		}
		outputIDs = append(outputIDs, m.WinnerID)
	}

	if round.ByeID != "" {
		if err := c.store.RecordRoundResult(ctx, round.ByeID, types.RoundSummary{
			Round: round.Number,
			Won:   true,
			Bye:   true,
		}); err != nil {
			return nil, fmt.Errorf("failed to record bye for %s: %w", round.ByeID, err)
		}
		outputIDs = append(outputIDs, round.ByeID)
	}

	if err := c.store.CompleteRound(ctx, t.ID, round.Number, outputIDs); err != nil {
		return nil, fmt.Errorf("failed to complete round %d: %w", round.Number, err)
	}
	c.storeEvent(ctx, events.NewRoundCompletedEvent(t.ID, c.actor, round.Number, len(outputIDs), time.Since(startedAt).Milliseconds()))
	log.Printf("Tournament %s round %d complete: %d advance", t.ID, round.Number, len(outputIDs))
	return outputIDs, nil
}

// eliminate transitions a matchup loser out of the bracket and into the
// archive.
func (c *Controller) eliminate(ctx context.Context, t *types.Tournament, cand *types.Candidate, round int) error {
	if err := c.store.UpdateCandidateStatus(ctx, cand.ID, types.StatusEliminated,
		fmt.Sprintf("lost round %d", round), c.actor); err != nil {
		return fmt.Errorf("failed to eliminate %s: %w", cand.ID, err)
	}
	if _, err := c.archiver.Archive(ctx, cand, t.ID, round, types.ArchiveEliminated); err != nil {
		return fmt.Errorf("failed to archive %s: %w", cand.ID, err)
	}
	c.storeEvent(ctx, events.NewArchiveWrittenEvent(t.ID, cand.ID, c.actor, round, string(types.ArchiveEliminated)))
	return nil
}

func (c *Controller) loadCandidateMap(ctx context.Context, ids []string) (map[string]*types.Candidate, error) {
	candidates, err := c.store.GetCandidates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load round candidates: %w", err)
	}
	byID := make(map[string]*types.Candidate, len(candidates))
	for _, cand := range candidates {
		byID[cand.ID] = cand
	}
	for _, id := range ids {
		if byID[id] == nil {
			return nil, fmt.Errorf("round candidate %s not found", id)
		}
	}
	return byID, nil
}
