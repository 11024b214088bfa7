package tournament

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/slushpile/gauntlet/internal/events"
	"github.com/slushpile/gauntlet/internal/types"
)

// reviewState is the live checkpoint. The Run goroutine blocks on
// decisionCh while reviewer commands arrive through the controller's
// review methods from other goroutines. pending and the counters are
// guarded by the controller mutex.
type reviewState struct {
	tournamentID string
	round        int
	targetK      int
	pending      map[string]bool
	rejected     int
	reinstated   int
	decisionCh   chan reviewOutcome
}

type reviewOutcome struct {
	abort  bool
	actor  string
	reason string
}

// checkpoint pauses the tournament for human review and blocks until a
// decision arrives: approval, an abort, the review timeout, or run
// cancellation. Finalists move to under_review on entry; the returned ids
// are the winners to promote.
func (c *Controller) checkpoint(ctx context.Context, t *types.Tournament, round int, finalistIDs []string) ([]string, error) {
	if err := c.store.UpdateTournamentPhase(ctx, t.ID, types.PhaseAwaitingReview, "", c.actor); err != nil {
		return nil, fmt.Errorf("failed to enter review phase: %w", err)
	}
	for _, id := range finalistIDs {
		if err := c.store.UpdateCandidateStatus(ctx, id, types.StatusUnderReview,
			fmt.Sprintf("finalist after round %d", round), c.actor); err != nil {
			return nil, fmt.Errorf("failed to mark finalist %s: %w", id, err)
		}
	}

	degraded := len(finalistIDs) < t.TargetK
	c.storeEvent(ctx, events.NewCheckpointRaisedEvent(t.ID, c.actor, round, finalistIDs, degraded))
	log.Printf("Tournament %s awaiting human review: %d finalists (target %d)%s",
		t.ID, len(finalistIDs), t.TargetK, degradedSuffix(degraded))

	if c.notify != nil {
		finalists, err := c.store.GetCandidates(ctx, finalistIDs)
		if err != nil {
			log.Printf("Warning: failed to load finalists for notification: %v", err)
		}
		c.notify(CheckpointInfo{
			TournamentID: t.ID,
			Round:        round,
			TargetK:      t.TargetK,
			Finalists:    finalists,
			Degraded:     degraded,
		})
	}

	if c.cfg.AutoApprove {
		log.Printf("Tournament %s: auto-approve enabled, skipping review", t.ID)
		pending := append([]string(nil), finalistIDs...)
		sort.Strings(pending)
		return c.approveFinalists(t, "auto-approve", pending, 0, 0, false)
	}

	rs := &reviewState{
		tournamentID: t.ID,
		round:        round,
		targetK:      t.TargetK,
		pending:      make(map[string]bool, len(finalistIDs)),
		decisionCh:   make(chan reviewOutcome, 1),
	}
	for _, id := range finalistIDs {
		rs.pending[id] = true
	}
	c.mu.Lock()
	c.review = rs
	c.mu.Unlock()

	// The wait is indefinite by default; the watchdog only arms when a
	// timeout is configured
	var timeoutCh <-chan time.Time
	if c.cfg.ReviewTimeout > 0 {
		timer := time.NewTimer(c.cfg.ReviewTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case out := <-rs.decisionCh:
		pending, rejected, reinstated := c.closeReview(rs)
		if out.abort {
			return nil, fmt.Errorf("aborted at checkpoint by %s", out.actor)
		}
		return c.approveFinalists(t, out.actor, pending, rejected, reinstated, false)
	case <-timeoutCh:
		pending, _, _ := c.closeReview(rs)
		log.Printf("Tournament %s: review timed out after %v, forcing rejection of %d finalists",
			t.ID, c.cfg.ReviewTimeout, len(pending))
		return c.forceRejectFinalists(t, round, pending)
	case <-ctx.Done():
		c.closeReview(rs)
		return nil, ctx.Err()
	}
}

// closeReview snapshots the pending set and detaches the checkpoint so
// late reviewer commands get a clean "no checkpoint" error instead of
// racing the resolution.
func (c *Controller) closeReview(rs *reviewState) (pending []string, rejected, reinstated int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending = make([]string, 0, len(rs.pending))
	for id := range rs.pending {
		pending = append(pending, id)
	}
	sort.Strings(pending)
	rejected, reinstated = rs.rejected, rs.reinstated
	rs.pending = make(map[string]bool)
	c.review = nil
	return pending, rejected, reinstated
}

// approveFinalists promotes everything still pending to winner. Reviewers
// may have rejected or reinstated candidates while the checkpoint was
// open, so the set can differ from the original finalist list and may be
// smaller than the target.
func (c *Controller) approveFinalists(t *types.Tournament, actor string, pending []string, rejected, reinstated int, forced bool) ([]string, error) {
	// Terminal-state persistence runs on a fresh context: a cancellation
	// racing the decision must still leave a consistent terminal row.
	ctx := context.Background()
	for _, id := range pending {
		if err := c.store.UpdateCandidateStatus(ctx, id, types.StatusWinner, "approved at checkpoint", actor); err != nil {
			return nil, fmt.Errorf("failed to promote %s: %w", id, err)
		}
	}
	c.storeEvent(ctx, events.NewCheckpointResolvedEvent(t.ID, actor, len(pending), rejected, reinstated, forced))
	return pending, nil
}

// forceRejectFinalists is the watchdog path: every finalist still pending
// is rejected and archived, and the tournament completes with zero
// winners. A timed-out review is an explicit degraded outcome, never a
// silent approval.
func (c *Controller) forceRejectFinalists(t *types.Tournament, round int, pending []string) ([]string, error) {
	ctx := context.Background()
	for _, id := range pending {
		cand, err := c.store.GetCandidate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load finalist %s: %w", id, err)
		}
		if cand == nil {
			return nil, fmt.Errorf("finalist %s not found", id)
		}
		if err := c.store.UpdateCandidateStatus(ctx, id, types.StatusEliminated, "review timed out", "watchdog"); err != nil {
			return nil, fmt.Errorf("failed to reject %s: %w", id, err)
		}
		if _, err := c.archiver.Archive(ctx, cand, t.ID, round, types.ArchiveHumanRejected); err != nil {
			return nil, fmt.Errorf("failed to archive %s: %w", id, err)
		}
		c.storeEvent(ctx, events.NewWinnerRejectedEvent(t.ID, id, "watchdog", "review timed out"))
		c.storeEvent(ctx, events.NewArchiveWrittenEvent(t.ID, id, "watchdog", round, string(types.ArchiveHumanRejected)))
	}
	c.storeEvent(ctx, events.NewCheckpointResolvedEvent(t.ID, "watchdog", 0, len(pending), 0, true))
	return nil, nil
}

// Approve resolves the open checkpoint: every candidate still under
// review becomes a winner and the tournament completes. Approval is
// refused while more candidates are pending than the target allows.
func (c *Controller) Approve(actor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.review
	if rs == nil {
		return fmt.Errorf("no checkpoint is awaiting review")
	}
	if len(rs.pending) > rs.targetK {
		return fmt.Errorf("%d candidates are under review but the target is %d; reject down to the target first", len(rs.pending), rs.targetK)
	}
	select {
	case rs.decisionCh <- reviewOutcome{actor: actor}:
		return nil
	default:
		return fmt.Errorf("a decision has already been submitted")
	}
}

// Reject removes a finalist from the pending winner set: the candidate is
// eliminated and archived as human_rejected. Rejection does not resolve
// the checkpoint; the reviewer approves the remaining set when done, even
// if it has shrunk below the target.
func (c *Controller) Reject(ctx context.Context, candidateID, actor, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.review
	if rs == nil {
		return fmt.Errorf("no checkpoint is awaiting review")
	}
	if !rs.pending[candidateID] {
		return fmt.Errorf("candidate %s is not under review", candidateID)
	}
	cand, err := c.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("failed to load candidate: %w", err)
	}
	if cand == nil {
		return fmt.Errorf("candidate %s not found", candidateID)
	}

	if note == "" {
		note = "rejected at checkpoint"
	}
	if err := c.store.UpdateCandidateStatus(ctx, candidateID, types.StatusEliminated, note, actor); err != nil {
		return fmt.Errorf("failed to reject %s: %w", candidateID, err)
	}
	if _, err := c.archiver.Archive(ctx, cand, rs.tournamentID, rs.round, types.ArchiveHumanRejected); err != nil {
		return fmt.Errorf("failed to archive %s: %w", candidateID, err)
	}
	delete(rs.pending, candidateID)
	rs.rejected++
	c.storeEvent(ctx, events.NewWinnerRejectedEvent(rs.tournamentID, candidateID, actor, note))
	c.storeEvent(ctx, events.NewArchiveWrittenEvent(rs.tournamentID, candidateID, actor, rs.round, string(types.ArchiveHumanRejected)))
	log.Printf("Tournament %s: %s rejected %s", rs.tournamentID, actor, candidateID)
	return nil
}

// Reinstate returns a candidate eliminated in this tournament to the
// pending winner set. This is the single escape hatch from eliminated and
// it is always logged; the candidate's archive entry stays where it is.
func (c *Controller) Reinstate(ctx context.Context, candidateID, actor, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.review
	if rs == nil {
		return fmt.Errorf("no checkpoint is awaiting review")
	}
	if rs.pending[candidateID] {
		return fmt.Errorf("candidate %s is already under review", candidateID)
	}

	// The archive entry is the provenance record: it proves the candidate
	// left this tournament and not some earlier one
	entry, err := c.store.GetArchiveEntryByCandidate(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("failed to load archive entry: %w", err)
	}
	if entry == nil || entry.TournamentID != rs.tournamentID {
		return fmt.Errorf("candidate %s was not eliminated in tournament %s", candidateID, rs.tournamentID)
	}

	if note == "" {
		note = "reinstated at checkpoint"
	}
	if err := c.store.UpdateCandidateStatus(ctx, candidateID, types.StatusUnderReview, note, actor); err != nil {
		return fmt.Errorf("failed to reinstate %s: %w", candidateID, err)
	}
	rs.pending[candidateID] = true
	rs.reinstated++
	c.storeEvent(ctx, events.NewCandidateReinstatedEvent(rs.tournamentID, candidateID, actor, note))
	log.Printf("Tournament %s: %s reinstated %s", rs.tournamentID, actor, candidateID)
	return nil
}

// Abort ends the run. During review it resolves the checkpoint; during
// rounds it cancels in-flight judging, abandoning the current round
// without persisting any of its resolutions.
func (c *Controller) Abort(actor, reason string) error {
	if reason == "" {
		reason = "aborted by operator"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortReason = reason

	if c.review != nil {
		select {
		case c.review.decisionCh <- reviewOutcome{abort: true, actor: actor, reason: reason}:
			return nil
		default:
			return fmt.Errorf("a decision has already been submitted")
		}
	}
	if c.cancelRun == nil {
		return fmt.Errorf("no tournament is running")
	}
	c.cancelRun()
	return nil
}

// ReviewPending reports the open checkpoint, if any: the tournament id,
// the round it paused after, and the candidate ids slated to win on
// approval.
func (c *Controller) ReviewPending() (tournamentID string, round int, pending []string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.review == nil {
		return "", 0, nil, false
	}
	pending = make([]string, 0, len(c.review.pending))
	for id := range c.review.pending {
		pending = append(pending, id)
	}
	sort.Strings(pending)
	return c.review.tournamentID, c.review.round, pending, true
}

func degradedSuffix(degraded bool) string {
	if degraded {
		return " [degraded]"
	}
	return ""
}
