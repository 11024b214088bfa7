package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func newEvent(eventType EventType, tournamentID, actor string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now(),
		TournamentID: tournamentID,
		Actor:        actor,
		Severity:     severity,
		Message:      message,
		Data:         make(map[string]interface{}),
	}
}

// NewBatchSeededEvent records that a generation batch landed in the store.
func NewBatchSeededEvent(batchID, actor string, count int, prompt string) *Event {
	e := newEvent(EventTypeBatchSeeded, "", actor, SeverityInfo,
		fmt.Sprintf("Seeded batch %s with %d candidates", batchID, count))
	e.Data["batch_id"] = batchID
	e.Data["count"] = count
	e.Data["prompt"] = prompt
	return e
}

// NewTournamentCreatedEvent records tournament creation with its parameters.
func NewTournamentCreatedEvent(tournamentID, actor string, candidateCount, targetK, personaCount int) *Event {
	e := newEvent(EventTypeTournamentCreated, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("Tournament %s created: %d candidates, target %d, panel of %d",
			tournamentID, candidateCount, targetK, personaCount))
	e.Data["candidate_count"] = candidateCount
	e.Data["target_k"] = targetK
	e.Data["persona_count"] = personaCount
	return e
}

// NewDuplicateSuppressedEvent records a pre-round duplicate removal. The
// matched archive entry and similarity are kept so an auditor can see why
// the candidate never competed.
func NewDuplicateSuppressedEvent(tournamentID, candidateID, actor string, archiveEntryID int64, similarity float64) *Event {
	e := newEvent(EventTypeDuplicateSuppressed, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("Candidate %s suppressed as near-duplicate of archive entry %d (similarity %.3f)",
			candidateID, archiveEntryID, similarity))
	e.CandidateID = candidateID
	e.Data["archive_entry_id"] = archiveEntryID
	e.Data["similarity"] = similarity
	return e
}

// NewRoundStartedEvent records the start of a bracket round.
func NewRoundStartedEvent(tournamentID, actor string, round, inputSize, matchups int, byeID string) *Event {
	msg := fmt.Sprintf("Round %d started: %d candidates, %d matchups", round, inputSize, matchups)
	if byeID != "" {
		msg += fmt.Sprintf(", bye %s", byeID)
	}
	e := newEvent(EventTypeRoundStarted, tournamentID, actor, SeverityInfo, msg)
	e.Round = round
	e.Data["input_size"] = inputSize
	e.Data["matchups"] = matchups
	if byeID != "" {
		e.Data["bye_id"] = byeID
	}
	return e
}

// NewMatchupResolvedEvent records a matchup outcome with both aggregates and
// the resolution reason.
func NewMatchupResolvedEvent(tournamentID, actor string, round int, matchupID, winnerID, loserID string, reason string, scoreA, scoreB float64) *Event {
	e := newEvent(EventTypeMatchupResolved, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("Matchup %s: %s beat %s (%s, %.3f vs %.3f)",
			matchupID, winnerID, loserID, reason, scoreA, scoreB))
	e.Round = round
	e.Data["matchup_id"] = matchupID
	e.Data["winner_id"] = winnerID
	e.Data["loser_id"] = loserID
	e.Data["reason"] = reason
	e.Data["score_a"] = scoreA
	e.Data["score_b"] = scoreB
	return e
}

// NewJudgeUnavailableEvent records a persona call that exhausted its retries.
func NewJudgeUnavailableEvent(tournamentID, actor string, round int, matchupID, persona, detail string) *Event {
	e := newEvent(EventTypeJudgeUnavailable, tournamentID, actor, SeverityWarning,
		fmt.Sprintf("Persona %q unavailable for matchup %s: %s", persona, matchupID, detail))
	e.Round = round
	e.Data["matchup_id"] = matchupID
	e.Data["persona"] = persona
	e.Data["detail"] = detail
	return e
}

// NewRoundCompletedEvent records a finished round and its output set size.
func NewRoundCompletedEvent(tournamentID, actor string, round, outputSize int, durationMS int64) *Event {
	e := newEvent(EventTypeRoundCompleted, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("Round %d completed: %d candidates advance", round, outputSize))
	e.Round = round
	e.Data["output_size"] = outputSize
	e.Data["duration_ms"] = durationMS
	return e
}

// NewStatusChangedEvent records a candidate lifecycle transition.
func NewStatusChangedEvent(tournamentID, candidateID, actor, oldStatus, newStatus, reason string) *Event {
	e := newEvent(EventTypeStatusChanged, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("Candidate %s: %s -> %s (%s)", candidateID, oldStatus, newStatus, reason))
	e.CandidateID = candidateID
	e.Data["old_status"] = oldStatus
	e.Data["new_status"] = newStatus
	e.Data["reason"] = reason
	return e
}

// NewCheckpointRaisedEvent records entry into human review with the pending
// finalist set.
func NewCheckpointRaisedEvent(tournamentID, actor string, round int, finalists []string, degraded bool) *Event {
	msg := fmt.Sprintf("Checkpoint raised after round %d: %d finalists await review", round, len(finalists))
	sev := SeverityInfo
	if degraded {
		msg += " (degraded: below target)"
		sev = SeverityWarning
	}
	e := newEvent(EventTypeCheckpointRaised, tournamentID, actor, sev, msg)
	e.Round = round
	e.Data["finalists"] = finalists
	e.Data["degraded"] = degraded
	return e
}

// NewWinnerRejectedEvent records a reviewer rejecting a finalist.
func NewWinnerRejectedEvent(tournamentID, candidateID, actor, note string) *Event {
	e := newEvent(EventTypeWinnerRejected, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("Reviewer rejected finalist %s", candidateID))
	e.CandidateID = candidateID
	e.Data["note"] = note
	return e
}

// NewCandidateReinstatedEvent records the reviewer reinstatement escape
// hatch: an eliminated candidate returning to the finalist set. This is the
// only path back from eliminated and it is always logged.
func NewCandidateReinstatedEvent(tournamentID, candidateID, actor, note string) *Event {
	e := newEvent(EventTypeCandidateReinstated, tournamentID, actor, SeverityWarning,
		fmt.Sprintf("Reviewer reinstated eliminated candidate %s", candidateID))
	e.CandidateID = candidateID
	e.Data["note"] = note
	return e
}

// NewCheckpointResolvedEvent records the applied review decision.
func NewCheckpointResolvedEvent(tournamentID, actor string, approved, rejected, reinstated int, forced bool) *Event {
	msg := fmt.Sprintf("Checkpoint resolved: %d approved, %d rejected, %d reinstated", approved, rejected, reinstated)
	sev := SeverityInfo
	if forced {
		msg += " (forced by watchdog)"
		sev = SeverityWarning
	}
	e := newEvent(EventTypeCheckpointResolved, tournamentID, actor, sev, msg)
	e.Data["approved"] = approved
	e.Data["rejected"] = rejected
	e.Data["reinstated"] = reinstated
	e.Data["forced"] = forced
	return e
}

// NewTournamentCompletedEvent records completion. Degraded completions (fewer
// winners than the target) are explicit and carry warning severity so they
// never pass silently.
func NewTournamentCompletedEvent(tournamentID, actor string, winners []string, targetK int) *Event {
	degraded := len(winners) < targetK
	msg := fmt.Sprintf("Tournament %s complete: %d winners", tournamentID, len(winners))
	sev := SeverityInfo
	if degraded {
		msg += fmt.Sprintf(" (degraded: target was %d)", targetK)
		sev = SeverityWarning
	}
	e := newEvent(EventTypeTournamentCompleted, tournamentID, actor, sev, msg)
	e.Data["winners"] = winners
	e.Data["target_k"] = targetK
	e.Data["degraded"] = degraded
	return e
}

// NewTournamentAbortedEvent records a structural failure ending the run.
func NewTournamentAbortedEvent(tournamentID, actor, reason string, lastRound int) *Event {
	e := newEvent(EventTypeTournamentAborted, tournamentID, actor, SeverityError,
		fmt.Sprintf("Tournament %s aborted after round %d: %s", tournamentID, lastRound, reason))
	e.Round = lastRound
	e.Data["reason"] = reason
	return e
}

// NewArchiveWrittenEvent records an archive append.
func NewArchiveWrittenEvent(tournamentID, candidateID, actor string, round int, reason string) *Event {
	e := newEvent(EventTypeArchiveWritten, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("Candidate %s archived (round %d, %s)", candidateID, round, reason))
	e.CandidateID = candidateID
	e.Round = round
	e.Data["reason"] = reason
	return e
}

// NewJudgeCostEvent records token usage for a judge or generation call.
func NewJudgeCostEvent(tournamentID, actor, operation string, inputTokens, outputTokens int64, costUSD float64) *Event {
	e := newEvent(EventTypeJudgeCost, tournamentID, actor, SeverityInfo,
		fmt.Sprintf("%s: input=%d tokens, output=%d tokens, cost=$%.4f",
			operation, inputTokens, outputTokens, costUSD))
	e.Data["operation"] = operation
	e.Data["input_tokens"] = inputTokens
	e.Data["output_tokens"] = outputTokens
	e.Data["cost_usd"] = costUSD
	return e
}
