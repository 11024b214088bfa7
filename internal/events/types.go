// Package events defines the append-only audit event stream for tournament
// runs. Every state transition that matters for replaying or explaining an
// outcome is recorded as an Event and persisted by the storage layer.
package events

import (
	"context"
	"time"
)

// EventType represents the type of event recorded in the audit stream.
type EventType string

const (
	// EventTypeBatchSeeded indicates a generation batch was written to the store
	EventTypeBatchSeeded EventType = "batch_seeded"
	// EventTypeTournamentCreated indicates a tournament record was created
	EventTypeTournamentCreated EventType = "tournament_created"
	// EventTypeDuplicateSuppressed indicates a candidate was removed pre-round
	// as a near-duplicate of an archived entry, without consuming a judge call
	EventTypeDuplicateSuppressed EventType = "duplicate_suppressed"
	// EventTypeRoundStarted indicates a bracket round began executing
	EventTypeRoundStarted EventType = "round_started"
	// EventTypeMatchupResolved indicates a matchup received its winner
	EventTypeMatchupResolved EventType = "matchup_resolved"
	// EventTypeJudgeUnavailable indicates a persona call exhausted its retries
	// and a sentinel verdict was recorded
	EventTypeJudgeUnavailable EventType = "judge_unavailable"
	// EventTypeRoundCompleted indicates every matchup in a round resolved
	EventTypeRoundCompleted EventType = "round_completed"
	// EventTypeStatusChanged indicates a candidate lifecycle transition
	EventTypeStatusChanged EventType = "status_changed"
	// EventTypeCheckpointRaised indicates the tournament paused for human review
	EventTypeCheckpointRaised EventType = "checkpoint_raised"
	// EventTypeWinnerRejected indicates a reviewer rejected a finalist
	EventTypeWinnerRejected EventType = "winner_rejected"
	// EventTypeCandidateReinstated indicates a reviewer reinstated an
	// eliminated candidate during a checkpoint
	EventTypeCandidateReinstated EventType = "candidate_reinstated"
	// EventTypeCheckpointResolved indicates the review decision was applied
	EventTypeCheckpointResolved EventType = "checkpoint_resolved"
	// EventTypeTournamentCompleted indicates the tournament finished
	EventTypeTournamentCompleted EventType = "tournament_completed"
	// EventTypeTournamentAborted indicates a structural failure ended the run
	EventTypeTournamentAborted EventType = "tournament_aborted"
	// EventTypeArchiveWritten indicates an archive entry was appended
	EventTypeArchiveWritten EventType = "archive_written"
	// EventTypeJudgeCost indicates token usage was recorded for a judge or
	// generation call
	EventTypeJudgeCost EventType = "judge_cost"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates normal lifecycle events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates degraded but recoverable conditions
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates failures that ended or damaged a run
	SeverityError EventSeverity = "error"
)

// Event is one entry in the replayable audit stream.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// TournamentID scopes the event to a run (empty for batch-level events)
	TournamentID string `json:"tournament_id,omitempty"`
	// CandidateID is the candidate this event concerns, if any
	CandidateID string `json:"candidate_id,omitempty"`
	// Round is the bracket round this event occurred in (0 = pre-round)
	Round int `json:"round,omitempty"`
	// Actor is who or what produced the event (controller run id, reviewer, watchdog)
	Actor string `json:"actor"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventStore defines the interface for persisting and querying audit events.
type EventStore interface {
	// StoreEvent appends a new event to the audit stream
	StoreEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves events matching the given filter
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
}

// EventFilter defines criteria for filtering audit events.
type EventFilter struct {
	// TournamentID filters events by tournament
	TournamentID string
	// CandidateID filters events by candidate
	CandidateID string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// Limit limits the number of events returned (0 = no limit)
	Limit int
}
