package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestJSONTagsSnakeCase(t *testing.T) {
	event := &Event{
		ID:           "evt-123",
		Type:         EventTypeMatchupResolved,
		Timestamp:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		TournamentID: "trn-abc123",
		CandidateID:  "cand-7",
		Round:        2,
		Actor:        "controller",
		Severity:     SeverityInfo,
		Message:      "Matchup resolved",
		Data: map[string]interface{}{
			"winner_id": "cand-7",
		},
	}

	jsonBytes, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal Event: %v", err)
	}

	jsonStr := string(jsonBytes)

	expectedFields := []string{
		`"id"`,
		`"type"`,
		`"tournament_id"`,
		`"candidate_id"`,
		`"round"`,
		`"actor"`,
		`"severity"`,
		`"message"`,
	}

	for _, field := range expectedFields {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("JSON missing expected field: %s\nGot: %s", field, jsonStr)
		}
	}
}

func TestConstructorsPopulateCommonFields(t *testing.T) {
	tests := []struct {
		name         string
		event        *Event
		wantType     EventType
		wantSeverity EventSeverity
	}{
		{
			name:         "tournament created",
			event:        NewTournamentCreatedEvent("trn-1", "cli", 8, 2, 3),
			wantType:     EventTypeTournamentCreated,
			wantSeverity: SeverityInfo,
		},
		{
			name:         "judge unavailable is warning",
			event:        NewJudgeUnavailableEvent("trn-1", "panel", 1, "trn-1-r1-m0", "skeptic", "timeout"),
			wantType:     EventTypeJudgeUnavailable,
			wantSeverity: SeverityWarning,
		},
		{
			name:         "reinstatement is warning",
			event:        NewCandidateReinstatedEvent("trn-1", "cand-3", "reviewer", "strong lineage"),
			wantType:     EventTypeCandidateReinstated,
			wantSeverity: SeverityWarning,
		},
		{
			name:         "abort is error",
			event:        NewTournamentAbortedEvent("trn-1", "controller", "round abandoned", 2),
			wantType:     EventTypeTournamentAborted,
			wantSeverity: SeverityError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.ID == "" {
				t.Error("constructor left ID empty")
			}
			if tt.event.Timestamp.IsZero() {
				t.Error("constructor left Timestamp zero")
			}
			if tt.event.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", tt.event.Type, tt.wantType)
			}
			if tt.event.Severity != tt.wantSeverity {
				t.Errorf("Severity = %s, want %s", tt.event.Severity, tt.wantSeverity)
			}
			if tt.event.Data == nil {
				t.Error("constructor left Data nil")
			}
		})
	}
}

func TestCompletedEventDegradedSeverity(t *testing.T) {
	full := NewTournamentCompletedEvent("trn-1", "controller", []string{"cand-1", "cand-2"}, 2)
	if full.Severity != SeverityInfo {
		t.Errorf("full completion severity = %s, want info", full.Severity)
	}
	if full.Data["degraded"] != false {
		t.Errorf("full completion degraded = %v, want false", full.Data["degraded"])
	}

	degraded := NewTournamentCompletedEvent("trn-1", "controller", []string{"cand-1"}, 4)
	if degraded.Severity != SeverityWarning {
		t.Errorf("degraded completion severity = %s, want warning", degraded.Severity)
	}
	if degraded.Data["degraded"] != true {
		t.Errorf("degraded completion degraded = %v, want true", degraded.Data["degraded"])
	}
	if !strings.Contains(degraded.Message, "degraded") {
		t.Errorf("degraded completion message should say so, got %q", degraded.Message)
	}
}

func TestMatchupResolvedCarriesScores(t *testing.T) {
	e := NewMatchupResolvedEvent("trn-1", "controller", 1, "trn-1-r1-m0", "cand-2", "cand-5", "weighted_score", 0.81, 0.64)
	if e.Round != 1 {
		t.Errorf("Round = %d, want 1", e.Round)
	}
	if e.Data["winner_id"] != "cand-2" || e.Data["loser_id"] != "cand-5" {
		t.Errorf("winner/loser mismatch: %v / %v", e.Data["winner_id"], e.Data["loser_id"])
	}
	if e.Data["score_a"] != 0.81 || e.Data["score_b"] != 0.64 {
		t.Errorf("scores mismatch: %v / %v", e.Data["score_a"], e.Data["score_b"])
	}
	if !strings.Contains(e.Message, "weighted_score") {
		t.Errorf("message missing resolution reason: %q", e.Message)
	}
}
