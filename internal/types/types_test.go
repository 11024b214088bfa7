package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateValidate(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		wantErr   bool
		errMsg    string
	}{
		{
			name: "valid candidate",
			candidate: Candidate{
				ID:     "cand-1",
				Title:  "The Lighthouse Keeper",
				Status: StatusActive,
			},
			wantErr: false,
		},
		{
			name: "missing title",
			candidate: Candidate{
				ID:     "cand-1",
				Status: StatusActive,
			},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name: "invalid status",
			candidate: Candidate{
				ID:     "cand-1",
				Title:  "Something",
				Status: CandidateStatus("limbo"),
			},
			wantErr: true,
			errMsg:  "invalid status",
		},
		{
			name: "negative round reached",
			candidate: Candidate{
				ID:           "cand-1",
				Title:        "Something",
				Status:       StatusActive,
				RoundReached: -1,
			},
			wantErr: true,
			errMsg:  "round_reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candidate.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCandidateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    CandidateStatus
		to      CandidateStatus
		allowed bool
	}{
		{"active to eliminated", StatusActive, StatusEliminated, true},
		{"active to archived", StatusActive, StatusArchived, true},
		{"active to under_review", StatusActive, StatusUnderReview, true},
		{"under_review to winner", StatusUnderReview, StatusWinner, true},
		{"under_review to eliminated", StatusUnderReview, StatusEliminated, true},
		{"eliminated to under_review is reinstatement", StatusEliminated, StatusUnderReview, true},
		// Elimination is monotonic: nothing returns to active.
		{"eliminated to active forbidden", StatusEliminated, StatusActive, false},
		{"archived to active forbidden", StatusArchived, StatusActive, false},
		{"winner to active forbidden", StatusWinner, StatusActive, false},
		{"archived is terminal", StatusArchived, StatusUnderReview, false},
		{"winner is terminal", StatusWinner, StatusEliminated, false},
		{"active to winner skips review", StatusActive, StatusWinner, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    TournamentPhase
		to      TournamentPhase
		allowed bool
	}{
		{"running to review", PhaseRunning, PhaseAwaitingReview, true},
		{"running to aborted", PhaseRunning, PhaseAborted, true},
		{"running to complete", PhaseRunning, PhaseComplete, true},
		{"review approve", PhaseAwaitingReview, PhaseComplete, true},
		{"review reject resumes", PhaseAwaitingReview, PhaseRunning, true},
		{"review abort", PhaseAwaitingReview, PhaseAborted, true},
		{"complete is terminal", PhaseComplete, PhaseRunning, false},
		{"aborted is terminal", PhaseAborted, PhaseRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, PhaseComplete.Terminal())
	assert.True(t, PhaseAborted.Terminal())
	assert.False(t, PhaseRunning.Terminal())
	assert.False(t, PhaseAwaitingReview.Terminal())
}

func TestValidateCriteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria []Criterion
		wantErr  bool
		errMsg   string
	}{
		{
			name: "weights sum to one",
			criteria: []Criterion{
				{Name: "originality", Weight: 0.4},
				{Name: "premise", Weight: 0.35},
				{Name: "marketability", Weight: 0.25},
			},
			wantErr: false,
		},
		{
			name: "weights off by rounding tolerance",
			criteria: []Criterion{
				{Name: "a", Weight: 1.0 / 3},
				{Name: "b", Weight: 1.0 / 3},
				{Name: "c", Weight: 1.0 / 3},
			},
			wantErr: false,
		},
		{
			name:     "empty criteria",
			criteria: nil,
			wantErr:  true,
			errMsg:   "at least one criterion",
		},
		{
			name: "weights do not sum to one",
			criteria: []Criterion{
				{Name: "a", Weight: 0.5},
				{Name: "b", Weight: 0.3},
			},
			wantErr: true,
			errMsg:  "sum to 1.0",
		},
		{
			name: "duplicate names",
			criteria: []Criterion{
				{Name: "a", Weight: 0.5},
				{Name: "a", Weight: 0.5},
			},
			wantErr: true,
			errMsg:  "duplicate criterion",
		},
		{
			name: "non-positive weight",
			criteria: []Criterion{
				{Name: "a", Weight: 1.0},
				{Name: "b", Weight: 0},
			},
			wantErr: true,
			errMsg:  "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCriteria(tt.criteria)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerdictValidate(t *testing.T) {
	criteria := []Criterion{
		{Name: "originality", Weight: 0.6},
		{Name: "premise", Weight: 0.4},
	}

	tests := []struct {
		name    string
		verdict Verdict
		wantErr bool
		errMsg  string
	}{
		{
			name: "complete verdict",
			verdict: Verdict{
				Persona: "acquisitions-editor",
				Scores: []CriterionScore{
					{Criterion: "originality", A: 0.8, B: 0.3},
					{Criterion: "premise", A: 0.6, B: 0.7},
				},
			},
			wantErr: false,
		},
		{
			name:    "sentinel always valid",
			verdict: UnavailableVerdict("acquisitions-editor", "retries exhausted: 429"),
			wantErr: false,
		},
		{
			name: "missing criterion",
			verdict: Verdict{
				Persona: "acquisitions-editor",
				Scores: []CriterionScore{
					{Criterion: "originality", A: 0.8, B: 0.3},
				},
			},
			wantErr: true,
			errMsg:  "missing criterion",
		},
		{
			name: "score out of range",
			verdict: Verdict{
				Persona: "acquisitions-editor",
				Scores: []CriterionScore{
					{Criterion: "originality", A: 1.2, B: 0.3},
					{Criterion: "premise", A: 0.6, B: 0.7},
				},
			},
			wantErr: true,
			errMsg:  "out of range",
		},
		{
			name: "duplicate criterion",
			verdict: Verdict{
				Persona: "acquisitions-editor",
				Scores: []CriterionScore{
					{Criterion: "originality", A: 0.8, B: 0.3},
					{Criterion: "originality", A: 0.6, B: 0.7},
				},
			},
			wantErr: true,
			errMsg:  "duplicate criterion",
		},
		{
			name: "missing persona",
			verdict: Verdict{
				Scores: []CriterionScore{
					{Criterion: "originality", A: 0.8, B: 0.3},
					{Criterion: "premise", A: 0.6, B: 0.7},
				},
			},
			wantErr: true,
			errMsg:  "persona is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.verdict.Validate(criteria)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerdictWeightedScores(t *testing.T) {
	criteria := []Criterion{
		{Name: "originality", Weight: 0.75},
		{Name: "premise", Weight: 0.25},
	}
	v := Verdict{
		Persona: "story-doctor",
		Scores: []CriterionScore{
			{Criterion: "originality", A: 0.8, B: 0.4},
			{Criterion: "premise", A: 0.4, B: 0.8},
		},
	}

	a, b := v.WeightedScores(criteria)
	assert.InDelta(t, 0.7, a, 1e-9) // 0.75*0.8 + 0.25*0.4
	assert.InDelta(t, 0.5, b, 1e-9) // 0.75*0.4 + 0.25*0.8
}

func TestNormalizePair(t *testing.T) {
	a, b := NormalizePair("cand-9", "cand-10")
	assert.Equal(t, "cand-10", a)
	assert.Equal(t, "cand-9", b)

	a, b = NormalizePair("cand-10", "cand-9")
	assert.Equal(t, "cand-10", a)
	assert.Equal(t, "cand-9", b)

	assert.Equal(t, PairKey("x", "y"), PairKey("y", "x"))
}

func TestNewMatchup(t *testing.T) {
	m := NewMatchup("trn-abc123", 2, 3, "cand-7", "cand-12")

	assert.Equal(t, "trn-abc123-r2-m3", m.ID)
	assert.Equal(t, "cand-12", m.CandidateA)
	assert.Equal(t, "cand-7", m.CandidateB)
	assert.False(t, m.Resolved())
	assert.Empty(t, m.LoserID())

	m.WinnerID = "cand-7"
	assert.True(t, m.Resolved())
	assert.Equal(t, "cand-12", m.LoserID())
	assert.True(t, m.Contains("cand-7"))
	assert.False(t, m.Contains("cand-99"))
}

func TestContentHash(t *testing.T) {
	// Whitespace and case differences should not produce distinct fingerprints.
	h1 := ContentHash("The Lighthouse", "A keeper finds a door beneath the lamp.")
	h2 := ContentHash("the  lighthouse", "  A keeper finds a door\nbeneath the lamp.  ")
	h3 := ContentHash("The Lighthouse", "A keeper finds a window beneath the lamp.")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestSpendAdd(t *testing.T) {
	s := Spend{Calls: 2, InputTokens: 100, OutputTokens: 50, CostUSD: 0.01}
	s.Add(Spend{Calls: 1, InputTokens: 10, OutputTokens: 5, CostUSD: 0.002})

	assert.Equal(t, 3, s.Calls)
	assert.Equal(t, int64(110), s.InputTokens)
	assert.Equal(t, int64(55), s.OutputTokens)
	assert.InDelta(t, 0.012, s.CostUSD, 1e-9)
}
