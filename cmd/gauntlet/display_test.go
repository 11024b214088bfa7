package main

import (
	"testing"

	"github.com/slushpile/gauntlet/internal/types"
)

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{
			name:     "short string unchanged",
			input:    "The Lighthouse Keeper",
			max:      30,
			expected: "The Lighthouse Keeper",
		},
		{
			name:     "exact length unchanged",
			input:    "abcde",
			max:      5,
			expected: "abcde",
		},
		{
			name:     "long string gets ellipsis",
			input:    "A premise that runs on far too long for one line",
			max:      20,
			expected: "A premise that ru...",
		},
		{
			name:     "multibyte runes not split",
			input:    "日本語のタイトルがとても長い場合の切り詰め",
			max:      8,
			expected: "日本語のタ...",
		},
		{
			name:     "tiny max returns prefix",
			input:    "abcdef",
			max:      2,
			expected: "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateTitle(tt.input, tt.max)
			if result != tt.expected {
				t.Errorf("truncateTitle(%q, %d) = %q, want %q", tt.input, tt.max, result, tt.expected)
			}
			if len([]rune(result)) > tt.max {
				t.Errorf("truncateTitle(%q, %d) = %q, longer than max", tt.input, tt.max, result)
			}
		})
	}
}

func TestFormatSpend(t *testing.T) {
	tests := []struct {
		name     string
		spend    types.Spend
		expected string
	}{
		{
			name:     "zero spend",
			spend:    types.Spend{},
			expected: "no judge calls recorded",
		},
		{
			name: "accumulated spend",
			spend: types.Spend{
				Calls:        12,
				InputTokens:  48211,
				OutputTokens: 9302,
				CostUSD:      0.3871,
			},
			expected: "12 calls, 48211 in / 9302 out tokens, $0.3871",
		},
		{
			name: "cost rounds to four decimals",
			spend: types.Spend{
				Calls:        1,
				InputTokens:  100,
				OutputTokens: 50,
				CostUSD:      0.00012,
			},
			expected: "1 calls, 100 in / 50 out tokens, $0.0001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatSpend(tt.spend)
			if result != tt.expected {
				t.Errorf("formatSpend() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestPhaseGlyph(t *testing.T) {
	tests := []struct {
		name     string
		t        types.Tournament
		expected string
	}{
		{
			name:     "running",
			t:        types.Tournament{Phase: types.PhaseRunning},
			expected: "●",
		},
		{
			name:     "awaiting review",
			t:        types.Tournament{Phase: types.PhaseAwaitingReview},
			expected: "⏸",
		},
		{
			name: "complete at target",
			t: types.Tournament{
				Phase:     types.PhaseComplete,
				TargetK:   2,
				WinnerIDs: []string{"cand-1", "cand-2"},
			},
			expected: "✓",
		},
		{
			name: "degraded completion warns",
			t: types.Tournament{
				Phase:     types.PhaseComplete,
				TargetK:   2,
				WinnerIDs: []string{"cand-1"},
			},
			expected: "⚠",
		},
		{
			name:     "aborted",
			t:        types.Tournament{Phase: types.PhaseAborted},
			expected: "✗",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			glyph, c := phaseGlyph(&tt.t)
			if glyph != tt.expected {
				t.Errorf("phaseGlyph() = %q, want %q", glyph, tt.expected)
			}
			if c == nil {
				t.Error("phaseGlyph() returned nil color")
			}
		})
	}
}

func TestMatchupScores(t *testing.T) {
	m := &types.Matchup{
		CandidateA: "cand-1",
		CandidateB: "cand-2",
		ScoreA:     0.8,
		ScoreB:     0.5,
	}

	m.WinnerID = "cand-1"
	winner, loser := matchupScores(m)
	if winner != 0.8 || loser != 0.5 {
		t.Errorf("winner A: got (%.1f, %.1f), want (0.8, 0.5)", winner, loser)
	}

	m.WinnerID = "cand-2"
	winner, loser = matchupScores(m)
	if winner != 0.5 || loser != 0.8 {
		t.Errorf("winner B: got (%.1f, %.1f), want (0.5, 0.8)", winner, loser)
	}
}

func TestLastScore(t *testing.T) {
	tests := []struct {
		name      string
		history   []types.RoundSummary
		wantScore float64
		wantOK    bool
	}{
		{
			name:   "no history",
			wantOK: false,
		},
		{
			name: "only byes",
			history: []types.RoundSummary{
				{Round: 1, Bye: true, Won: true},
			},
			wantOK: false,
		},
		{
			name: "latest scored round wins over earlier",
			history: []types.RoundSummary{
				{Round: 1, Score: 0.61, Won: true},
				{Round: 2, Score: 0.74, Won: true},
			},
			wantScore: 0.74,
			wantOK:    true,
		},
		{
			name: "trailing bye skipped",
			history: []types.RoundSummary{
				{Round: 1, Score: 0.58, Won: true},
				{Round: 2, Bye: true, Won: true},
			},
			wantScore: 0.58,
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &types.Candidate{ScoreHistory: tt.history}
			score, ok := lastScore(c)
			if ok != tt.wantOK {
				t.Fatalf("lastScore() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && score != tt.wantScore {
				t.Errorf("lastScore() = %.2f, want %.2f", score, tt.wantScore)
			}
		})
	}
}
