package tournament

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slushpile/gauntlet/internal/types"
)

func testCriteria() []types.Criterion {
	return []types.Criterion{
		{Name: "originality", Weight: 0.6},
		{Name: "craft", Weight: 0.4},
	}
}

func testPersonas(n int) []types.Persona {
	names := []string{"architect", "plotwright", "contrarian", "stylist"}
	personas := make([]types.Persona, n)
	for i := range personas {
		personas[i] = types.Persona{Name: names[i], Brief: "test persona"}
	}
	return personas
}

// scored builds a responding verdict that gives side A and side B the same
// score on every criterion, so the weighted aggregate equals the raw score.
func scored(persona string, a, b float64) types.Verdict {
	return types.Verdict{
		Persona: persona,
		Scores: []types.CriterionScore{
			{Criterion: "originality", A: a, B: b},
			{Criterion: "craft", A: a, B: b},
		},
		Rationale: "test",
	}
}

func resolveTestMatchup() *types.Matchup {
	return types.NewMatchup("trn-resolve", 1, 0, "cand-1", "cand-2")
}

func TestResolveClearMajority(t *testing.T) {
	m := resolveTestMatchup()
	verdicts := []types.Verdict{
		scored("architect", 0.9, 0.4),
		scored("plotwright", 0.8, 0.5),
		scored("contrarian", 0.7, 0.6),
	}

	resolveMatchup(m, verdicts, testCriteria(), 1e-9)

	assert.Equal(t, "cand-1", m.WinnerID)
	assert.Equal(t, "cand-2", m.LoserID())
	assert.Equal(t, types.ReasonClearMajority, m.Reason)
	assert.InDelta(t, 0.8, m.ScoreA, 1e-9)
	assert.InDelta(t, 0.5, m.ScoreB, 1e-9)
	require.NotNil(t, m.ResolvedAt)
	assert.Len(t, m.Verdicts, 3)
	assert.True(t, m.Resolved())
}

func TestResolveWeightedScoreWithoutMajority(t *testing.T) {
	// One persona loves A, two mildly prefer B, but A's aggregate carries:
	// the winner lacks a strict majority of individual preferences.
	m := resolveTestMatchup()
	verdicts := []types.Verdict{
		scored("architect", 1.0, 0.0),
		scored("plotwright", 0.0, 0.4),
		scored("contrarian", 0.0, 0.3),
	}

	resolveMatchup(m, verdicts, testCriteria(), 1e-9)

	assert.Equal(t, "cand-1", m.WinnerID)
	assert.Equal(t, types.ReasonWeightedScore, m.Reason)
	assert.InDelta(t, 1.0/3.0, m.ScoreA, 1e-9)
	assert.InDelta(t, 0.7/3.0, m.ScoreB, 1e-9)
}

func TestResolveTieBreakSeedDeterministic(t *testing.T) {
	m := resolveTestMatchup()
	verdicts := []types.Verdict{
		scored("architect", 0.75, 0.75),
		scored("plotwright", 0.75, 0.75),
	}

	resolveMatchup(m, verdicts, testCriteria(), 1e-9)

	assert.Equal(t, types.ReasonTieBreakSeed, m.Reason)
	assert.Contains(t, []string{"cand-1", "cand-2"}, m.WinnerID)
	assert.InDelta(t, 0.75, m.ScoreA, 1e-9)
	assert.InDelta(t, 0.75, m.ScoreB, 1e-9)

	// Same tournament, round, and pair always breaks the same way
	for i := 0; i < 10; i++ {
		again := resolveTestMatchup()
		resolveMatchup(again, verdicts, testCriteria(), 1e-9)
		assert.Equal(t, m.WinnerID, again.WinnerID)
	}
}

func TestResolveEpsilonWindow(t *testing.T) {
	verdicts := []types.Verdict{scored("architect", 0.70, 0.73)}

	wide := resolveTestMatchup()
	resolveMatchup(wide, verdicts, testCriteria(), 0.05)
	assert.Equal(t, types.ReasonTieBreakSeed, wide.Reason)

	narrow := resolveTestMatchup()
	resolveMatchup(narrow, verdicts, testCriteria(), 0.01)
	assert.Equal(t, "cand-2", narrow.WinnerID)
	assert.Equal(t, types.ReasonClearMajority, narrow.Reason)
}

func TestResolveAllUnavailable(t *testing.T) {
	m := resolveTestMatchup()
	verdicts := []types.Verdict{
		types.UnavailableVerdict("architect", "timeout after 3 attempts"),
		types.UnavailableVerdict("plotwright", "timeout after 3 attempts"),
		types.UnavailableVerdict("contrarian", "timeout after 3 attempts"),
	}

	resolveMatchup(m, verdicts, testCriteria(), 1e-9)

	assert.Equal(t, types.ReasonJudgeFailureDefault, m.Reason)
	assert.Contains(t, []string{"cand-1", "cand-2"}, m.WinnerID)
	assert.Zero(t, m.ScoreA)
	assert.Zero(t, m.ScoreB)
	assert.Len(t, m.Verdicts, 3)
	require.NotNil(t, m.ResolvedAt)

	// The fallback is seeded, not random
	again := resolveTestMatchup()
	resolveMatchup(again, verdicts, testCriteria(), 1e-9)
	assert.Equal(t, m.WinnerID, again.WinnerID)
}

func TestResolvePartialPanelAggregatesResponders(t *testing.T) {
	// The sentinel is excluded entirely: means are over the two responders,
	// not dragged down by a phantom zero.
	m := resolveTestMatchup()
	verdicts := []types.Verdict{
		scored("architect", 0.2, 0.9),
		types.UnavailableVerdict("plotwright", "connection refused"),
		scored("contrarian", 0.4, 0.6),
	}

	resolveMatchup(m, verdicts, testCriteria(), 1e-9)

	assert.Equal(t, "cand-2", m.WinnerID)
	assert.Equal(t, types.ReasonClearMajority, m.Reason)
	assert.InDelta(t, 0.3, m.ScoreA, 1e-9)
	assert.InDelta(t, 0.75, m.ScoreB, 1e-9)
}

func TestSeedWinnerStable(t *testing.T) {
	m := resolveTestMatchup()
	first := seedWinner(m)
	assert.Contains(t, []string{m.CandidateA, m.CandidateB}, first)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, seedWinner(resolveTestMatchup()))
	}
}
