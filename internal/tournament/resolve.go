package tournament

import (
	"math"
	"strconv"
	"time"

	"github.com/slushpile/gauntlet/internal/bracket"
	"github.com/slushpile/gauntlet/internal/types"
)

// resolveMatchup computes the outcome of a judged matchup in memory. Each
// side's aggregate is the mean weighted score over the responding personas;
// sentinel verdicts carry no signal and are excluded. Resolution never
// fails: an empty responder set falls back to the deterministic seed.
func resolveMatchup(m *types.Matchup, verdicts []types.Verdict, criteria []types.Criterion, epsilon float64) {
	m.Verdicts = verdicts

	var sumA, sumB float64
	var prefA, prefB, responders int
	for _, v := range verdicts {
		if v.Unavailable {
			continue
		}
		a, b := v.WeightedScores(criteria)
		sumA += a
		sumB += b
		responders++
		if a > b {
			prefA++
		} else if b > a {
			prefB++
		}
	}

	now := time.Now()
	m.ResolvedAt = &now

	if responders == 0 {
		m.WinnerID = seedWinner(m)
		m.Reason = types.ReasonJudgeFailureDefault
		return
	}

	m.ScoreA = sumA / float64(responders)
	m.ScoreB = sumB / float64(responders)

	diff := m.ScoreA - m.ScoreB
	if math.Abs(diff) <= epsilon {
		m.WinnerID = seedWinner(m)
		m.Reason = types.ReasonTieBreakSeed
		return
	}

	winnerPref := prefA
	if diff > 0 {
		m.WinnerID = m.CandidateA
	} else {
		m.WinnerID = m.CandidateB
		winnerPref = prefB
	}
	// Clear majority means a strict majority of responding personas
	// individually preferred the aggregate winner
	if winnerPref*2 > responders {
		m.Reason = types.ReasonClearMajority
	} else {
		m.Reason = types.ReasonWeightedScore
	}
}

// seedWinner picks a side with no judge signal at all. The seed depends
// only on (tournament, round, pair), so replaying the tournament
// reproduces the same pick without any external call.
func seedWinner(m *types.Matchup) string {
	seed := bracket.DeriveSeed(m.TournamentID, strconv.Itoa(m.Round), m.CandidateA, m.CandidateB)
	if seed%2 == 0 {
		return m.CandidateA
	}
	return m.CandidateB
}
