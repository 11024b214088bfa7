// Package bracket builds deterministic round pairings. Given the same
// tournament id, round number, and candidate set, Build always produces
// the same matchups and the same bye, regardless of input order. That
// determinism is what makes tournament runs replayable and tie-breaks
// auditable.
package bracket

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/slushpile/gauntlet/internal/types"
)

// ErrInsufficientCandidates indicates a round input too small to pair.
// This is a structural failure: the controller aborts, it never retries.
var ErrInsufficientCandidates = errors.New("insufficient candidates to build a round")

// Plan is the pairing for one round: ⌊N/2⌋ pairs plus at most one bye.
// Pairs are in bracket order; matchup indexes follow slice positions.
type Plan struct {
	Pairs [][2]string
	ByeID string // empty when the input size is even

	// Rematches counts pairs that already met earlier in the tournament.
	// Zero unless reshuffling was exhausted and a rematch was accepted
	// as a last resort.
	Rematches  int
	Reshuffles int
}

// DeriveSeed hashes an ordered list of parts into a deterministic RNG
// seed. Parts are length-delimited so ("ab","c") and ("a","bc") derive
// different seeds.
func DeriveSeed(parts ...string) int64 {
	h := sha256.New()
	for _, p := range parts {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Build produces the pairing for one round. The candidate set is sorted
// before the seeded shuffle so callers may pass ids in any order. history
// holds types.PairKey entries for every pair that has already met; when a
// shuffle produces a rematch, Build reshuffles up to maxReshuffles times
// and then accepts the arrangement with the fewest rematches seen.
func Build(tournamentID string, round int, candidateIDs []string, history map[string]bool, maxReshuffles int) (*Plan, error) {
	if len(candidateIDs) < 2 {
		return nil, fmt.Errorf("%w: round %d has %d candidates", ErrInsufficientCandidates, round, len(candidateIDs))
	}
	if maxReshuffles < 0 {
		maxReshuffles = 0
	}

	ids := make([]string, len(candidateIDs))
	copy(ids, candidateIDs)
	sort.Strings(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return nil, fmt.Errorf("duplicate candidate id %s in round %d input", ids[i], round)
		}
	}

	rng := rand.New(rand.NewSource(DeriveSeed(tournamentID, strconv.Itoa(round))))

	var best *Plan
	for attempt := 0; attempt <= maxReshuffles; attempt++ {
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		plan := assemble(ids, history)
		plan.Reshuffles = attempt
		if plan.Rematches == 0 {
			return plan, nil
		}
		if best == nil || plan.Rematches < best.Rematches {
			best = plan
		}
	}
	return best, nil
}

// assemble pairs consecutive candidates and designates the trailing
// candidate as the bye on odd counts.
func assemble(ids []string, history map[string]bool) *Plan {
	plan := &Plan{}
	limit := len(ids) - len(ids)%2
	for i := 0; i < limit; i += 2 {
		a, b := ids[i], ids[i+1]
		if history[types.PairKey(a, b)] {
			plan.Rematches++
		}
		plan.Pairs = append(plan.Pairs, [2]string{a, b})
	}
	if len(ids)%2 == 1 {
		plan.ByeID = ids[len(ids)-1]
	}
	return plan
}

// OutputSize reports how many candidates a round with the given input
// size advances: one winner per pair plus the bye.
func OutputSize(inputSize int) int {
	return inputSize/2 + inputSize%2
}
