package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

// Candidate represents a single generated idea competing in a tournament.
// The content payload is opaque to the engine: it is scored, embedded, and
// archived but never interpreted.
type Candidate struct {
	ID           string          `json:"id"`
	BatchID      string          `json:"batch_id"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Status       CandidateStatus `json:"status"`
	RoundReached int             `json:"round_reached"`
	ScoreHistory []RoundSummary  `json:"score_history,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Validate checks if the candidate has valid field values
func (c *Candidate) Validate() error {
	if len(c.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(c.Title))
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", c.Status)
	}
	if c.RoundReached < 0 {
		return fmt.Errorf("round_reached cannot be negative")
	}
	return nil
}

// Fingerprint returns the cheap content hash used by the archive for
// exact-duplicate detection. Title and body are hashed together so a
// retitled copy of the same body still collides.
func (c *Candidate) Fingerprint() string {
	return ContentHash(c.Title, c.Content)
}

// ContentHash computes the canonical content fingerprint for a title/body
// pair. Whitespace is collapsed and case is folded so trivial reformatting
// does not defeat the fast-path duplicate check.
func ContentHash(title, content string) string {
	canon := strings.ToLower(strings.Join(strings.Fields(title+" "+content), " "))
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

// CandidateStatus represents the lifecycle state of a candidate
type CandidateStatus string

const (
	// StatusActive means the candidate is competing in the current bracket
	StatusActive CandidateStatus = "active"
	// StatusUnderReview means the candidate is a finalist awaiting human review
	StatusUnderReview CandidateStatus = "under_review"
	// StatusEliminated means the candidate lost a matchup or was rejected by a reviewer
	StatusEliminated CandidateStatus = "eliminated"
	// StatusWinner means the candidate survived the tournament and was approved
	StatusWinner CandidateStatus = "winner"
	// StatusArchived means the candidate was removed pre-round as a near-duplicate
	// of an archived entry and never competed
	StatusArchived CandidateStatus = "archived"
)

// IsValid checks if the status value is valid
func (s CandidateStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusUnderReview, StatusEliminated, StatusWinner, StatusArchived:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions
// (other than the logged reviewer-reinstatement escape hatch on eliminated).
func (s CandidateStatus) Terminal() bool {
	return s == StatusWinner || s == StatusArchived
}

// validStatusTransitions encodes the lifecycle. Elimination is monotonic:
// nothing ever returns to active. The single exception, eliminated ->
// under_review, is reviewer reinstatement during a checkpoint and the store
// requires an actor and reason for it.
var validStatusTransitions = map[CandidateStatus][]CandidateStatus{
	StatusActive:      {StatusEliminated, StatusArchived, StatusUnderReview},
	StatusUnderReview: {StatusWinner, StatusEliminated},
	StatusEliminated:  {StatusUnderReview},
	StatusWinner:      {},
	StatusArchived:    {},
}

// CanTransitionTo reports whether a status change is a legal lifecycle move
func (s CandidateStatus) CanTransitionTo(next CandidateStatus) bool {
	for _, allowed := range validStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RoundSummary is one entry in a candidate's score history: how the
// candidate fared in a single round.
type RoundSummary struct {
	Round         int              `json:"round"`
	MatchupID     string           `json:"matchup_id,omitempty"`
	OpponentID    string           `json:"opponent_id,omitempty"`
	Score         float64          `json:"score"`
	OpponentScore float64          `json:"opponent_score"`
	Won           bool             `json:"won"`
	Bye           bool             `json:"bye,omitempty"`
	Reason        ResolutionReason `json:"reason,omitempty"`
}

// CriterionScore holds one persona's scores for a single criterion, for
// both sides of a matchup. Scores are always in [0,1]; verdict validation
// rejects anything outside that range before it reaches scoring logic.
type CriterionScore struct {
	Criterion string  `json:"criterion"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

// Verdict is one judge persona's complete judgment of a matchup: a score
// per criterion per side, plus an opaque rationale that is logged but never
// parsed. A Verdict with Unavailable set is the sentinel produced when the
// persona's call exhausted its retries; such verdicts carry no scores and
// are excluded from aggregation.
type Verdict struct {
	Persona     string           `json:"persona"`
	Scores      []CriterionScore `json:"scores,omitempty"`
	Rationale   string           `json:"rationale,omitempty"`
	Unavailable bool             `json:"unavailable,omitempty"`
	Model       string           `json:"model,omitempty"`
	LatencyMS   int64            `json:"latency_ms,omitempty"`
}

// UnavailableVerdict returns the sentinel verdict recorded when a persona's
// judge call could not be completed. The rationale carries the final error
// for the audit trail.
func UnavailableVerdict(persona, detail string) Verdict {
	return Verdict{
		Persona:     persona,
		Unavailable: true,
		Rationale:   detail,
	}
}

// Validate checks the verdict against the tournament's criteria set.
// Every configured criterion must appear exactly once and all scores must
// be in [0,1]. Sentinel verdicts are always valid.
func (v *Verdict) Validate(criteria []Criterion) error {
	if v.Unavailable {
		return nil
	}
	if v.Persona == "" {
		return fmt.Errorf("persona is required")
	}
	seen := make(map[string]bool, len(v.Scores))
	for _, cs := range v.Scores {
		if seen[cs.Criterion] {
			return fmt.Errorf("duplicate criterion %q in verdict", cs.Criterion)
		}
		seen[cs.Criterion] = true
		if cs.A < 0 || cs.A > 1 || cs.B < 0 || cs.B > 1 {
			return fmt.Errorf("criterion %q scores out of range [0,1]: a=%.3f b=%.3f", cs.Criterion, cs.A, cs.B)
		}
	}
	for _, c := range criteria {
		if !seen[c.Name] {
			return fmt.Errorf("verdict missing criterion %q", c.Name)
		}
	}
	if len(seen) != len(criteria) {
		return fmt.Errorf("verdict has %d criteria, expected %d", len(seen), len(criteria))
	}
	return nil
}

// WeightedScores aggregates the verdict into a single weighted score per
// side using the tournament's criteria weights. Callers must not invoke
// this on sentinel verdicts.
func (v *Verdict) WeightedScores(criteria []Criterion) (a, b float64) {
	weights := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		weights[c.Name] = c.Weight
	}
	for _, cs := range v.Scores {
		w := weights[cs.Criterion]
		a += w * cs.A
		b += w * cs.B
	}
	return a, b
}

// ResolutionReason records how a matchup winner was determined
type ResolutionReason string

const (
	// ReasonClearMajority: the weighted aggregate decided, and a strict
	// majority of responding personas individually preferred the winner
	ReasonClearMajority ResolutionReason = "clear_majority"
	// ReasonWeightedScore: the weighted aggregate decided without a panel majority
	ReasonWeightedScore ResolutionReason = "weighted_score"
	// ReasonTieBreakSeed: aggregates tied within epsilon, deterministic seed decided
	ReasonTieBreakSeed ResolutionReason = "tie_break_seed"
	// ReasonJudgeFailureDefault: every persona was unavailable, seed decided
	ReasonJudgeFailureDefault ResolutionReason = "judge_failure_default"
)

// IsValid checks if the resolution reason value is valid
func (r ResolutionReason) IsValid() bool {
	switch r {
	case ReasonClearMajority, ReasonWeightedScore, ReasonTieBreakSeed, ReasonJudgeFailureDefault:
		return true
	}
	return false
}

// Matchup is one pairwise comparison between two candidates in a round.
// The pair is stored in lexical id order so the same two candidates always
// produce the same stored pair regardless of bracket position. A matchup is
// immutable once resolved.
type Matchup struct {
	ID           string           `json:"id"`
	TournamentID string           `json:"tournament_id"`
	Round        int              `json:"round"`
	CandidateA   string           `json:"candidate_a"`
	CandidateB   string           `json:"candidate_b"`
	Verdicts     []Verdict        `json:"verdicts,omitempty"`
	WinnerID     string           `json:"winner_id,omitempty"`
	Reason       ResolutionReason `json:"resolution_reason,omitempty"`
	ScoreA       float64          `json:"score_a"`
	ScoreB       float64          `json:"score_b"`
	CreatedAt    time.Time        `json:"created_at"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
}

// NewMatchup builds an unresolved matchup shell with the stable pair
// ordering and the deterministic id used throughout the audit trail.
func NewMatchup(tournamentID string, round, index int, candA, candB string) *Matchup {
	a, b := NormalizePair(candA, candB)
	return &Matchup{
		ID:           fmt.Sprintf("%s-r%d-m%d", tournamentID, round, index),
		TournamentID: tournamentID,
		Round:        round,
		CandidateA:   a,
		CandidateB:   b,
		CreatedAt:    time.Now(),
	}
}

// Resolved reports whether the matchup has a winner
func (m *Matchup) Resolved() bool {
	return m.WinnerID != ""
}

// LoserID returns the losing candidate id, or empty if unresolved
func (m *Matchup) LoserID() string {
	switch m.WinnerID {
	case m.CandidateA:
		return m.CandidateB
	case m.CandidateB:
		return m.CandidateA
	}
	return ""
}

// Contains reports whether the candidate participates in this matchup
func (m *Matchup) Contains(candidateID string) bool {
	return m.CandidateA == candidateID || m.CandidateB == candidateID
}

// NormalizePair returns the two ids in their stable stored order
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// PairKey returns the canonical rematch-history key for two candidate ids
func PairKey(a, b string) string {
	x, y := NormalizePair(a, b)
	return x + "|" + y
}

// Round is one full layer of the elimination bracket. Its output set is
// exactly the next round's input set.
type Round struct {
	TournamentID string     `json:"tournament_id"`
	Number       int        `json:"number"`
	InputIDs     []string   `json:"input_ids"`
	Matchups     []*Matchup `json:"matchups,omitempty"`
	ByeID        string     `json:"bye_id,omitempty"`
	OutputIDs    []string   `json:"output_ids,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether every matchup in the round has resolved
func (r *Round) Completed() bool {
	return r.CompletedAt != nil
}

// TournamentPhase represents the controller state machine position
type TournamentPhase string

const (
	PhaseRunning        TournamentPhase = "running"
	PhaseAwaitingReview TournamentPhase = "awaiting_human_review"
	PhaseComplete       TournamentPhase = "complete"
	PhaseAborted        TournamentPhase = "aborted"
)

// IsValid checks if the phase value is valid
func (p TournamentPhase) IsValid() bool {
	switch p {
	case PhaseRunning, PhaseAwaitingReview, PhaseComplete, PhaseAborted:
		return true
	}
	return false
}

// Terminal reports whether the phase is final
func (p TournamentPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseAborted
}

var validPhaseTransitions = map[TournamentPhase][]TournamentPhase{
	PhaseRunning:        {PhaseAwaitingReview, PhaseComplete, PhaseAborted},
	PhaseAwaitingReview: {PhaseRunning, PhaseComplete, PhaseAborted},
	PhaseComplete:       {},
	PhaseAborted:        {},
}

// CanTransitionTo reports whether a phase change is legal
func (p TournamentPhase) CanTransitionTo(next TournamentPhase) bool {
	for _, allowed := range validPhaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Criterion is one axis of comparative judgment with its aggregation weight.
// Guidance is opaque prompt material passed through to the judge capability.
type Criterion struct {
	Name     string  `json:"name" yaml:"name"`
	Weight   float64 `json:"weight" yaml:"weight"`
	Guidance string  `json:"guidance,omitempty" yaml:"guidance,omitempty"`
}

// WeightSumEpsilon is the tolerance for criteria weights summing to 1.0
const WeightSumEpsilon = 1e-6

// ValidateCriteria checks that criteria names are unique and non-empty and
// that weights are positive and sum to 1.0 within tolerance.
func ValidateCriteria(criteria []Criterion) error {
	if len(criteria) == 0 {
		return fmt.Errorf("at least one criterion is required")
	}
	seen := make(map[string]bool, len(criteria))
	sum := 0.0
	for _, c := range criteria {
		if c.Name == "" {
			return fmt.Errorf("criterion name is required")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate criterion name: %s", c.Name)
		}
		seen[c.Name] = true
		if c.Weight <= 0 {
			return fmt.Errorf("criterion %q weight must be positive (got %.4f)", c.Name, c.Weight)
		}
		sum += c.Weight
	}
	if math.Abs(sum-1.0) > WeightSumEpsilon {
		return fmt.Errorf("criteria weights must sum to 1.0 (got %.6f)", sum)
	}
	return nil
}

// Persona is one named evaluator profile on the judge panel. Brief is the
// opaque profile text supplied to the judge capability; Model optionally
// overrides the panel's default model for this persona.
type Persona struct {
	Name  string `json:"name" yaml:"name"`
	Brief string `json:"brief" yaml:"brief"`
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}

// ValidatePersonas checks that persona names are unique and non-empty
func ValidatePersonas(personas []Persona) error {
	if len(personas) == 0 {
		return fmt.Errorf("at least one persona is required")
	}
	seen := make(map[string]bool, len(personas))
	for _, p := range personas {
		if p.Name == "" {
			return fmt.Errorf("persona name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate persona name: %s", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Tournament is one elimination run: its configuration snapshot, phase, and
// (once complete) final winners. Criteria and personas are snapshotted at
// creation so later config edits cannot change how a past run is audited.
type Tournament struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batch_id,omitempty"`
	TargetK     int             `json:"target_k"`
	Phase       TournamentPhase `json:"phase"`
	Criteria    []Criterion     `json:"criteria"`
	Personas    []Persona       `json:"personas"`
	LastRound   int             `json:"last_round"`
	WinnerIDs   []string        `json:"winner_ids,omitempty"`
	AbortReason string          `json:"abort_reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Validate checks if the tournament has valid field values
func (t *Tournament) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.TargetK < 1 {
		return fmt.Errorf("target_k must be at least 1 (got %d)", t.TargetK)
	}
	if !t.Phase.IsValid() {
		return fmt.Errorf("invalid phase: %s", t.Phase)
	}
	if err := ValidateCriteria(t.Criteria); err != nil {
		return err
	}
	return ValidatePersonas(t.Personas)
}

// ArchiveReason records why a candidate entered the archive
type ArchiveReason string

const (
	// ArchiveEliminated: the candidate lost a matchup
	ArchiveEliminated ArchiveReason = "eliminated"
	// ArchiveHumanRejected: a reviewer rejected the candidate at a checkpoint
	ArchiveHumanRejected ArchiveReason = "human_rejected"
	// ArchiveDuplicate: the candidate was a near-duplicate of an archived entry
	// and was removed before ever competing
	ArchiveDuplicate ArchiveReason = "duplicate_of_rejected"
)

// IsValid checks if the archive reason value is valid
func (r ArchiveReason) IsValid() bool {
	switch r {
	case ArchiveEliminated, ArchiveHumanRejected, ArchiveDuplicate:
		return true
	}
	return false
}

// ArchiveEntry is one append-only record in the historical archive: the
// fingerprint (embedding + cheap hash) of a candidate that was eliminated,
// rejected, or suppressed, consulted by later runs for duplicate detection.
// Entries are never updated or deleted.
type ArchiveEntry struct {
	ID             int64         `json:"id"`
	CandidateID    string        `json:"candidate_id"`
	TournamentID   string        `json:"tournament_id,omitempty"`
	Title          string        `json:"title"`
	ContentHash    string        `json:"content_hash"`
	Embedding      []float32     `json:"-"`
	EmbeddingModel string        `json:"embedding_model,omitempty"`
	Round          int           `json:"elimination_round"`
	Reason         ArchiveReason `json:"reason"`
	CreatedAt      time.Time     `json:"created_at"`
}

// SimilarMatch pairs an archive entry with its similarity to a probe
// candidate, in [0,1] where 1 is identical.
type SimilarMatch struct {
	Entry      *ArchiveEntry `json:"entry"`
	Similarity float64       `json:"similarity"`
}

// Spend accumulates judge/generation token usage for a tournament
type Spend struct {
	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add merges another spend total into this one
func (s *Spend) Add(other Spend) {
	s.Calls += other.Calls
	s.InputTokens += other.InputTokens
	s.OutputTokens += other.OutputTokens
	s.CostUSD += other.CostUSD
}

// TournamentResult is the complete outcome exposed to downstream consumers:
// winners with full score lineage, eliminated candidates with round and
// reason, and every resolved matchup. It is sufficient to reconstruct why
// any candidate won or lost without re-running the tournament. Aborted
// tournaments return a partial result with every round resolved so far and
// an explicit abort reason.
type TournamentResult struct {
	TournamentID string          `json:"tournament_id"`
	Phase        TournamentPhase `json:"phase"`
	TargetK      int             `json:"target_k"`
	Winners      []*Candidate    `json:"winners"`
	Eliminated   []*Candidate    `json:"eliminated"`
	Suppressed   []*Candidate    `json:"suppressed,omitempty"`
	Rounds       []*Round        `json:"rounds"`
	Matchups     []*Matchup      `json:"matchups"`
	Degraded     bool            `json:"degraded,omitempty"`
	AbortReason  string          `json:"abort_reason,omitempty"`
	Spend        Spend           `json:"spend"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}
