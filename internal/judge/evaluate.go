package judge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/slushpile/gauntlet/internal/types"
)

// verdictResponse is the JSON shape each persona must return
type verdictResponse struct {
	Scores []struct {
		Criterion string  `json:"criterion"`
		A         float64 `json:"a"`
		B         float64 `json:"b"`
	} `json:"scores"`
	Rationale string `json:"rationale"`
}

func (r verdictResponse) toVerdict(persona, model string) types.Verdict {
	v := types.Verdict{
		Persona:   persona,
		Model:     model,
		Rationale: r.Rationale,
	}
	for _, s := range r.Scores {
		v.Scores = append(v.Scores, types.CriterionScore{
			Criterion: s.Criterion,
			A:         s.A,
			B:         s.B,
		})
	}
	return v
}

// Evaluate collects one Verdict per persona for a matchup. Persona calls
// are independent and concurrent; the panel's semaphore bounds aggregate
// API concurrency across all in-flight matchups. A persona whose call
// exhausts its retries contributes an Unavailable sentinel verdict, so
// the returned slice always has exactly one entry per persona, in persona
// order. Evaluate never fails the matchup.
func (p *Panel) Evaluate(ctx context.Context, matchup *types.Matchup, candA, candB *types.Candidate, criteria []types.Criterion, personas []types.Persona) []types.Verdict {
	verdicts := make([]types.Verdict, len(personas))

	var wg sync.WaitGroup
	for i, persona := range personas {
		wg.Add(1)
		go func(i int, persona types.Persona) {
			defer wg.Done()
			verdicts[i] = p.judgeOne(ctx, matchup, candA, candB, criteria, persona)
		}(i, persona)
	}
	wg.Wait()

	return verdicts
}

// judgeOne runs a single persona's judgment with retry. Parse and
// validation failures count as retriable (the model is re-asked); after
// the final attempt the persona degrades to a sentinel verdict.
func (p *Panel) judgeOne(ctx context.Context, matchup *types.Matchup, candA, candB *types.Candidate, criteria []types.Criterion, persona types.Persona) types.Verdict {
	operation := fmt.Sprintf("verdict[%s]", persona.Name)

	model := persona.Model
	if model == "" {
		model = p.model
	}

	prompt := buildVerdictPrompt(persona, candA, candB, criteria)
	maxTokens := verdictMaxTokens(len(criteria))

	startTime := time.Now()
	var verdict types.Verdict
	var usage Usage

	err := p.retryWithBackoff(ctx, operation, func(ctx context.Context) error {
		text, u, callErr := p.call(ctx, prompt, model, maxTokens)
		if callErr != nil {
			return callErr
		}
		usage = u

		parsed := Parse[verdictResponse](text, "verdict response")
		if !parsed.Success {
			return fmt.Errorf("%w: %s (response: %s)", errMalformedResponse, parsed.Error, truncate(text, 200))
		}

		v := parsed.Data.toVerdict(persona.Name, model)
		if err := v.Validate(criteria); err != nil {
			return fmt.Errorf("%w: %v", errMalformedResponse, err)
		}

		verdict = v
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		v := types.UnavailableVerdict(persona.Name, err.Error())
		v.Model = model
		v.LatencyMS = duration.Milliseconds()
		return v
	}

	verdict.LatencyMS = duration.Milliseconds()
	p.logCall(operation, usage, duration)
	p.recordSpend(matchup.TournamentID, "matchup", model, usage)
	return verdict
}

// verdictMaxTokens sizes the response budget to the criteria count
func verdictMaxTokens(criteriaCount int) int {
	maxTokens := criteriaCount*150 + 500
	if maxTokens < 1000 {
		maxTokens = 1000
	}
	if maxTokens > 2000 {
		maxTokens = 2000
	}
	return maxTokens
}

// maxCandidateChars bounds how much of each candidate reaches the prompt.
// Premises are expected to be short; the cap only guards against runaway
// generated content.
const maxCandidateChars = 6000

// buildVerdictPrompt builds the judgment prompt for one persona
func buildVerdictPrompt(persona types.Persona, candA, candB *types.Candidate, criteria []types.Criterion) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are judging a head-to-head matchup between two candidate premises.

YOUR PERSONA: %s
%s

Stay in persona: your scores should reflect this perspective, not a neutral average.

CANDIDATE A:
Title: %s
%s

CANDIDATE B:
Title: %s
%s

CRITERIA (score BOTH candidates on each):
`,
		persona.Name, persona.Brief,
		candA.Title, safeTruncate(candA.Content, maxCandidateChars),
		candB.Title, safeTruncate(candB.Content, maxCandidateChars))

	for i, c := range criteria {
		fmt.Fprintf(&b, "[%d] %s (weight %.2f)", i+1, c.Name, c.Weight)
		if c.Guidance != "" {
			fmt.Fprintf(&b, ": %s", c.Guidance)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
TASK:
Score each candidate on each criterion independently. Scores are absolute
quality judgments in [0.0, 1.0], not a ranking: if both candidates are weak
on a criterion, both scores should be low.

OUTPUT FORMAT (JSON only, no markdown):
{
  "scores": [
    {"criterion": "criterion_name", "a": float (0.0-1.0), "b": float (0.0-1.0)}
  ],
  "rationale": "2-3 sentences naming the decisive differences"
}

SCORING GUIDELINES:
- 0.9-1.0: Exceptional; would survive any panel
- 0.7-0.9: Strong; clearly above the typical candidate
- 0.4-0.7: Serviceable; unremarkable
- 0.2-0.4: Weak; visible structural problems
- 0.0-0.2: Broken; fails the criterion outright

IMPORTANT:
1. Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.
2. Include exactly one entry per criterion, using the exact criterion names listed above.
3. Do not invent criteria or omit any.
`)

	return b.String()
}

// safeTruncate truncates a string to maxLen bytes without splitting a
// multi-byte UTF-8 sequence, backing off to a valid boundary.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]
	for i := 0; i < 4 && len(truncated) > 0; i++ {
		if utf8.ValidString(truncated) {
			return truncated + "\n[... truncated ...]"
		}
		truncated = truncated[:len(truncated)-1]
	}
	return ""
}
