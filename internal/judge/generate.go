package judge

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/slushpile/gauntlet/internal/types"
)

// generationResponse is the JSON shape the generation call must return
type generationResponse struct {
	Candidates []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"candidates"`
}

// GenerateCandidates produces count candidate premises from a seed prompt.
// The returned candidates carry title and content only; the caller assigns
// batch membership and persists them. A short batch (the model returned
// fewer usable candidates than requested) is a logged warning, not an
// error; an empty batch is an error.
func (p *Panel) GenerateCandidates(ctx context.Context, prompt string, count int) ([]*types.Candidate, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1 (got %d)", count)
	}

	genPrompt := buildGenerationPrompt(prompt, count)

	// ~350 tokens per candidate plus overhead
	maxTokens := count*400 + 500
	if maxTokens > 8000 {
		maxTokens = 8000
	}

	startTime := time.Now()
	var response generationResponse
	var usage Usage

	err := p.retryWithBackoff(ctx, "generate", func(ctx context.Context) error {
		text, u, callErr := p.call(ctx, genPrompt, p.model, maxTokens)
		if callErr != nil {
			return callErr
		}
		usage = u

		parsed := Parse[generationResponse](text, "generation response")
		if !parsed.Success {
			return fmt.Errorf("%w: %s (response: %s)", errMalformedResponse, parsed.Error, truncate(text, 200))
		}
		response = parsed.Data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("candidate generation failed: %w", err)
	}
	duration := time.Since(startTime)

	var candidates []*types.Candidate
	for i, gc := range response.Candidates {
		if gc.Title == "" || gc.Content == "" {
			fmt.Fprintf(os.Stderr, "Warning: skipping generated candidate %d with empty title or content\n", i+1)
			continue
		}
		title := gc.Title
		if len(title) > 500 {
			title = safeTruncate(title, 480)
		}
		candidates = append(candidates, &types.Candidate{
			Title:   title,
			Content: gc.Content,
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("generation returned no usable candidates")
	}
	if len(candidates) != count {
		fmt.Fprintf(os.Stderr, "Warning: generation returned %d candidates, requested %d\n", len(candidates), count)
	}

	p.logCall("generate", usage, duration)
	p.recordSpend("", "generate", p.model, usage)

	return candidates, nil
}

// buildGenerationPrompt builds the batch seeding prompt
func buildGenerationPrompt(prompt string, count int) string {
	return fmt.Sprintf(`You are generating candidate premises for a competitive evaluation pool.

SEED BRIEF:
%s

TASK:
Generate exactly %d distinct candidate premises responding to the brief.
Each candidate needs a short title and a self-contained premise of 2-5
sentences. Candidates compete against each other, so make them genuinely
different: vary the angle, the stakes, and the structure. Do not produce
%d variations of one idea.

OUTPUT FORMAT (JSON only, no markdown):
{
  "candidates": [
    {"title": "Short distinctive title", "content": "The premise text."}
  ]
}

IMPORTANT:
1. Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.
2. Return exactly %d entries in the "candidates" array.
3. Titles must be under 500 characters and unique within the batch.`,
		prompt, count, count, count)
}
