// Package judge wraps the LLM judge capability behind a uniform gateway:
// per-persona fan-out, retry with backoff and jitter, circuit breaking,
// rate limiting, and token spend accounting. The gateway never mutates
// tournament state; it turns prompts into Verdicts and nothing else.
package judge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/slushpile/gauntlet/internal/types"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gauntlet uses a tiered model strategy:
// - Sonnet 4.5: verdict and generation calls (comparative reasoning)
// - Haiku: cheap option for persona Model overrides in the definition file
//
// Environment overrides:
// - GAUNTLET_MODEL_DEFAULT: override the default model
const (
	// ModelSonnet is the high-end model for comparative judgment
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model, selectable per persona
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// Pricing in USD per million tokens, used for the spend ledger estimate.
const (
	sonnetInputPerM  = 3.00
	sonnetOutputPerM = 15.00
	haikuInputPerM   = 0.80
	haikuOutputPerM  = 4.00
)

// GetDefaultModel returns the default model, checking GAUNTLET_MODEL_DEFAULT first
func GetDefaultModel() string {
	if model := os.Getenv("GAUNTLET_MODEL_DEFAULT"); model != "" {
		return model
	}
	return ModelSonnet
}

// modelPricing returns the per-million-token USD rates for a model.
// Unknown models are billed at Sonnet rates, which overestimates rather
// than underestimates.
func modelPricing(model string) (inputPerM, outputPerM float64) {
	if strings.Contains(model, "haiku") {
		return haikuInputPerM, haikuOutputPerM
	}
	return sonnetInputPerM, sonnetOutputPerM
}

// Usage reports token consumption for a single judge call
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// CallFunc issues one prompt to the judge capability and returns the raw
// response text. The production implementation calls the Anthropic API;
// tests inject fakes so no test ever touches the network.
type CallFunc func(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error)

// SpendRecorder receives token usage for completed judge calls. The sqlite
// store satisfies this directly; a nil recorder disables spend tracking.
type SpendRecorder interface {
	RecordSpend(ctx context.Context, tournamentID, operation string, spend types.Spend) error
}

// Panel is the judge gateway. One Panel serves a whole run: it owns the
// API client, the retry policy, the circuit breaker shared across all
// personas, and the concurrency bound on in-flight calls.
type Panel struct {
	client         *anthropic.Client
	call           CallFunc
	model          string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
	spend          SpendRecorder
}

// Config holds panel configuration
type Config struct {
	APIKey string        // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model  string        // Default model (default: claude-sonnet-4-5-20250929)
	Retry  RetryConfig   // Retry configuration (uses defaults if not specified)
	Spend  SpendRecorder // Optional spend recorder for the token ledger
	Call   CallFunc      // Optional call override; tests inject fakes here
}

// NewPanel creates a judge panel gateway
func NewPanel(cfg *Config) (*Panel, error) {
	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	p := &Panel{
		call:  cfg.Call,
		model: model,
		retry: retry,
		spend: cfg.Spend,
	}

	if p.call == nil {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
			if apiKey == "" {
				return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
			}
		}
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		p.client = &client
		p.call = p.anthropicCall
	}

	if retry.CircuitBreakerEnabled {
		p.circuitBreaker = NewCircuitBreaker(
			retry.FailureThreshold,
			retry.SuccessThreshold,
			retry.OpenTimeout,
		)
	}

	if retry.MaxConcurrentCalls > 0 {
		p.concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	if retry.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(retry.RequestsPerSecond), 1)
	}

	return p, nil
}

// HealthCheck performs a pre-flight check of the panel's health.
// Returns an error if the circuit breaker is open.
func (p *Panel) HealthCheck() error {
	if p.circuitBreaker != nil {
		state, failures, _ := p.circuitBreaker.GetMetrics()
		switch state {
		case CircuitOpen:
			return fmt.Errorf("judge panel unavailable: %w (failures=%d, retry in %v)",
				ErrCircuitOpen, failures, p.retry.OpenTimeout)
		case CircuitHalfOpen:
			fmt.Printf("Judge panel in half-open state (probing for recovery)\n")
		case CircuitClosed:
		}
	}
	return nil
}

// anthropicCall is the production CallFunc backed by the Anthropic API
func (p *Panel) anthropicCall(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", Usage{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return text.String(), Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// recordSpend writes one call's usage to the spend ledger. Ledger failures
// are logged and swallowed; accounting must never fail a judge call. The
// write uses a background context so spend from calls that completed just
// before a cancellation is still recorded.
func (p *Panel) recordSpend(tournamentID, operation, model string, usage Usage) {
	if p.spend == nil {
		return
	}
	inPerM, outPerM := modelPricing(model)
	entry := types.Spend{
		Calls:        1,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      float64(usage.InputTokens)*inPerM/1_000_000 + float64(usage.OutputTokens)*outPerM/1_000_000,
	}
	if err := p.spend.RecordSpend(context.Background(), tournamentID, operation, entry); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record judge spend: %v\n", err)
	}
}

// logCall prints the per-call usage line
func (p *Panel) logCall(operation string, usage Usage, duration time.Duration) {
	fmt.Printf("Judge %s call: input=%d tokens, output=%d tokens, duration=%v\n",
		operation, usage.InputTokens, usage.OutputTokens, duration)
}
