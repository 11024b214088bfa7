// Package config holds the engine tuning knobs and the YAML tournament
// definition loader. Runtime behavior (concurrency, retries, thresholds)
// comes from Config; what a tournament judges (criteria, personas, target)
// comes from a Definition file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration for the tournament engine
type Config struct {
	// MaxConcurrentMatchups bounds how many matchups of a round are judged
	// in parallel. Matchups beyond the bound queue; they never spawn
	// unbounded API calls.
	// Default: 4, Range: 1-32
	MaxConcurrentMatchups int

	// JudgeMaxRetries is the number of retries per persona call before the
	// verdict degrades to the unavailable sentinel
	// Default: 3, Range: 0-10
	JudgeMaxRetries int

	// JudgeInitialBackoff is the delay before the first retry; subsequent
	// retries double it, with jitter
	// Default: 1s
	JudgeInitialBackoff time.Duration

	// JudgeRequestTimeout is the timeout for a single persona call
	// Default: 60s, Max: 5 minutes
	JudgeRequestTimeout time.Duration

	// JudgeRequestsPerSecond rate-limits outbound judge calls across all
	// matchups. Zero disables the limiter.
	// Default: 2.0
	JudgeRequestsPerSecond float64

	// ScoreEpsilon is the window within which two weighted aggregates are
	// considered tied and the deterministic seed decides the matchup
	// Default: 1e-9
	ScoreEpsilon float64

	// SimilarityThreshold is the minimum cosine similarity against an
	// archived entry for a candidate to be suppressed as a duplicate
	// before round one
	// Default: 0.88, Range: 0.5-1.0
	SimilarityThreshold float64

	// MaxReshuffles bounds bracket reshuffle attempts during rematch
	// avoidance before a rematch is allowed as a last resort
	// Default: 8, Range: 0-64
	MaxReshuffles int

	// ReviewTimeout is how long the checkpoint waits for a human decision
	// before the watchdog forces rejection of all finalists. Zero means
	// wait indefinitely.
	// Default: 0 (no timeout)
	ReviewTimeout time.Duration

	// AutoApprove skips the human checkpoint and approves all finalists.
	// Intended for unattended runs and tests.
	// Default: false
	AutoApprove bool
}

// DefaultConfig returns the default engine configuration
//
// These defaults are chosen to:
// - Respect typical API rate limits (4 concurrent, 2 req/s)
// - Give transient failures room to recover (3 retries, 1s backoff)
// - Keep duplicate suppression conservative (0.88 cosine similarity)
// - Leave the human checkpoint open until a reviewer acts
func DefaultConfig() Config {
	return Config{
		MaxConcurrentMatchups:  4,
		JudgeMaxRetries:        3,
		JudgeInitialBackoff:    time.Second,
		JudgeRequestTimeout:    60 * time.Second,
		JudgeRequestsPerSecond: 2.0,
		ScoreEpsilon:           1e-9,
		SimilarityThreshold:    0.88,
		MaxReshuffles:          8,
		ReviewTimeout:          0,
		AutoApprove:            false,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MaxConcurrentMatchups < 1 {
		return fmt.Errorf("max_concurrent_matchups must be at least 1 (got %d)",
			c.MaxConcurrentMatchups)
	}
	if c.MaxConcurrentMatchups > 32 {
		return fmt.Errorf("max_concurrent_matchups too large (got %d, max 32)",
			c.MaxConcurrentMatchups)
	}
	if c.JudgeMaxRetries < 0 {
		return fmt.Errorf("judge_max_retries cannot be negative (got %d)", c.JudgeMaxRetries)
	}
	if c.JudgeMaxRetries > 10 {
		return fmt.Errorf("judge_max_retries too large (got %d, max 10)", c.JudgeMaxRetries)
	}
	if c.JudgeInitialBackoff <= 0 {
		return fmt.Errorf("judge_initial_backoff must be positive (got %v)", c.JudgeInitialBackoff)
	}
	if c.JudgeRequestTimeout <= 0 {
		return fmt.Errorf("judge_request_timeout must be positive (got %v)", c.JudgeRequestTimeout)
	}
	if c.JudgeRequestTimeout > 5*time.Minute {
		return fmt.Errorf("judge_request_timeout too large (got %v, max 5 minutes)",
			c.JudgeRequestTimeout)
	}
	if c.JudgeRequestsPerSecond < 0 {
		return fmt.Errorf("judge_requests_per_second cannot be negative (got %.2f)",
			c.JudgeRequestsPerSecond)
	}
	if c.ScoreEpsilon < 0 {
		return fmt.Errorf("score_epsilon cannot be negative (got %g)", c.ScoreEpsilon)
	}
	if c.SimilarityThreshold < 0.5 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("similarity_threshold must be between 0.5 and 1.0 (got %.2f)",
			c.SimilarityThreshold)
	}
	if c.MaxReshuffles < 0 {
		return fmt.Errorf("max_reshuffles cannot be negative (got %d)", c.MaxReshuffles)
	}
	if c.MaxReshuffles > 64 {
		return fmt.Errorf("max_reshuffles too large (got %d, max 64)", c.MaxReshuffles)
	}
	if c.ReviewTimeout < 0 {
		return fmt.Errorf("review_timeout cannot be negative (got %v)", c.ReviewTimeout)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Concurrency: %d, Retries: %d, Backoff: %v, Timeout: %v, "+
			"RPS: %.1f, Epsilon: %g, Similarity: %.2f, Reshuffles: %d, "+
			"ReviewTimeout: %v, AutoApprove: %t}",
		c.MaxConcurrentMatchups, c.JudgeMaxRetries, c.JudgeInitialBackoff,
		c.JudgeRequestTimeout, c.JudgeRequestsPerSecond, c.ScoreEpsilon,
		c.SimilarityThreshold, c.MaxReshuffles, c.ReviewTimeout, c.AutoApprove,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults
//
// Environment variables:
//   - GAUNTLET_MAX_CONCURRENT_MATCHUPS: Parallel matchups per round (default: 4)
//   - GAUNTLET_JUDGE_MAX_RETRIES: Retries per persona call (default: 3)
//   - GAUNTLET_JUDGE_BACKOFF_MS: Initial retry backoff in milliseconds (default: 1000)
//   - GAUNTLET_JUDGE_TIMEOUT_SECS: Per-call timeout in seconds (default: 60)
//   - GAUNTLET_JUDGE_RPS: Outbound judge calls per second, 0 to disable (default: 2.0)
//   - GAUNTLET_SCORE_EPSILON: Tie window for weighted aggregates (default: 1e-9)
//   - GAUNTLET_SIMILARITY_THRESHOLD: Duplicate suppression threshold (default: 0.88)
//   - GAUNTLET_MAX_RESHUFFLES: Bracket reshuffle attempts (default: 8)
//   - GAUNTLET_REVIEW_TIMEOUT_SECS: Checkpoint watchdog in seconds, 0 to wait forever (default: 0)
//   - GAUNTLET_AUTO_APPROVE: Skip the human checkpoint (default: false)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvInt("GAUNTLET_MAX_CONCURRENT_MATCHUPS", &cfg.MaxConcurrentMatchups); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("GAUNTLET_JUDGE_MAX_RETRIES", &cfg.JudgeMaxRetries); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("GAUNTLET_JUDGE_BACKOFF_MS", &cfg.JudgeInitialBackoff, time.Millisecond); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("GAUNTLET_JUDGE_TIMEOUT_SECS", &cfg.JudgeRequestTimeout, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("GAUNTLET_JUDGE_RPS", &cfg.JudgeRequestsPerSecond); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("GAUNTLET_SCORE_EPSILON", &cfg.ScoreEpsilon); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("GAUNTLET_SIMILARITY_THRESHOLD", &cfg.SimilarityThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("GAUNTLET_MAX_RESHUFFLES", &cfg.MaxReshuffles); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("GAUNTLET_REVIEW_TIMEOUT_SECS", &cfg.ReviewTimeout, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("GAUNTLET_AUTO_APPROVE", &cfg.AutoApprove); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
// The multiplier converts the numeric value to a duration
// (e.g., for seconds: multiplier = time.Second)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
