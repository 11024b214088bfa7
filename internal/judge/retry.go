package judge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

// RetryConfig holds retry configuration for judge API calls
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-request timeout (default: 60s)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          // Enable circuit breaker (default: true)
	FailureThreshold      int           // Failures before opening circuit (default: 5)
	SuccessThreshold      int           // Successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration // How long to keep circuit open (default: 30s)

	// Concurrency and rate limits. MaxConcurrentCalls bounds the aggregate
	// of matchup x persona fan-out; RequestsPerSecond smooths the arrival
	// rate at the external API (0 = unlimited).
	MaxConcurrentCalls int
	RequestsPerSecond  float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    8,
		RequestsPerSecond:     2.0,
	}
}

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests (fail fast)
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// errMalformedResponse marks a response that arrived but could not be
// parsed or failed verdict validation. Judges are stochastic, so a re-ask
// frequently succeeds; the retry loop treats this as transient.
var errMalformedResponse = errors.New("malformed judge response")

// CircuitBreaker prevents hammering a failing judge API. All personas of a
// panel share one breaker: if the provider is down, it is down for everyone.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// NewCircuitBreaker creates a circuit breaker with the given thresholds
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow checks whether a request may proceed. Returns ErrCircuitOpen while
// the circuit is open and the open timeout has not yet elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.setState(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	case CircuitHalfOpen:
		// Allow probes through while half-open
		return nil

	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0

	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.setState(CircuitClosed)
			cb.failureCount = 0
		}
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(CircuitOpen)
		}

	case CircuitHalfOpen:
		// Any failure while probing reopens the circuit
		cb.setState(CircuitOpen)
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns current metrics for monitoring
func (cb *CircuitBreaker) GetMetrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// setState transitions the breaker. Must be called with the lock held.
func (cb *CircuitBreaker) setState(next CircuitState) {
	if cb.state == next {
		return
	}
	fmt.Printf("Judge circuit breaker: %s → %s (failures=%d)\n", cb.state, next, cb.failureCount)
	cb.state = next
	cb.successCount = 0
}

// retryWithBackoff executes one judge operation with bounded retries,
// exponential backoff with jitter, a shared concurrency slot, and the
// panel rate limiter. The returned error is the final state after all
// attempts; callers degrade it to a sentinel verdict, never propagate it
// as a matchup failure.
func (p *Panel) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	if p.concurrencySem != nil {
		if err := p.concurrencySem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire concurrency slot for %s: %w", operation, err)
		}
		defer p.concurrencySem.Release(1)
	}

	var lastErr error
	backoff := p.retry.InitialBackoff

	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if p.circuitBreaker != nil {
			if err := p.circuitBreaker.Allow(); err != nil {
				state, failures, _ := p.circuitBreaker.GetMetrics()
				fmt.Fprintf(os.Stderr, "Judge %s blocked by circuit breaker (state=%s, failures=%d)\n",
					operation, state, failures)
				return fmt.Errorf("%s failed: %w", operation, err)
			}
		}

		// Smooth the arrival rate before spending the attempt timeout
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s failed: context canceled waiting for rate limiter: %w", operation, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.retry.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if p.circuitBreaker != nil {
				p.circuitBreaker.RecordSuccess()
			}
			if attempt > 0 {
				fmt.Printf("Judge %s succeeded after %d retries\n", operation, attempt)
			}
			return nil
		}

		lastErr = err

		// Malformed responses are a model problem, not a provider outage;
		// they retry but never trip the breaker.
		if p.circuitBreaker != nil && isRetriableError(err) && !errors.Is(err, errMalformedResponse) {
			p.circuitBreaker.RecordFailure()
		}

		if !isRetriableError(err) {
			fmt.Fprintf(os.Stderr, "Judge %s failed with non-retriable error: %v\n", operation, err)
			return err
		}

		if attempt == p.retry.MaxRetries {
			break
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: context canceled: %w", operation, ctx.Err())
		}

		sleep := withJitter(backoff)
		fmt.Printf("Judge %s failed (attempt %d/%d), retrying in %v: %v\n",
			operation, attempt+1, p.retry.MaxRetries+1, sleep.Round(time.Millisecond), err)

		select {
		case <-time.After(sleep):
			backoff = time.Duration(float64(backoff) * p.retry.BackoffMultiplier)
			if backoff > p.retry.MaxBackoff {
				backoff = p.retry.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s failed: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, p.retry.MaxRetries+1, lastErr)
}

// withJitter adds up to 25% random jitter so concurrent personas that fail
// together do not retry in lockstep.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// isRetriableError determines if an error is transient
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, errMalformedResponse) {
		return true
	}

	// Timeouts are retriable per the gateway contract
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()

	// Rate limits (429) are retriable
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}

	// Server errors (5xx) are retriable
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	// Network/connection errors are retriable
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "network") {
		return true
	}

	// Other 4xx client errors indicate requests that will not succeed on retry
	if strings.Contains(errStr, "400") || strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") || strings.Contains(errStr, "404") {
		return false
	}

	return false
}
