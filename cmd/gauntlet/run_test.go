package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/slushpile/gauntlet/internal/archive"
	"github.com/slushpile/gauntlet/internal/config"
	"github.com/slushpile/gauntlet/internal/control"
	"github.com/slushpile/gauntlet/internal/judge"
	"github.com/slushpile/gauntlet/internal/storage"
	"github.com/slushpile/gauntlet/internal/tournament"
	"github.com/slushpile/gauntlet/internal/types"
)

func TestRetryFromEngine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.JudgeMaxRetries = 7
	cfg.JudgeInitialBackoff = 250 * time.Millisecond
	cfg.JudgeRequestTimeout = 45 * time.Second
	cfg.JudgeRequestsPerSecond = 0.5

	retry := retryFromEngine(cfg)

	if retry.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", retry.MaxRetries)
	}
	if retry.InitialBackoff != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 250ms", retry.InitialBackoff)
	}
	if retry.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", retry.Timeout)
	}
	if retry.RequestsPerSecond != 0.5 {
		t.Errorf("RequestsPerSecond = %v, want 0.5", retry.RequestsPerSecond)
	}

	// Knobs the environment does not expose keep the panel defaults
	defaults := judge.DefaultRetryConfig()
	if retry.CircuitBreakerEnabled != defaults.CircuitBreakerEnabled {
		t.Errorf("CircuitBreakerEnabled = %v, want default %v", retry.CircuitBreakerEnabled, defaults.CircuitBreakerEnabled)
	}
	if retry.MaxConcurrentCalls != defaults.MaxConcurrentCalls {
		t.Errorf("MaxConcurrentCalls = %d, want default %d", retry.MaxConcurrentCalls, defaults.MaxConcurrentCalls)
	}
	if retry.BackoffMultiplier != defaults.BackoffMultiplier {
		t.Errorf("BackoffMultiplier = %v, want default %v", retry.BackoffMultiplier, defaults.BackoffMultiplier)
	}
}

func TestReviewTimeoutLabel(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		expected string
	}{
		{
			name:     "auto-approve wins over timeout",
			cfg:      config.Config{AutoApprove: true, ReviewTimeout: time.Hour},
			expected: "auto-approve",
		},
		{
			name:     "zero waits forever",
			cfg:      config.Config{},
			expected: "none (waits for a reviewer)",
		},
		{
			name:     "duration rendered",
			cfg:      config.Config{ReviewTimeout: 30 * time.Minute},
			expected: "30m0s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := reviewTimeoutLabel(tt.cfg)
			if result != tt.expected {
				t.Errorf("reviewTimeoutLabel() = %q, want %q", result, tt.expected)
			}
		})
	}
}

// nopJudge satisfies tournament.Judge without touching the network.
type nopJudge struct{}

func (nopJudge) Evaluate(_ context.Context, _ *types.Matchup, _, _ *types.Candidate, _ []types.Criterion, personas []types.Persona) []types.Verdict {
	verdicts := make([]types.Verdict, len(personas))
	for i, p := range personas {
		verdicts[i] = types.Verdict{Persona: p.Name, Unavailable: true}
	}
	return verdicts
}

func TestControlHandler(t *testing.T) {
	ctx := context.Background()
	testStore, err := storage.NewStorage(ctx, &storage.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer testStore.Close()

	ctrl, err := tournament.New(&tournament.Config{
		Store:    testStore,
		Judge:    nopJudge{},
		Archiver: archive.New(testStore, nil),
	})
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	handler := controlHandler(ctrl)

	// Status works in every phase; idle means no checkpoint
	data, err := handler(control.Command{Type: control.CmdStatus})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if reviewing, ok := data["reviewing"].(bool); !ok || reviewing {
		t.Errorf("status data = %v, want reviewing=false", data)
	}
	if _, present := data["pending"]; present {
		t.Error("idle status should not carry a pending list")
	}

	// Review commands error until a checkpoint is open
	if _, err := handler(control.Command{Type: control.CmdApprove, Actor: "tester"}); err == nil {
		t.Error("approve with no checkpoint should fail")
	} else if !strings.Contains(err.Error(), "no checkpoint") {
		t.Errorf("approve error = %q, want mention of missing checkpoint", err)
	}

	if _, err := handler(control.Command{Type: control.CmdReject, CandidateID: "cand-1", Actor: "tester"}); err == nil {
		t.Error("reject with no checkpoint should fail")
	}

	// Abort with no run in flight is also an error
	if _, err := handler(control.Command{Type: control.CmdAbort, Actor: "tester"}); err == nil {
		t.Error("abort with no run should fail")
	} else if !strings.Contains(err.Error(), "no tournament is running") {
		t.Errorf("abort error = %q, want mention of no running tournament", err)
	}

	if _, err := handler(control.Command{Type: "upgrade"}); err == nil {
		t.Error("unknown command type should fail")
	} else if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unknown type error = %q, want mention of unknown command", err)
	}
}
