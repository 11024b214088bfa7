package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/slushpile/gauntlet/internal/storage"
	"github.com/slushpile/gauntlet/internal/types"
)

func seedTestTournament(t *testing.T, ctx context.Context, s storage.Storage, id string) {
	t.Helper()
	trn := &types.Tournament{
		ID:      id,
		TargetK: 2,
		Phase:   types.PhaseRunning,
		Criteria: []types.Criterion{
			{Name: "originality", Weight: 0.5},
			{Name: "coherence", Weight: 0.5},
		},
		Personas: []types.Persona{
			{Name: "critic", Brief: "Judge structure."},
			{Name: "advocate", Brief: "Judge appeal."},
		},
	}
	if err := s.CreateTournament(ctx, trn, "test"); err != nil {
		t.Fatalf("failed to create tournament %s: %v", id, err)
	}
}

func TestResolveTournament(t *testing.T) {
	ctx := context.Background()
	testStore, err := storage.NewStorage(ctx, &storage.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer testStore.Close()

	originalStore := store
	store = testStore
	defer func() { store = originalStore }()

	// Empty store: nothing to show
	if _, err := resolveTournament(ctx, nil); err == nil {
		t.Error("expected an error with no tournaments recorded")
	} else if !strings.Contains(err.Error(), "no tournaments") {
		t.Errorf("empty-store error = %q, want mention of no tournaments", err)
	}

	seedTestTournament(t, ctx, testStore, "trn-aaaa1111")
	time.Sleep(10 * time.Millisecond)
	seedTestTournament(t, ctx, testStore, "trn-bbbb2222")

	// No argument resolves to the most recent tournament
	trn, err := resolveTournament(ctx, nil)
	if err != nil {
		t.Fatalf("resolveTournament() error = %v", err)
	}
	if trn.ID != "trn-bbbb2222" {
		t.Errorf("latest tournament = %s, want trn-bbbb2222", trn.ID)
	}

	// An explicit id wins over recency
	trn, err = resolveTournament(ctx, []string{"trn-aaaa1111"})
	if err != nil {
		t.Fatalf("resolveTournament(trn-aaaa1111) error = %v", err)
	}
	if trn.ID != "trn-aaaa1111" {
		t.Errorf("resolved = %s, want trn-aaaa1111", trn.ID)
	}

	// Unknown ids are a clear error, not a fallback
	if _, err := resolveTournament(ctx, []string{"trn-missing"}); err == nil {
		t.Error("expected an error for an unknown tournament id")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Errorf("unknown-id error = %q, want mention of not found", err)
	}
}
