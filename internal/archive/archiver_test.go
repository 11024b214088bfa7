package archive

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slushpile/gauntlet/internal/storage"
	"github.com/slushpile/gauntlet/internal/types"
)

// fakeEmbedder returns canned vectors keyed by embedding text, so tests
// control exactly where each candidate lands in vector space.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := f.vectors[text]
		if !ok {
			vec = []float32{1, 0}
		}
		out[i] = append([]float32(nil), vec...)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed-v1" }

func (f *fakeEmbedder) set(c *types.Candidate, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vectors == nil {
		f.vectors = map[string][]float32{}
	}
	f.vectors[embeddingText(c)] = vec
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(context.Background(), &storage.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCandidate(id, title, content string) *types.Candidate {
	return &types.Candidate{
		ID:      id,
		Title:   title,
		Content: content,
		Status:  types.StatusActive,
	}
}

func TestArchiveStoresEmbedding(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &fakeEmbedder{}

	cand := newCandidate("cand-1", "The Long Heist", "A crew of retired safecrackers takes one last job.")
	embedder.set(cand, []float32{0.1, 0.9})

	arch := New(store, embedder)
	entry, err := arch.Archive(ctx, cand, "trn-0001", 2, types.ArchiveEliminated)
	require.NoError(t, err)

	assert.NotZero(t, entry.ID)
	assert.Equal(t, "cand-1", entry.CandidateID)
	assert.Equal(t, "trn-0001", entry.TournamentID)
	assert.Equal(t, cand.Fingerprint(), entry.ContentHash)
	assert.Equal(t, []float32{0.1, 0.9}, entry.Embedding)
	assert.Equal(t, "fake-embed-v1", entry.EmbeddingModel)

	// Stored row matches what Archive returned
	stored, err := store.GetArchiveEntryByCandidate(ctx, "cand-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, entry.ID, stored.ID)
	assert.Equal(t, []float32{0.1, 0.9}, stored.Embedding)
	assert.Equal(t, 2, stored.Round)
	assert.Equal(t, types.ArchiveEliminated, stored.Reason)
}

func TestArchiveIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	arch := New(store, &fakeEmbedder{})

	cand := newCandidate("cand-2", "Echo Chamber", "A podcast host discovers her callers are all the same person.")

	first, err := arch.Archive(ctx, cand, "trn-0001", 1, types.ArchiveEliminated)
	require.NoError(t, err)

	// Re-archiving with a different reason returns the original record
	second, err := arch.Archive(ctx, cand, "trn-0002", 3, types.ArchiveHumanRejected)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "trn-0001", second.TournamentID)
	assert.Equal(t, 1, second.Round)
	assert.Equal(t, types.ArchiveEliminated, second.Reason)

	entries, err := store.ListArchiveEntries(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArchiveWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	arch := New(store, nil)

	cand := newCandidate("cand-3", "Glass Harbor", "A lighthouse keeper finds a message meant for someone long dead.")
	entry, err := arch.Archive(ctx, cand, "trn-0001", 1, types.ArchiveEliminated)
	require.NoError(t, err)

	assert.Empty(t, entry.Embedding)
	assert.Empty(t, entry.EmbeddingModel)
	assert.Equal(t, cand.Fingerprint(), entry.ContentHash)
}

func TestArchiveEmbeddingFailureDegradesToHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	arch := New(store, embedder)

	cand := newCandidate("cand-4", "Static", "A radio astronomer hears her own voice in a signal from deep space.")
	entry, err := arch.Archive(ctx, cand, "trn-0001", 1, types.ArchiveEliminated)
	require.NoError(t, err)

	// Entry persisted without a vector; the archive row is never sacrificed
	// to an embedding outage
	assert.NotZero(t, entry.ID)
	assert.Empty(t, entry.Embedding)
	assert.Empty(t, entry.EmbeddingModel)

	stored, err := store.GetArchiveEntryByCandidate(ctx, "cand-4")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.Embedding)
}

func TestFindSimilarExactHashFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &fakeEmbedder{}
	arch := New(store, embedder)

	archived := newCandidate("cand-5", "The Cartographer", "A mapmaker charts a city that does not exist yet.")
	embedder.set(archived, []float32{1, 0})
	_, err := arch.Archive(ctx, archived, "trn-0001", 1, types.ArchiveEliminated)
	require.NoError(t, err)

	// Same content under a new id; whitespace and case differences do not
	// defeat the fingerprint
	probe := newCandidate("cand-6", "the  cartographer", "A mapmaker charts a city that does not exist  yet.")
	embedder.set(probe, []float32{1, 0})

	matches, err := arch.FindSimilar(ctx, probe, 0.88)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	assert.Equal(t, "cand-5", matches[0].Entry.CandidateID)
	assert.Equal(t, 1.0, matches[0].Similarity)
	// The exact match is not also reported as a vector match
	assert.Len(t, matches, 1)
}

func TestFindSimilarRanksByCosine(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &fakeEmbedder{}
	arch := New(store, embedder)

	near := newCandidate("cand-7", "Night Market", "A vendor sells memories by the ounce.")
	twin := newCandidate("cand-8", "Midnight Market", "A merchant sells memories by the gram.")
	far := newCandidate("cand-9", "Deep Freeze", "An arctic research station loses a day of records.")

	embedder.set(near, []float32{1, 1})  // cos vs probe = 1/sqrt(2)
	embedder.set(twin, []float32{2, 0})  // cos vs probe = 1.0
	embedder.set(far, []float32{0, 1})   // cos vs probe = 0

	for _, c := range []*types.Candidate{near, twin, far} {
		_, err := arch.Archive(ctx, c, "trn-0001", 1, types.ArchiveEliminated)
		require.NoError(t, err)
	}

	probe := newCandidate("cand-10", "Evening Market", "A stall sells memories by the pound.")
	embedder.set(probe, []float32{1, 0})

	matches, err := arch.FindSimilar(ctx, probe, 0.7)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "cand-8", matches[0].Entry.CandidateID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, "cand-7", matches[1].Entry.CandidateID)
	assert.InDelta(t, 0.70710678, matches[1].Similarity, 1e-6)

	// A tighter threshold drops the weaker match
	matches, err = arch.FindSimilar(ctx, probe, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "cand-8", matches[0].Entry.CandidateID)
}

func TestFindSimilarHashOnlyWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Archive with vectors available
	embedder := &fakeEmbedder{}
	seeded := New(store, embedder)
	archived := newCandidate("cand-11", "Driftwood", "A beachcomber assembles a boat from wrecks that share no origin.")
	embedder.set(archived, []float32{1, 0})
	_, err := seeded.Archive(ctx, archived, "trn-0001", 1, types.ArchiveEliminated)
	require.NoError(t, err)

	// Probe without an embedder: exact duplicates still match, near
	// duplicates do not
	arch := New(store, nil)

	exact := newCandidate("cand-12", "Driftwood", "A beachcomber assembles a boat from wrecks that share no origin.")
	matches, err := arch.FindSimilar(ctx, exact, 0.88)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "cand-11", matches[0].Entry.CandidateID)
	assert.Equal(t, 1.0, matches[0].Similarity)

	paraphrase := newCandidate("cand-13", "Salvage", "A scavenger builds a vessel from unrelated shipwrecks.")
	matches, err = arch.FindSimilar(ctx, paraphrase, 0.88)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindSimilarEmbedFailureFallsBackToHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	embedder := &fakeEmbedder{}
	seeded := New(store, embedder)
	archived := newCandidate("cand-14", "Understudy", "An actor's understudy starts receiving the actor's memories.")
	embedder.set(archived, []float32{1, 0})
	_, err := seeded.Archive(ctx, archived, "trn-0001", 1, types.ArchiveEliminated)
	require.NoError(t, err)

	// Probe-time embedding outage degrades to hash matching, not an error
	broken := New(store, &fakeEmbedder{err: errors.New("embedding service down")})
	exact := newCandidate("cand-15", "Understudy", "An actor's understudy starts receiving the actor's memories.")
	matches, err := broken.FindSimilar(ctx, exact, 0.88)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "cand-14", matches[0].Entry.CandidateID)
}

func TestFindSimilarSkipsEntriesWithoutVectors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Archived during an outage: hash-only row
	hashOnly := New(store, nil)
	archived := newCandidate("cand-16", "Cold Open", "A news anchor reads tomorrow's headlines by mistake.")
	_, err := hashOnly.Archive(ctx, archived, "trn-0001", 1, types.ArchiveEliminated)
	require.NoError(t, err)

	embedder := &fakeEmbedder{}
	arch := New(store, embedder)
	probe := newCandidate("cand-17", "Warm Open", "A weather anchor reads next week's forecast by mistake.")
	embedder.set(probe, []float32{1, 0})

	matches, err := arch.FindSimilar(ctx, probe, 0.5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindSimilarThresholdValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	arch := New(store, nil)
	cand := newCandidate("cand-18", "Probe", "Threshold bounds")

	_, err := arch.FindSimilar(ctx, cand, 0)
	assert.Error(t, err)

	_, err = arch.FindSimilar(ctx, cand, 1.5)
	assert.Error(t, err)

	_, err = arch.FindSimilar(ctx, nil, 0.9)
	assert.Error(t, err)
}

func TestHasEmbeddings(t *testing.T) {
	store := newTestStore(t)
	assert.False(t, New(store, nil).HasEmbeddings())
	assert.True(t, New(store, &fakeEmbedder{}).HasEmbeddings())
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"scale invariant", []float32{1, 0}, []float32{5, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"45 degrees", []float32{1, 0}, []float32{1, 1}, 0.70710678},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}
