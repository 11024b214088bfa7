// Package archive maintains the append-only record of candidates that left
// a tournament (eliminated, human-rejected, or suppressed as duplicates)
// and answers similarity queries against it. The archive is what keeps a
// rejected premise from being re-litigated: before round one the controller
// probes every entrant against it and drops near-duplicates without
// spending a judge call.
package archive

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/slushpile/gauntlet/internal/storage"
	"github.com/slushpile/gauntlet/internal/types"
)

// maxScanEntries caps how many archive rows a similarity probe loads.
// Entries come back newest first, and recent rejections are the ones a
// fresh batch is most likely to collide with.
const maxScanEntries = 2048

// Archiver is the sole writer of archive entries and the query surface for
// duplicate suppression.
type Archiver struct {
	store    storage.Storage
	embedder Embedder // nil means exact-hash matching only
}

// New creates an archiver. A nil embedder degrades duplicate detection to
// exact content-hash matching; near-duplicate suppression needs vectors.
func New(store storage.Storage, embedder Embedder) *Archiver {
	if embedder == nil {
		log.Printf("Warning: no embeddings provider configured (set COHERE_API_KEY); archive matching is exact-hash only")
	}
	return &Archiver{store: store, embedder: embedder}
}

// HasEmbeddings reports whether near-duplicate detection is active.
func (a *Archiver) HasEmbeddings() bool {
	return a.embedder != nil
}

// Archive appends a candidate to the archive. Idempotent on candidate id:
// re-archiving returns the original entry unchanged. An embedding failure
// degrades to a hash-only entry rather than losing the archive row, since
// a missing row would let the candidate be re-litigated later.
func (a *Archiver) Archive(ctx context.Context, candidate *types.Candidate, tournamentID string, round int, reason types.ArchiveReason) (*types.ArchiveEntry, error) {
	if candidate == nil {
		return nil, fmt.Errorf("cannot archive nil candidate")
	}

	entry := &types.ArchiveEntry{
		CandidateID:  candidate.ID,
		TournamentID: tournamentID,
		Title:        candidate.Title,
		ContentHash:  candidate.Fingerprint(),
		Round:        round,
		Reason:       reason,
	}

	if a.embedder != nil {
		vectors, err := a.embedder.EmbedTexts(ctx, []string{embeddingText(candidate)})
		if err != nil {
			log.Printf("Warning: embedding failed for %s, archiving hash-only: %v", candidate.ID, err)
		} else if len(vectors) == 1 {
			entry.Embedding = vectors[0]
			entry.EmbeddingModel = a.embedder.ModelName()
		}
	}

	if err := a.store.AppendArchiveEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to archive candidate %s: %w", candidate.ID, err)
	}
	return entry, nil
}

// FindSimilar returns archived entries whose similarity to the candidate
// meets threshold, best match first. An exact content-hash match always
// ranks first with similarity 1.0. Callers that only need an admission
// decision use the first element.
func (a *Archiver) FindSimilar(ctx context.Context, candidate *types.Candidate, threshold float64) ([]types.SimilarMatch, error) {
	if candidate == nil {
		return nil, fmt.Errorf("cannot probe nil candidate")
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1] (got %.2f)", threshold)
	}

	var matches []types.SimilarMatch

	exact, err := a.store.GetArchiveEntryByHash(ctx, candidate.Fingerprint())
	if err != nil {
		return nil, fmt.Errorf("archive hash lookup failed: %w", err)
	}
	if exact != nil {
		matches = append(matches, types.SimilarMatch{Entry: exact, Similarity: 1.0})
	}

	if a.embedder == nil {
		return matches, nil
	}

	vectors, err := a.embedder.EmbedTexts(ctx, []string{embeddingText(candidate)})
	if err != nil {
		// The hash result is still useful; near-duplicate detection is
		// degraded for this probe, not fatal.
		log.Printf("Warning: embedding failed for %s, similarity probe is hash-only: %v", candidate.ID, err)
		return matches, nil
	}
	if len(vectors) != 1 {
		return matches, nil
	}
	probe := vectors[0]

	entries, err := a.store.ListArchiveEntries(ctx, maxScanEntries)
	if err != nil {
		return nil, fmt.Errorf("archive scan failed: %w", err)
	}

	for _, entry := range entries {
		if exact != nil && entry.ID == exact.ID {
			continue
		}
		if len(entry.Embedding) == 0 {
			continue
		}
		sim := Cosine(probe, entry.Embedding)
		if sim >= threshold {
			matches = append(matches, types.SimilarMatch{Entry: entry, Similarity: sim})
		}
	}

	// Stable sort keeps the exact match first when a vector also scores 1.0
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// embeddingText is the canonical text embedded for a candidate. Archive
// writes and similarity probes must agree on it or self-similarity drops
// below 1.
func embeddingText(c *types.Candidate) string {
	return strings.TrimSpace(c.Title + "\n\n" + c.Content)
}
