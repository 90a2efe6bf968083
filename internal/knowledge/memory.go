package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps chunks in process memory. It mirrors PostgresStore
// semantics, including tie-breaking by insertion order, and backs tests and
// ephemeral runs without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    []Chunk
	dimension int // fixed by the first inserted chunk
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(chunks[0].Embedding)
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %s: %w: got %d, store expects %d",
				c.ID, ErrDimensionMismatch, len(c.Embedding), dim)
		}
	}

	now := time.Now()
	for _, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		s.chunks = append(s.chunks, c)
	}
	s.dimension = dim
	return nil
}

func (s *MemoryStore) Search(_ context.Context, embedding []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store expects %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}

	results := make([]SearchResult, 0, len(s.chunks))
	for _, c := range s.chunks {
		results = append(results, SearchResult{
			Chunk:      c,
			Similarity: cosineSimilarity(embedding, c.Embedding),
		})
	}

	// SliceStable keeps insertion order for equal similarities.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.chunks {
		if c.ID == id {
			s.chunks = append(s.chunks[:i], s.chunks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) DeleteMany(_ context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if _, ok := wanted[c.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return deleted, nil
}

func (s *MemoryStore) DeleteBySource(_ context.Context, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.Source == source {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return deleted, nil
}

func (s *MemoryStore) ListSources(_ context.Context) ([]SourceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	var order []string
	for _, c := range s.chunks {
		if _, seen := counts[c.Source]; !seen {
			order = append(order, c.Source)
		}
		counts[c.Source]++
	}
	sort.Strings(order)

	sources := make([]SourceSummary, 0, len(order))
	for _, src := range order {
		sources = append(sources, SourceSummary{Source: src, Chunks: counts[src]})
	}
	return sources, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// A zero vector on either side yields 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
