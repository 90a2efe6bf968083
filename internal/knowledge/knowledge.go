// Package knowledge stores text chunks with their embedding vectors and
// retrieves the most similar ones by cosine distance. Two Store
// implementations exist: PostgresStore backed by pgvector, and MemoryStore
// for tests and ephemeral runs.
package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDimensionMismatch indicates a chunk carried an embedding whose
// dimension differs from the store's configured dimension. Such chunks are
// rejected before any write happens; the error is never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is a stored piece of source text together with its embedding.
type Chunk struct {
	ID        uuid.UUID
	Content   string
	Source    string
	Embedding []float32
	CreatedAt time.Time
}

// SearchResult pairs a chunk with its cosine similarity to the query
// vector, in [-1, 1] with 1 meaning identical direction.
type SearchResult struct {
	Chunk      Chunk
	Similarity float64
}

// SourceSummary reports how many chunks a single source contributed.
type SourceSummary struct {
	Source string `json:"source"`
	Chunks int64  `json:"chunks"`
}

// Store is the persistence boundary for chunks. Implementations must be
// safe for concurrent use.
//
// Delete operations are idempotent: removing an absent chunk or source is
// not an error, the reported count is simply lower.
type Store interface {
	// Insert stores all chunks atomically. Either every chunk is
	// persisted or none are.
	Insert(ctx context.Context, chunks []Chunk) error

	// Search returns up to k chunks ordered by descending cosine
	// similarity to the query vector. Ties rank older chunks first.
	Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error)

	// Delete removes a single chunk by ID.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteMany removes the given chunks and reports how many existed.
	DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error)

	// DeleteBySource removes every chunk ingested from source and
	// reports how many were removed.
	DeleteBySource(ctx context.Context, source string) (int64, error)

	// ListSources summarises stored chunks grouped by source.
	ListSources(ctx context.Context) ([]SourceSummary, error)
}
