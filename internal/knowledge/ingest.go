package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beaconhq/beacon/internal/log"
)

// embedBatchSize bounds how many chunk texts go into one embedding call.
const embedBatchSize = 32

// embedConcurrency bounds how many embedding batches may be in flight for
// a single ingestion.
const embedConcurrency = 4

// Splitter cuts source text into overlapping chunks.
type Splitter interface {
	Split(text string) []string
}

// Embedder turns texts into vectors, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestResult reports what a completed ingestion stored.
type IngestResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// Ingestor runs the split, embed, store pipeline. Ingestions of the same
// source are serialised; different sources proceed in parallel.
//
// Ingesting a source twice stores both copies. Deduplication is the
// caller's job, via DeleteBySource before re-ingesting.
type Ingestor struct {
	splitter Splitter
	embedder Embedder
	store    Store
	logger   log.Logger

	mu      sync.Mutex
	sources map[string]*sync.Mutex
}

// NewIngestor creates an ingestion pipeline over the given components.
func NewIngestor(splitter Splitter, embedder Embedder, store Store, logger log.Logger) *Ingestor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger.With("component", "ingestor"),
		sources:  make(map[string]*sync.Mutex),
	}
}

func (in *Ingestor) sourceLock(source string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()

	lock, ok := in.sources[source]
	if !ok {
		lock = &sync.Mutex{}
		in.sources[source] = lock
	}
	return lock
}

// Ingest splits text, embeds every chunk, and stores the result
// atomically. An error anywhere leaves the store untouched.
func (in *Ingestor) Ingest(ctx context.Context, source, text string) (IngestResult, error) {
	lock := in.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	texts := in.splitter.Split(text)
	if len(texts) == 0 {
		return IngestResult{Source: source}, nil
	}

	vectors, err := in.embedAll(ctx, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding source %q: %w", source, err)
	}

	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{
			ID:        uuid.New(),
			Content:   t,
			Source:    source,
			Embedding: vectors[i],
		}
	}

	if err := in.store.Insert(ctx, chunks); err != nil {
		return IngestResult{}, fmt.Errorf("storing source %q: %w", source, err)
	}

	in.logger.Info("ingested source", "source", source, "chunks", len(chunks))
	return IngestResult{Source: source, Chunks: len(chunks)}, nil
}

// embedAll embeds texts in bounded-concurrency batches, keeping vector
// order aligned with text order.
func (in *Ingestor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			batch, err := in.embedder.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
