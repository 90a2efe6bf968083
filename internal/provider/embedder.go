// Package provider wraps the external embedding and generation models
// behind small context-aware clients. Every call is rate-limited, bounded
// by a timeout, and retried with exponential backoff; exhausting the
// budget surfaces ErrUnavailable.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/beaconhq/beacon/internal/log"
)

// callTimeout bounds a single provider round trip. A stalled call must not
// hold up unrelated answering or ingestion work, so each attempt gets its
// own deadline instead of inheriting an unbounded parent context.
const callTimeout = 30 * time.Second

// Embedder turns text into fixed-dimension vectors via a Genkit ai.Embedder.
type Embedder struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
	retry    RetryConfig
	logger   log.Logger
}

// NewEmbedder creates an embedding client. limiter may be nil to disable
// rate limiting (tests); logger nil falls back to the default.
func NewEmbedder(embedder ai.Embedder, limiter *rate.Limiter, retry RetryConfig, logger log.Logger) *Embedder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Embedder{
		embedder: embedder,
		limiter:  limiter,
		retry:    retry,
		logger:   logger.With("component", "embedder"),
	}
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one provider round trip, preserving order.
// The whole batch fails together: either every text gets a vector or the
// call returns an error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	var resp *ai.EmbedResponse
	err := do(ctx, e.retry, func() error {
		// Rate limit each attempt, not just the first.
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		var embedErr error
		resp, embedErr = e.embedder.Embed(callCtx, &ai.EmbedRequest{Input: docs})
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned for text %d", i)
		}
		vecs[i] = emb.Embedding
	}

	e.logger.Debug("embedded batch", "texts", len(texts), "dimension", len(vecs[0]))
	return vecs, nil
}
