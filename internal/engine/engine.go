// Package engine implements retrieval-augmented answering: embed the
// query, fetch the most similar chunks, render a prompt with instructions
// and conversation history, and generate the answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/beaconhq/beacon/internal/knowledge"
	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/memory"
)

// ErrEmptyQuery rejects queries that are empty after trimming whitespace.
var ErrEmptyQuery = errors.New("query must not be empty")

// TopK is how many chunks retrieval feeds into the prompt.
const TopK = 4

// Embedder embeds a single query text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Generator completes a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher retrieves the chunks most similar to a query vector.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]knowledge.SearchResult, error)
}

// Instructions resolves the instruction text for a channel.
type Instructions interface {
	Instructions(ctx context.Context, channel string) (string, error)
}

// Engine answers queries against the knowledge store.
// Safe for concurrent use; no state is held across calls.
type Engine struct {
	embedder     Embedder
	generator    Generator
	searcher     Searcher
	instructions Instructions
	logger       log.Logger
}

// New creates an answering engine over the given collaborators.
func New(embedder Embedder, generator Generator, searcher Searcher, instructions Instructions, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		embedder:     embedder,
		generator:    generator,
		searcher:     searcher,
		instructions: instructions,
		logger:       logger.With("component", "engine"),
	}
}

// Answer runs the full pipeline for one query on the given channel and
// returns the answer together with the updated memory. The returned memory
// has the new user/assistant pair appended; on any error the input memory
// is returned unchanged.
func (e *Engine) Answer(ctx context.Context, query string, mem memory.Buffer, channel string) (string, memory.Buffer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", mem, ErrEmptyQuery
	}

	vec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return "", mem, fmt.Errorf("embedding query: %w", err)
	}

	results, err := e.searcher.Search(ctx, vec, TopK)
	if err != nil {
		return "", mem, fmt.Errorf("retrieving context: %w", err)
	}

	instructions, err := e.instructions.Instructions(ctx, channel)
	if err != nil {
		return "", mem, fmt.Errorf("resolving instructions: %w", err)
	}

	prompt := buildPrompt(instructions, results, mem, query)

	answer, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return "", mem, fmt.Errorf("generating answer: %w", err)
	}

	e.logger.Debug("answered query",
		"channel", channel,
		"retrieved", len(results),
		"history_turns", mem.Len(),
	)

	// Memory mutates only after a successful generation.
	return answer, mem.Append(query, answer), nil
}

// buildPrompt renders the fixed answering template. Retrieved chunks join
// with blank lines; history renders as alternating Human/AI lines.
func buildPrompt(instructions string, results []knowledge.SearchResult, mem memory.Buffer, query string) string {
	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Content
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString(" Use the following pieces of context to answer the question at the end. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n")
	b.WriteString("Context: ")
	b.WriteString(strings.Join(contexts, "\n\n"))
	b.WriteString("\n\nPrevious conversation:\n")
	b.WriteString(mem.Render())
	b.WriteString("\n\nHuman: ")
	b.WriteString(query)
	b.WriteString("\nAI: ")
	return b.String()
}
