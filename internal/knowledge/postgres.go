package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/beaconhq/beacon/internal/log"
)

// Querier is the subset of pgxpool.Pool the store needs. Defined on the
// consumer side so tests can substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists chunks in PostgreSQL with pgvector embeddings.
// Safe for concurrent use; all synchronisation lives in the pool.
type PostgresStore struct {
	db        Querier
	dimension int
	logger    log.Logger
}

// NewPostgresStore creates a store bound to the given querier. dimension is
// the vector width of the chunks table; embeddings of any other width are
// rejected with ErrDimensionMismatch before touching the database.
func NewPostgresStore(db Querier, dimension int, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{
		db:        db,
		dimension: dimension,
		logger:    logger.With("component", "knowledge_store"),
	}
}

func (s *PostgresStore) checkDimension(vec []float32) error {
	if len(vec) != s.dimension {
		return fmt.Errorf("%w: got %d, store expects %d", ErrDimensionMismatch, len(vec), s.dimension)
	}
	return nil
}

// Insert stores all chunks in a single transaction.
func (s *PostgresStore) Insert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := s.checkDimension(c.Embedding); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, content, source, embedding) VALUES ($1, $2, $3, $4)`,
			c.ID, c.Content, c.Source, pgvector.NewVector(c.Embedding),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("inserting chunk batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk insert: %w", err)
	}

	s.logger.Debug("inserted chunks", "count", len(chunks), "source", chunks[0].Source)
	return nil
}

// Search runs a cosine similarity query. Results come back ordered by
// descending similarity, with insertion order breaking ties.
func (s *PostgresStore) Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := s.checkDimension(embedding); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content, source, embedding, created_at, 1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 ORDER BY embedding <=> $1, seq
		 LIMIT $2`,
		pgvector.NewVector(embedding), k,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r   SearchResult
			vec pgvector.Vector
		)
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Content, &r.Chunk.Source, &vec, &r.Chunk.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		r.Chunk.Embedding = vec.Slice()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// Delete removes a chunk by ID. Deleting an absent chunk is not an error.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting chunk %s: %w", id, err)
	}
	return nil
}

// DeleteMany removes the given chunks and reports how many rows existed.
func (s *PostgresStore) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBySource removes every chunk ingested from source.
func (s *PostgresStore) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for source %q: %w", source, err)
	}
	s.logger.Debug("deleted source", "source", source, "chunks", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// ListSources summarises stored chunks grouped by source.
func (s *PostgresStore) ListSources(ctx context.Context) ([]SourceSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT source, COUNT(*) FROM chunks GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.Source, &s.Chunks); err != nil {
			return nil, fmt.Errorf("scanning source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading source rows: %w", err)
	}

	return sources, nil
}
