// Package knowledge manages the career-advice reference corpus backed by
// PostgreSQL + pgvector.
//
// The store is written to at seed time only; at request time it is a
// read-shared nearest-neighbor index queried by embedding vector. Similarity
// is cosine (score = 1 - cosine distance), matching the vector index metric.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// defaultSearchTimeout bounds a single vector search so a degraded database
// never blocks a chat request indefinitely.
const defaultSearchTimeout = 10 * time.Second

// Querier defines the database operations the store needs. The interface is
// defined here, by the consumer, so tests can substitute an in-memory fake
// and the pgx implementation stays swappable.
type Querier interface {
	// UpsertPassage inserts or updates a passage.
	UpsertPassage(ctx context.Context, arg UpsertPassageParams) error

	// SearchPassages returns the nearest neighbors to the query embedding,
	// ordered by ascending cosine distance.
	SearchPassages(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SearchPassagesRow, error)

	// CountPassages returns the total number of stored passages.
	CountPassages(ctx context.Context) (int64, error)
}

// UpsertPassageParams carries one passage row for insertion.
type UpsertPassageParams struct {
	ID        string
	Content   string
	SourceID  string
	Metadata  []byte
	Embedding pgvector.Vector
}

// SearchPassagesRow is one row returned from a vector search.
type SearchPassagesRow struct {
	ID       string
	Content  string
	SourceID string
	Metadata []byte
	Score    float64
}

// Store manages knowledge passages with vector search.
// Safe for concurrent use; all state is read-only after construction.
type Store struct {
	queries       Querier
	embedder      ai.Embedder
	logger        *slog.Logger
	searchTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithSearchTimeout overrides the per-search timeout.
func WithSearchTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.searchTimeout = d
		}
	}
}

// New creates a Store. The embedder is used only when adding passages
// (seed time); searches receive pre-computed query vectors.
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		queries:       querier,
		embedder:      embedder,
		logger:        logger,
		searchTimeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add embeds a passage's content and upserts it into the store.
func (s *Store) Add(ctx context.Context, p Passage) error {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(p.Content, nil)},
	})
	if err != nil {
		return fmt.Errorf("embedding passage %q: %w", p.ID, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return fmt.Errorf("empty embedding returned for passage %q", p.ID)
	}

	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", p.ID, err)
	}

	err = s.queries.UpsertPassage(ctx, UpsertPassageParams{
		ID:        p.ID,
		Content:   p.Content,
		SourceID:  p.SourceID,
		Metadata:  metadataJSON,
		Embedding: pgvector.NewVector(resp.Embeddings[0].Embedding),
	})
	if err != nil {
		return fmt.Errorf("upserting passage %q: %w", p.ID, err)
	}

	s.logger.Debug("added passage", "id", p.ID, "source_id", p.SourceID, "content_length", len(p.Content))
	return nil
}

// SearchByVector returns the k nearest passages to the query embedding,
// ordered by descending similarity. An empty store yields an empty slice,
// not an error.
func (s *Store) SearchByVector(ctx context.Context, embedding []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	rows, err := s.queries.SearchPassages(queryCtx, pgvector.NewVector(embedding), int32(k)) // #nosec G115 -- k validated above, bounded by config
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}

	return s.rowsToResults(rows), nil
}

// Count returns the number of stored passages.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.queries.CountPassages(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return count, nil
}

// rowsToResults converts search rows to the business model, preserving the
// database's descending-similarity order.
func (s *Store) rowsToResults(rows []SearchPassagesRow) []SearchResult {
	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				s.logger.Warn("failed to parse passage metadata", "passage_id", row.ID, "error", err)
				metadata = nil
			}
		}
		results = append(results, SearchResult{
			Passage: Passage{
				ID:       row.ID,
				Content:  row.Content,
				SourceID: row.SourceID,
				Metadata: metadata,
			},
			Score: row.Score,
		})
	}
	return results
}
