// Package retrieval turns a user question into a ranked, filtered set of
// knowledge passages for prompt grounding.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/innofolio/innofolio/internal/knowledge"
)

// Sentinel errors for retrieval failures. Callers distinguish embedding
// failures from store failures to decide whether to degrade gracefully.
var (
	// ErrEmbeddingFailed indicates the query could not be embedded.
	ErrEmbeddingFailed = errors.New("query embedding failed")

	// ErrUnavailable indicates the knowledge store could not be reached.
	ErrUnavailable = errors.New("knowledge store unavailable")
)

// defaultEmbedTimeout bounds a single query-embedding call.
const defaultEmbedTimeout = 10 * time.Second

// Searcher is the slice of the knowledge store the retriever needs.
type Searcher interface {
	SearchByVector(ctx context.Context, embedding []float32, k int) ([]knowledge.SearchResult, error)
}

// Retriever embeds queries and searches the knowledge store, filtering
// results below the relevance threshold and collapsing duplicate sources.
// Safe for concurrent use.
type Retriever struct {
	store        Searcher
	embedder     ai.Embedder
	logger       *slog.Logger
	minScore     float64
	embedTimeout time.Duration
	cache        *embedCache
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithEmbedTimeout overrides the per-query embedding timeout.
func WithEmbedTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.embedTimeout = d
		}
	}
}

// WithEmbedCache enables an in-memory embedding cache holding up to size
// entries, keyed on exact query text.
func WithEmbedCache(size int) Option {
	return func(r *Retriever) {
		if size > 0 {
			r.cache = newEmbedCache(size)
		}
	}
}

// New creates a Retriever. minScore is the relevance threshold below which
// results are discarded; results scoring exactly minScore are kept.
func New(store Searcher, embedder ai.Embedder, minScore float64, logger *slog.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retriever{
		store:        store,
		embedder:     embedder,
		logger:       logger,
		minScore:     minScore,
		embedTimeout: defaultEmbedTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k passages relevant to the query, ordered by
// descending similarity. A query with no sufficiently relevant passages
// returns an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]knowledge.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("retrieval limit must be positive, got %d", k)
	}

	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := r.store.SearchByVector(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	filtered := r.filter(results)
	r.logger.Debug("retrieval complete",
		"query_length", len(query),
		"raw_results", len(results),
		"filtered_results", len(filtered))
	return filtered, nil
}

// embedQuery computes the query embedding, consulting the cache first.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.cache != nil {
		if embedding, ok := r.cache.get(query); ok {
			return embedding, nil
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	resp, err := r.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrEmbeddingFailed)
	}

	embedding := resp.Embeddings[0].Embedding
	if r.cache != nil {
		r.cache.put(query, embedding)
	}
	return embedding, nil
}

// filter drops results below the relevance threshold and collapses duplicate
// SourceIDs, keeping the highest-scoring passage per source. Input order is
// descending similarity, so first occurrence wins.
func (r *Retriever) filter(results []knowledge.SearchResult) []knowledge.SearchResult {
	filtered := make([]knowledge.SearchResult, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, res := range results {
		if res.Score < r.minScore {
			continue
		}
		if seen[res.Passage.SourceID] {
			continue
		}
		seen[res.Passage.SourceID] = true
		filtered = append(filtered, res)
	}
	return filtered
}
