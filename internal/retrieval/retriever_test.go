package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/innofolio/innofolio/internal/knowledge"
)

// mockEmbedder implements ai.Embedder for testing
type mockEmbedder struct {
	embedErr    error
	returnEmpty bool
	embedding   []float32
	callCount   int
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: nil}, nil
	}
	embedding := m.embedding
	if embedding == nil {
		embedding = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: embedding}}}, nil
}

// mockSearcher implements Searcher for testing
type mockSearcher struct {
	searchErr error
	results   []knowledge.SearchResult
	callCount int
	lastK     int
}

func (m *mockSearcher) SearchByVector(ctx context.Context, embedding []float32, k int) ([]knowledge.SearchResult, error) {
	m.callCount++
	m.lastK = k
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func result(id, sourceID string, score float64) knowledge.SearchResult {
	return knowledge.SearchResult{
		Passage: knowledge.Passage{ID: id, Content: "content for " + id, SourceID: sourceID},
		Score:   score,
	}
}

func TestRetrieve_FiltersAndDedupes(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{
		results: []knowledge.SearchResult{
			result("p1", "Resume Formatting Guide", 0.92),
			result("p2", "Resume Formatting Guide", 0.85), // duplicate source, lower score
			result("p3", "Behavioral Interview Guide", 0.80),
			result("p4", "Job Search Strategy", 0.70), // exactly at threshold: kept
			result("p5", "Networking for Introverts", 0.55),
		},
	}
	r := New(searcher, &mockEmbedder{}, 0.70, nil)

	results, err := r.Retrieve(context.Background(), "how do I format my resume?", 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	wantIDs := []string{"p1", "p3", "p4"}
	for i, want := range wantIDs {
		if results[i].Passage.ID != want {
			t.Errorf("result[%d] = %q, want %q", i, results[i].Passage.ID, want)
		}
	}

	// Descending similarity preserved.
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results out of order at %d: %v > %v", i, results[i].Score, results[i-1].Score)
		}
	}

	if searcher.lastK != 5 {
		t.Errorf("search k = %d, want 5", searcher.lastK)
	}
}

func TestRetrieve_NoRelevantResults(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{
		results: []knowledge.SearchResult{
			result("p1", "Resume Formatting Guide", 0.40),
			result("p2", "Job Search Strategy", 0.31),
		},
	}
	r := New(searcher, &mockEmbedder{}, 0.70, nil)

	results, err := r.Retrieve(context.Background(), "what is the capital of France?", 5)
	if err != nil {
		t.Fatalf("off-topic query should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestRetrieve_EmbeddingFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		embedErr    error
		returnEmpty bool
	}{
		{name: "provider error", embedErr: errors.New("quota exceeded")},
		{name: "empty response", returnEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			searcher := &mockSearcher{}
			embedder := &mockEmbedder{embedErr: tt.embedErr, returnEmpty: tt.returnEmpty}
			r := New(searcher, embedder, 0.70, nil)

			_, err := r.Retrieve(context.Background(), "query", 5)
			if !errors.Is(err, ErrEmbeddingFailed) {
				t.Errorf("error = %v, want ErrEmbeddingFailed", err)
			}
			if searcher.callCount > 0 {
				t.Error("store should not be queried when embedding fails")
			}
		})
	}
}

func TestRetrieve_StoreUnavailable(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{searchErr: errors.New("connection refused")}
	r := New(searcher, &mockEmbedder{}, 0.70, nil)

	_, err := r.Retrieve(context.Background(), "query", 5)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestRetrieve_InvalidK(t *testing.T) {
	t.Parallel()

	r := New(&mockSearcher{}, &mockEmbedder{}, 0.70, nil)

	for _, k := range []int{0, -3} {
		if _, err := r.Retrieve(context.Background(), "query", k); err == nil {
			t.Errorf("k=%d: expected error, got nil", k)
		}
	}
}

func TestRetrieve_EmbedCache(t *testing.T) {
	t.Parallel()

	embedder := &mockEmbedder{}
	r := New(&mockSearcher{}, embedder, 0.70, nil, WithEmbedCache(16))

	ctx := context.Background()
	for range 3 {
		if _, err := r.Retrieve(ctx, "same question", 5); err != nil {
			t.Fatalf("Retrieve failed: %v", err)
		}
	}

	if embedder.callCount != 1 {
		t.Errorf("embedder called %d times, want 1 (cache hit on repeats)", embedder.callCount)
	}

	// A different query misses the cache.
	if _, err := r.Retrieve(ctx, "different question", 5); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if embedder.callCount != 2 {
		t.Errorf("embedder called %d times, want 2", embedder.callCount)
	}
}

func TestEmbedCache_Bounded(t *testing.T) {
	t.Parallel()

	cache := newEmbedCache(4)
	for i := range 10 {
		cache.put(fmt.Sprintf("query-%d", i), []float32{float32(i)})
	}

	if cache.len() > 4 {
		t.Errorf("cache size %d exceeds capacity 4", cache.len())
	}
}
