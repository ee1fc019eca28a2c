package knowledge

import "time"

// Passage is a unit of career-advice reference content stored in the
// knowledge base. SourceID identifies the originating document and is what
// chat responses cite back to callers.
type Passage struct {
	ID        string            // Unique identifier
	Content   string            // Passage text
	SourceID  string            // Citation identifier (document title)
	Metadata  map[string]string // Optional metadata (category, subcategory)
	CreatedAt time.Time
}

// SearchResult is a single nearest-neighbor hit with its similarity score.
type SearchResult struct {
	Passage Passage
	Score   float64 // Cosine similarity (0-1); higher is more relevant
}
