package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgxQuerier implements Querier on a pgx connection pool.
// The pool must have pgvector types registered (see app.NewPool).
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier creates a Querier backed by the given pool.
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

const upsertPassageSQL = `
INSERT INTO passages (id, content, source_id, metadata, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
    content   = EXCLUDED.content,
    source_id = EXCLUDED.source_id,
    metadata  = EXCLUDED.metadata,
    embedding = EXCLUDED.embedding`

// UpsertPassage inserts or updates a passage row.
func (q *PgxQuerier) UpsertPassage(ctx context.Context, arg UpsertPassageParams) error {
	_, err := q.pool.Exec(ctx, upsertPassageSQL,
		arg.ID, arg.Content, arg.SourceID, arg.Metadata, arg.Embedding)
	if err != nil {
		return fmt.Errorf("exec upsert: %w", err)
	}
	return nil
}

// searchPassagesSQL orders by cosine distance; the returned score is
// similarity (1 - distance) so higher means more relevant.
const searchPassagesSQL = `
SELECT id, content, source_id, metadata, 1 - (embedding <=> $1) AS score
FROM passages
ORDER BY embedding <=> $1
LIMIT $2`

// SearchPassages runs a cosine-distance nearest-neighbor query.
func (q *PgxQuerier) SearchPassages(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SearchPassagesRow, error) {
	rows, err := q.pool.Query(ctx, searchPassagesSQL, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("query search: %w", err)
	}
	defer rows.Close()

	var results []SearchPassagesRow
	for rows.Next() {
		var row SearchPassagesRow
		if err := rows.Scan(&row.ID, &row.Content, &row.SourceID, &row.Metadata, &row.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return results, nil
}

// CountPassages returns the total passage count.
func (q *PgxQuerier) CountPassages(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, "SELECT count(*) FROM passages").Scan(&count); err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	return count, nil
}
