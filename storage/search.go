package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/athenadocs/athena/document"
)

// SearchChunks returns the limit chunks closest to the query vector by
// cosine distance, optionally restricted to documents whose title contains
// titleFilter, ordered ascending by distance.
func (s *Store) SearchChunks(ctx context.Context, query pgvector.Vector,
	titleFilter string, limit int) ([]document.ScoredChunk, error) {

	sql := `
		SELECT c.document_id, d.title, d.created_at, c.chunk_index, c.content,
		       c.embedding_vector <=> $1 AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding_vector IS NOT NULL`
	args := []any{query}

	if titleFilter != "" {
		sql += fmt.Sprintf(" AND d.title ILIKE '%%' || $%d || '%%'", len(args)+1)
		args = append(args, titleFilter)
	}

	sql += fmt.Sprintf(" ORDER BY distance LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return s.queryScoredChunks(ctx, sql, args)
}

// CandidateChunks returns the k nearest chunks for retrieval-augmented chat,
// optionally scoped to a single document.
func (s *Store) CandidateChunks(ctx context.Context, query pgvector.Vector,
	k int, documentID string) ([]document.ScoredChunk, error) {

	sql := `
		SELECT c.document_id, d.title, d.created_at, c.chunk_index, c.content,
		       c.embedding_vector <=> $1 AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding_vector IS NOT NULL`
	args := []any{query}

	if documentID != "" {
		sql += fmt.Sprintf(" AND c.document_id = $%d", len(args)+1)
		args = append(args, documentID)
	}

	sql += fmt.Sprintf(" ORDER BY distance LIMIT $%d", len(args)+1)
	args = append(args, k)

	return s.queryScoredChunks(ctx, sql, args)
}

func (s *Store) queryScoredChunks(ctx context.Context, sql string, args []any) ([]document.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results := make([]document.ScoredChunk, 0)
	for rows.Next() {
		var c document.ScoredChunk
		if err := rows.Scan(&c.DocumentID, &c.DocumentTitle, &c.CreatedAt,
			&c.Index, &c.Content, &c.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
