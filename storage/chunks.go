package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/athenadocs/athena/document"
)

// SaveChunks replaces a document's chunks inside one transaction: any chunks
// from an earlier run are dropped, the new set is bulk-inserted with
// contiguous 0..N-1 indices, and chunk_count plus the text_extracted status
// are written in the same transaction. After commit, chunk_count always
// equals the number of persisted rows.
func (s *Store) SaveChunks(ctx context.Context, id string, chunks []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	rows := make([][]any, len(chunks))
	for i, content := range chunks {
		rows[i] = []any{id, i, content}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"document_chunks"},
		[]string{"document_id", "chunk_index", "content"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET chunk_count = $2, status = $3, is_failed = FALSE, updated_at = now()
		WHERE id = $1`,
		id, len(chunks), string(document.StatusTextExtracted))
	if err != nil {
		return fmt.Errorf("failed to update chunk count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	s.logger.Info("Chunks persisted",
		slog.String("document_id", id),
		slog.Int("chunk_count", len(chunks)))
	return nil
}

// FirstChunk returns the chunk at index 0, or ErrNoChunks.
func (s *Store) FirstChunk(ctx context.Context, id string) (*document.Chunk, error) {
	var c document.Chunk
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_id, chunk_index, content, created_at, updated_at
		FROM document_chunks
		WHERE document_id = $1 AND chunk_index = 0`, id,
	).Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoChunks
		}
		return nil, fmt.Errorf("failed to load first chunk: %w", err)
	}
	return &c, nil
}

// ChunksByDocument returns a document's chunks in reading order.
func (s *Store) ChunksByDocument(ctx context.Context, id string) ([]document.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content, embedding_vector, created_at, updated_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]document.Chunk, 0)
	for rows.Next() {
		var c document.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content,
			&c.Embedding, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SaveSummary persists title, description, and the summary_generated status
// in one atomic write.
func (s *Store) SaveSummary(ctx context.Context, id, title, description string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET title = $2, description = $3, status = $4, is_failed = FALSE, updated_at = now()
		WHERE id = $1`,
		id, title, description, string(document.StatusSummaryGenerated))
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EmbedDocument runs the embed stage's persistence under a row-level lock on
// the document, all inside one transaction: concurrent embedding attempts on
// the same document serialize on the lock, and a mid-stage failure rolls the
// transaction back so no partially written vectors are ever visible. The
// caller sets the embedding_text status before entering, outside the
// transaction, so a rollback leaves that status in place as the resumption
// marker. The provider call happens through embed while the lock is held.
func (s *Store) EmbedDocument(ctx context.Context, id string,
	embed func(context.Context, []string) ([]pgvector.Vector, error)) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Bound the wait on the row lock so a stale holder surfaces as an error
	// instead of a hang.
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock document: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, content FROM document_chunks
		WHERE document_id = $1 ORDER BY chunk_index`, id)
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	var chunkIDs []int64
	var texts []string
	for rows.Next() {
		var chunkID int64
		var content string
		if err := rows.Scan(&chunkID, &content); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunkIDs = append(chunkIDs, chunkID)
		texts = append(texts, content)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(texts) == 0 {
		return ErrNoChunks
	}

	vectors, err := embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(texts), len(vectors))
	}

	batch := &pgx.Batch{}
	for i, chunkID := range chunkIDs {
		batch.Queue(`
			UPDATE document_chunks SET embedding_vector = $2, updated_at = now()
			WHERE id = $1`, chunkID, vectors[i])
	}
	br := tx.SendBatch(ctx, batch)
	for range chunkIDs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to write embedding vector: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to flush vector updates: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents SET status = $2, is_failed = FALSE, updated_at = now()
		WHERE id = $1`,
		id, string(document.StatusCompleted)); err != nil {
		return fmt.Errorf("failed to set completed status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}

	s.logger.Info("Embeddings persisted",
		slog.String("document_id", id),
		slog.Int("chunk_count", len(chunkIDs)))
	return nil
}
