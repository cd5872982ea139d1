package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/athenadocs/athena/document"
)

var (
	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrNoChunks means a stage needed chunks that were never persisted.
	ErrNoChunks = errors.New("no chunks found for document")
	// ErrNotFailed means a retry was requested for a document that is not
	// in a failed state.
	ErrNotFailed = errors.New("document is not in failed state")
)

// Store persists documents and chunks in PostgreSQL with pgvector.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	logger      *slog.Logger
}

func New(pool *pgxpool.Pool, lockTimeout time.Duration, logger *slog.Logger) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &Store{pool: pool, lockTimeout: lockTimeout, logger: logger}
}

// Connect opens a pgx pool with pgvector types registered on every
// connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// Bootstrap creates the schema: the vector extension, both tables, the
// status index for operational queries, and an HNSW cosine index on the
// embedding column for the retrieval engine's latency target.
func (s *Store) Bootstrap(ctx context.Context, dimensions int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			file TEXT NOT NULL DEFAULT '',
			ocr_file TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			is_failed BOOLEAN NOT NULL DEFAULT FALSE,
			task_handle TEXT NOT NULL DEFAULT '',
			markdown_converter TEXT NOT NULL DEFAULT '',
			chunk_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			embedding_vector vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (document_id, chunk_index)
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
			ON document_chunks
			USING hnsw (embedding_vector vector_cosine_ops)
			WITH (m = 16, ef_construction = 128)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}

	s.logger.Info("Database schema ready", slog.Int("vector_dimensions", dimensions))
	return nil
}

const documentColumns = `id, title, description, file, ocr_file, status, is_failed,
	task_handle, markdown_converter, chunk_count, created_at, updated_at`

func scanDocument(row pgx.Row) (*document.Document, error) {
	var d document.Document
	var status string
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.File, &d.OCRFile, &status,
		&d.IsFailed, &d.TaskHandle, &d.MarkdownConverter, &d.ChunkCount,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	d.Status, err = document.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) CreateDocument(ctx context.Context, d *document.Document) error {
	if d.Status == "" {
		d.Status = document.StatusPending
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, title, file, markdown_converter, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		d.ID, d.Title, d.File, d.MarkdownConverter, string(d.Status),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (s *Store) ListDocuments(ctx context.Context) ([]document.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]document.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *Store) UpdateDocumentMeta(ctx context.Context, id, title, description string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET title = $2, description = $3, updated_at = now()
		WHERE id = $1`, id, title, description)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus writes status and is_failed together in one atomic UPDATE so the
// pair is never observed inconsistent.
func (s *Store) SetStatus(ctx context.Context, id string, status document.Status, failed bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, is_failed = $3, updated_at = now()
		WHERE id = $1`, id, string(status), failed)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("Document status updated",
		slog.String("document_id", id),
		slog.String("status", status.String()),
		slog.Bool("is_failed", failed))
	return nil
}

// MarkFailed raises is_failed while leaving status frozen at the in-progress
// value of the failing stage. That frozen status is the resumption marker.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET is_failed = TRUE, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetTaskHandle(ctx context.Context, id, handle string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET task_handle = $2, updated_at = now()
		WHERE id = $1`, id, handle)
	if err != nil {
		return fmt.Errorf("failed to set task handle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetFilePaths(ctx context.Context, id, file, ocrFile string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET file = COALESCE(NULLIF($2, ''), file),
		    ocr_file = COALESCE(NULLIF($3, ''), ocr_file),
		    updated_at = now()
		WHERE id = $1`, id, file, ocrFile)
	if err != nil {
		return fmt.Errorf("failed to set file paths: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BeginRetry clears is_failed and records the new task handle in a single
// UPDATE, so a crash cannot leave a document that looks healthy without a
// pending run and no way to tell.
func (s *Store) BeginRetry(ctx context.Context, id, handle string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET is_failed = FALSE, task_handle = $2, updated_at = now()
		WHERE id = $1 AND is_failed = TRUE`, id, handle)
	if err != nil {
		return fmt.Errorf("failed to begin retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetDocument(ctx, id); err != nil {
			return err
		}
		return ErrNotFailed
	}
	return nil
}

// DeleteDocument removes the document row; chunks cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
