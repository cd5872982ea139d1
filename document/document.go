package document

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Document is one uploaded file tracked through the processing pipeline.
type Document struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	File              string    `json:"file"`
	OCRFile           string    `json:"ocr_file"`
	Status            Status    `json:"status"`
	IsFailed          bool      `json:"is_failed"`
	TaskHandle        string    `json:"task_handle"`
	MarkdownConverter string    `json:"markdown_converter"`
	ChunkCount        int       `json:"chunk_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Chunk is a bounded slice of a document's extracted text. Chunks are
// immutable after creation except for the embedding vector, which the embed
// stage writes exactly once per run.
type Chunk struct {
	ID         int64            `json:"id"`
	DocumentID string           `json:"document_id"`
	Index      int              `json:"index"`
	Content    string           `json:"content"`
	Embedding  *pgvector.Vector `json:"embedding_vector,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ScoredChunk is a chunk returned from a vector similarity query together
// with its parent document metadata and cosine distance to the query vector.
type ScoredChunk struct {
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	CreatedAt     time.Time `json:"created_at"`
	Index         int       `json:"chunk_index"`
	Content       string    `json:"content"`
	Distance      float64   `json:"distance"`
}
