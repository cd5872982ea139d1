package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/athenadocs/athena/chunker"
	"github.com/athenadocs/athena/converter"
	"github.com/athenadocs/athena/document"
	"github.com/athenadocs/athena/files"
	"github.com/athenadocs/athena/summarizer"
)

// StageName identifies one unit of the processing chain.
type StageName string

const (
	StageExtractAndChunk StageName = "extract_and_chunk"
	StageSummarize       StageName = "summarize"
	StageEmbed           StageName = "embed"
)

// stageSuffix is the resumption predicate: for each status the remaining
// stage suffix a dispatch or retry must run. Keeping it as data means
// resumption logic lives in one table instead of scattered conditionals.
var stageSuffix = map[document.Status][]StageName{
	document.StatusPending:           {StageExtractAndChunk, StageSummarize, StageEmbed},
	document.StatusTextExtracting:    {StageExtractAndChunk, StageSummarize, StageEmbed},
	document.StatusTextExtracted:     {StageSummarize, StageEmbed},
	document.StatusGeneratingSummary: {StageSummarize, StageEmbed},
	document.StatusSummaryGenerated:  {StageEmbed},
	document.StatusEmbeddingText:     {StageEmbed},
	document.StatusCompleted:         nil,
}

// StagesFor returns the stage suffix implied by a document's current status.
func StagesFor(status document.Status) []StageName {
	suffix := stageSuffix[status]
	out := make([]StageName, len(suffix))
	copy(out, suffix)
	return out
}

// Store is the persistence surface the stages need. *storage.Store
// implements it.
type Store interface {
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	SetStatus(ctx context.Context, id string, status document.Status, failed bool) error
	MarkFailed(ctx context.Context, id string) error
	SetTaskHandle(ctx context.Context, id, handle string) error
	SetFilePaths(ctx context.Context, id, file, ocrFile string) error
	SaveChunks(ctx context.Context, id string, chunks []string) error
	FirstChunk(ctx context.Context, id string) (*document.Chunk, error)
	SaveSummary(ctx context.Context, id, title, description string) error
	EmbedDocument(ctx context.Context, id string,
		embed func(context.Context, []string) ([]pgvector.Vector, error)) error
	BeginRetry(ctx context.Context, id, handle string) error
}

// Embedder is the batched embedding contract the embed stage needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

// ArtifactStore persists extracted-text artifacts alongside the original.
type ArtifactStore interface {
	Save(docID string, kind files.Kind, ext string, r io.Reader) (string, error)
}

// Stage is one unit of the chain: it reads the document by id, performs its
// work, and persists results plus a status transition before the next stage
// starts.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, docID string) error
}

// ExtractStage converts the stored original to text, chunks it, and persists
// the chunks. Extraction and persistence errors are fatal for the chain; no
// retry happens at this stage.
type ExtractStage struct {
	store      Store
	converters *converter.Registry
	splitter   *chunker.Splitter
	artifacts  ArtifactStore
	logger     *slog.Logger
}

func NewExtractStage(store Store, converters *converter.Registry,
	splitter *chunker.Splitter, artifacts ArtifactStore, logger *slog.Logger) *ExtractStage {
	return &ExtractStage{
		store:      store,
		converters: converters,
		splitter:   splitter,
		artifacts:  artifacts,
		logger:     logger,
	}
}

func (s *ExtractStage) Name() StageName { return StageExtractAndChunk }

func (s *ExtractStage) Run(ctx context.Context, docID string) error {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	if err := s.store.SetStatus(ctx, docID, document.StatusTextExtracting, false); err != nil {
		return err
	}

	conv, err := s.converters.For(doc.MarkdownConverter, doc.File)
	if err != nil {
		return err
	}

	text, err := conv.Extract(ctx, doc.File)
	if err != nil {
		return err
	}

	chunks := s.splitter.Split(text)
	s.logger.Info("Text extracted and chunked",
		slog.String("document_id", docID),
		slog.String("converter", conv.Name()),
		slog.Int("text_length", len(text)),
		slog.Int("chunks", len(chunks)))

	// Keep the extracted text as a retrievable artifact. Losing it is not
	// fatal to the chain.
	if s.artifacts != nil {
		if path, err := s.artifacts.Save(docID, files.KindOCR, ".md", strings.NewReader(text)); err != nil {
			s.logger.Warn("Failed to store extracted-text artifact",
				slog.String("document_id", docID),
				slog.String("error", err.Error()))
		} else if err := s.store.SetFilePaths(ctx, docID, "", path); err != nil {
			s.logger.Warn("Failed to record extracted-text artifact path",
				slog.String("document_id", docID),
				slog.String("error", err.Error()))
		}
	}

	return s.store.SaveChunks(ctx, docID, chunks)
}

// SummarizeStage generates the description and title from the first chunk.
type SummarizeStage struct {
	store      Store
	summarizer *summarizer.Summarizer
	logger     *slog.Logger
}

func NewSummarizeStage(store Store, sum *summarizer.Summarizer, logger *slog.Logger) *SummarizeStage {
	return &SummarizeStage{store: store, summarizer: sum, logger: logger}
}

func (s *SummarizeStage) Name() StageName { return StageSummarize }

func (s *SummarizeStage) Run(ctx context.Context, docID string) error {
	if err := s.store.SetStatus(ctx, docID, document.StatusGeneratingSummary, false); err != nil {
		return err
	}

	first, err := s.store.FirstChunk(ctx, docID)
	if err != nil {
		// Missing chunks at this point is structural, not transient.
		return err
	}

	description, err := s.summarizer.GenerateDescription(ctx, first.Content)
	if err != nil {
		return err
	}
	title, err := s.summarizer.GenerateTitle(ctx, description)
	if err != nil {
		return err
	}

	s.logger.Info("Summary generated",
		slog.String("document_id", docID),
		slog.String("title", title))

	return s.store.SaveSummary(ctx, docID, title, description)
}

// EmbedStage embeds all chunk contents in one batched provider call and
// writes the vectors back under the document row lock.
type EmbedStage struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

func NewEmbedStage(store Store, embedder Embedder, logger *slog.Logger) *EmbedStage {
	return &EmbedStage{store: store, embedder: embedder, logger: logger}
}

func (s *EmbedStage) Name() StageName { return StageEmbed }

func (s *EmbedStage) Run(ctx context.Context, docID string) error {
	// The in-progress status is written outside the embed transaction so a
	// rollback leaves it in place as the resumption marker.
	if err := s.store.SetStatus(ctx, docID, document.StatusEmbeddingText, false); err != nil {
		return err
	}
	return s.store.EmbedDocument(ctx, docID, s.embedder.EmbedDocuments)
}
