package rag_service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/athenadocs/athena/document"
	"github.com/athenadocs/athena/services/llm_service"
)

// ErrNoRelevantDocuments means the candidate pool contained nothing that
// cleared the relevance threshold for the question.
var ErrNoRelevantDocuments = errors.New("no relevant documents found")

// Index is the vector-search surface the engine needs. *storage.Store
// implements it.
type Index interface {
	// SearchChunks returns the chunks nearest to the query embedding,
	// ascending by cosine distance, optionally restricted to documents
	// whose title matches titleFilter.
	SearchChunks(ctx context.Context, embedding pgvector.Vector, titleFilter string, limit int) ([]document.ScoredChunk, error)
	// CandidateChunks is SearchChunks scoped to a single document when
	// documentID is non-empty.
	CandidateChunks(ctx context.Context, embedding pgvector.Vector, k int, documentID string) ([]document.ScoredChunk, error)
}

// Embedder produces the query embedding.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) (pgvector.Vector, error)
}

const systemPrompt = `You are Athena, a helpful assistant that answers questions using only the provided document excerpts.
Ground every statement in the excerpts. If the excerpts do not contain the answer, say so plainly instead of guessing.
Cite the document titles you drew from when it helps the reader.`

// Engine ranks documents for a question and drives grounded chat answers.
// Ranking works on documents, not raw chunks: chunk similarities are
// aggregated per document so one long document with many mediocre matches
// cannot crowd out a short document with one excellent match.
type Engine struct {
	index    Index
	embedder Embedder
	llm      llm_service.LLMService
	logger   *slog.Logger

	topK           int     // candidate chunks fetched from the index
	topDocs        int     // documents kept after ranking
	topM           int     // chunk similarities averaged per document
	thresholdRatio float64 // relative relevance cutoff against the best doc
}

func NewEngine(index Index, embedder Embedder, llm llm_service.LLMService, logger *slog.Logger) *Engine {
	return &Engine{
		index:          index,
		embedder:       embedder,
		llm:            llm,
		logger:         logger,
		topK:           100,
		topDocs:        5,
		topM:           3,
		thresholdRatio: 0.7,
	}
}

// SearchResult is one document-grouped search hit.
type SearchResult struct {
	DocumentID    string                 `json:"document_id"`
	DocumentTitle string                 `json:"document_title"`
	Chunks        []document.ScoredChunk `json:"chunks"`
}

// Search embeds the query and returns matching chunks grouped by document,
// in ascending order of each document's best distance.
func (e *Engine) Search(ctx context.Context, query, titleFilter string, limit int) ([]SearchResult, error) {
	embedding, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := e.index.SearchChunks(ctx, embedding, titleFilter, limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	// Chunks arrive ascending by distance; first occurrence of a document
	// is therefore its best hit, and grouping in first-seen order keeps the
	// results sorted by best distance per document.
	byDoc := make(map[string]int)
	results := make([]SearchResult, 0)
	for _, c := range chunks {
		i, ok := byDoc[c.DocumentID]
		if !ok {
			i = len(results)
			byDoc[c.DocumentID] = i
			results = append(results, SearchResult{
				DocumentID:    c.DocumentID,
				DocumentTitle: c.DocumentTitle,
			})
		}
		results[i].Chunks = append(results[i].Chunks, c)
	}
	return results, nil
}

// rankedDocument is an internal ranking row: a document, its aggregate
// relevance score, and its candidate chunks in descending similarity order.
type rankedDocument struct {
	id     string
	title  string
	score  float64
	chunks []document.ScoredChunk
}

// Answer runs the full retrieve-rank-generate flow for a question and streams
// the model's reply through onDelta. When documentID is non-empty retrieval is
// scoped to that document. It returns the titles of the documents used as
// context.
func (e *Engine) Answer(ctx context.Context, question, documentID string, onDelta func(string) error) ([]string, error) {
	embedding, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	candidates, err := e.index.CandidateChunks(ctx, embedding, e.topK, documentID)
	if err != nil {
		return nil, fmt.Errorf("retrieving candidates: %w", err)
	}

	ranked := e.rank(candidates)
	if len(ranked) == 0 {
		return nil, ErrNoRelevantDocuments
	}

	contextText, titles := e.buildContext(ranked)

	e.logger.Info("Answering with ranked context",
		slog.Int("candidates", len(candidates)),
		slog.Int("documents", len(titles)),
		slog.Any("titles", titles))

	userPrompt := fmt.Sprintf("Document excerpts:\n\n%s\n\nQuestion: %s", contextText, question)
	if err := e.llm.Stream(ctx, systemPrompt, userPrompt, onDelta); err != nil {
		return titles, err
	}
	return titles, nil
}

// rank aggregates chunk similarities per document, applies the relative
// relevance threshold against the best document, and returns at most topDocs
// documents in descending score order with each document's chunks sorted by
// descending similarity.
func (e *Engine) rank(candidates []document.ScoredChunk) []rankedDocument {
	if len(candidates) == 0 {
		return nil
	}

	grouped := make(map[string]*rankedDocument)
	order := make([]string, 0)
	for _, c := range candidates {
		doc, ok := grouped[c.DocumentID]
		if !ok {
			doc = &rankedDocument{id: c.DocumentID, title: c.DocumentTitle}
			grouped[c.DocumentID] = doc
			order = append(order, c.DocumentID)
		}
		doc.chunks = append(doc.chunks, c)
	}

	ranked := make([]rankedDocument, 0, len(order))
	for _, id := range order {
		doc := grouped[id]
		sort.SliceStable(doc.chunks, func(i, j int) bool {
			return doc.chunks[i].Distance < doc.chunks[j].Distance
		})
		doc.score = e.score(doc.chunks)
		ranked = append(ranked, *doc)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	// A document only counts as relevant if it scores within thresholdRatio
	// of the best one. A single strong document therefore filters out
	// loosely related noise instead of dragging it into the context.
	cutoff := ranked[0].score * e.thresholdRatio
	kept := ranked[:0:0]
	for _, doc := range ranked {
		if doc.score >= cutoff {
			kept = append(kept, doc)
		}
	}
	if len(kept) > e.topDocs {
		kept = kept[:e.topDocs]
	}
	return kept
}

// score is the mean of the document's topM best chunk similarities, where
// similarity is 1 - cosine distance.
func (e *Engine) score(chunks []document.ScoredChunk) float64 {
	n := e.topM
	if n > len(chunks) {
		n = len(chunks)
	}
	var sum float64
	for _, c := range chunks[:n] {
		sum += 1 - c.Distance
	}
	return sum / float64(n)
}

// buildContext renders the kept documents' chunks into the prompt context,
// deduplicating exact repeated contents, and returns the context plus the
// document titles in ranking order.
func (e *Engine) buildContext(ranked []rankedDocument) (string, []string) {
	var b strings.Builder
	seen := make(map[string]struct{})
	titles := make([]string, 0, len(ranked))

	for _, doc := range ranked {
		titles = append(titles, doc.title)
		for _, c := range doc.chunks {
			if _, dup := seen[c.Content]; dup {
				continue
			}
			seen[c.Content] = struct{}{}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "From Document '%s':\n%s", doc.title, c.Content)
		}
	}
	return b.String(), titles
}
