package rag_service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pgvector/pgvector-go"

	"github.com/athenadocs/athena/document"
	"github.com/athenadocs/athena/services/llm_service"
)

type fakeIndex struct {
	chunks          []document.ScoredChunk
	err             error
	lastK           int
	lastDocumentID  string
	lastTitleFilter string
}

func (f *fakeIndex) SearchChunks(ctx context.Context, embedding pgvector.Vector,
	titleFilter string, limit int) ([]document.ScoredChunk, error) {
	f.lastTitleFilter = titleFilter
	f.lastK = limit
	return f.chunks, f.err
}

func (f *fakeIndex) CandidateChunks(ctx context.Context, embedding pgvector.Vector,
	k int, documentID string) ([]document.ScoredChunk, error) {
	f.lastK = k
	f.lastDocumentID = documentID
	return f.chunks, f.err
}

type fakeQueryEmbedder struct {
	err error
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) (pgvector.Vector, error) {
	if f.err != nil {
		return pgvector.Vector{}, f.err
	}
	return pgvector.NewVector([]float32{0.1, 0.2}), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chunk(docID, title, content string, distance float64) document.ScoredChunk {
	return document.ScoredChunk{
		DocumentID:    docID,
		DocumentTitle: title,
		Content:       content,
		Distance:      distance,
	}
}

func newTestEngine(index *fakeIndex, llm llm_service.LLMService) *Engine {
	return NewEngine(index, &fakeQueryEmbedder{}, llm, testLogger())
}

func TestSearchGroupsByDocument(t *testing.T) {
	index := &fakeIndex{chunks: []document.ScoredChunk{
		chunk("a", "Alpha", "a0", 0.10),
		chunk("b", "Beta", "b0", 0.15),
		chunk("a", "Alpha", "a1", 0.20),
		chunk("b", "Beta", "b1", 0.30),
	}}
	e := newTestEngine(index, &llm_service.MockLLMService{})

	results, err := e.Search(context.Background(), "question", "filter", 4)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d grouped results, want 2:\n%s", len(results), spew.Sdump(results))
	}
	if results[0].DocumentID != "a" || results[1].DocumentID != "b" {
		t.Errorf("result order = %s, %s; want a, b", results[0].DocumentID, results[1].DocumentID)
	}
	if len(results[0].Chunks) != 2 || len(results[1].Chunks) != 2 {
		t.Errorf("chunk counts = %d, %d; want 2, 2", len(results[0].Chunks), len(results[1].Chunks))
	}
	if index.lastTitleFilter != "filter" {
		t.Errorf("title filter = %q, want %q", index.lastTitleFilter, "filter")
	}
}

func TestAnswerRanksDocumentsByAggregateSimilarity(t *testing.T) {
	// Document "long" has many mediocre chunks; "short" has fewer but better
	// ones. Mean-of-best-chunks scoring must put "short" first.
	index := &fakeIndex{chunks: []document.ScoredChunk{
		chunk("short", "Short Doc", "s0", 0.05),
		chunk("short", "Short Doc", "s1", 0.10),
		chunk("long", "Long Doc", "l0", 0.20),
		chunk("long", "Long Doc", "l1", 0.22),
		chunk("long", "Long Doc", "l2", 0.24),
		chunk("long", "Long Doc", "l3", 0.26),
	}}

	var prompt string
	llm := &llm_service.MockLLMService{
		StreamFunc: func(ctx context.Context, system, user string, onDelta func(string) error) error {
			prompt = user
			return onDelta("answer")
		},
	}
	e := newTestEngine(index, llm)

	var streamed strings.Builder
	titles, err := e.Answer(context.Background(), "question", "", func(delta string) error {
		streamed.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}

	if len(titles) != 2 || titles[0] != "Short Doc" || titles[1] != "Long Doc" {
		t.Fatalf("titles = %v, want [Short Doc, Long Doc]", titles)
	}
	if streamed.String() != "answer" {
		t.Errorf("streamed = %q, want %q", streamed.String(), "answer")
	}
	if !strings.Contains(prompt, "From Document 'Short Doc':\ns0") {
		t.Errorf("prompt missing short-doc context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: question") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
	// Context lists the better-ranked document's chunks before the other's.
	if strings.Index(prompt, "Short Doc") > strings.Index(prompt, "Long Doc") {
		t.Error("lower-ranked document appears first in the context")
	}
}

func TestAnswerAppliesRelevanceThreshold(t *testing.T) {
	// "noise" scores well below 70% of the best document and must be cut.
	index := &fakeIndex{chunks: []document.ScoredChunk{
		chunk("best", "Best", "relevant content", 0.05),
		chunk("noise", "Noise", "unrelated content", 0.80),
	}}

	var prompt string
	llm := &llm_service.MockLLMService{
		StreamFunc: func(ctx context.Context, system, user string, onDelta func(string) error) error {
			prompt = user
			return nil
		},
	}
	e := newTestEngine(index, llm)

	titles, err := e.Answer(context.Background(), "question", "", func(string) error { return nil })
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}
	if len(titles) != 1 || titles[0] != "Best" {
		t.Errorf("titles = %v, want [Best]", titles)
	}
	if strings.Contains(prompt, "unrelated content") {
		t.Error("below-threshold document leaked into the context")
	}
}

func TestAnswerCapsDocumentCount(t *testing.T) {
	// Seven equally relevant documents; only topDocs may survive.
	var chunks []document.ScoredChunk
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5", "d6", "d7"} {
		chunks = append(chunks, chunk(id, "Doc "+id, "content "+id, 0.10))
	}
	index := &fakeIndex{chunks: chunks}

	llm := &llm_service.MockLLMService{
		StreamFunc: func(ctx context.Context, system, user string, onDelta func(string) error) error {
			return nil
		},
	}
	e := newTestEngine(index, llm)

	titles, err := e.Answer(context.Background(), "question", "", func(string) error { return nil })
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}
	if len(titles) != 5 {
		t.Errorf("got %d documents, want 5", len(titles))
	}
}

func TestAnswerDeduplicatesRepeatedContent(t *testing.T) {
	index := &fakeIndex{chunks: []document.ScoredChunk{
		chunk("a", "Alpha", "repeated passage", 0.05),
		chunk("a", "Alpha", "repeated passage", 0.06),
		chunk("a", "Alpha", "unique passage", 0.07),
	}}

	var prompt string
	llm := &llm_service.MockLLMService{
		StreamFunc: func(ctx context.Context, system, user string, onDelta func(string) error) error {
			prompt = user
			return nil
		},
	}
	e := newTestEngine(index, llm)

	if _, err := e.Answer(context.Background(), "question", "", func(string) error { return nil }); err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}
	if got := strings.Count(prompt, "repeated passage"); got != 1 {
		t.Errorf("repeated passage appears %d times in context, want 1", got)
	}
	if !strings.Contains(prompt, "unique passage") {
		t.Error("unique passage missing from context")
	}
}

func TestAnswerNoCandidates(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, &llm_service.MockLLMService{
		StreamFunc: func(ctx context.Context, system, user string, onDelta func(string) error) error {
			t.Fatal("LLM must not be called without relevant documents")
			return nil
		},
	})

	_, err := e.Answer(context.Background(), "question", "", func(string) error { return nil })
	if !errors.Is(err, ErrNoRelevantDocuments) {
		t.Fatalf("Answer() error = %v, want ErrNoRelevantDocuments", err)
	}
}

func TestAnswerScopedToDocument(t *testing.T) {
	index := &fakeIndex{chunks: []document.ScoredChunk{
		chunk("target", "Target", "scoped content", 0.10),
	}}
	llm := &llm_service.MockLLMService{
		StreamFunc: func(ctx context.Context, system, user string, onDelta func(string) error) error {
			return nil
		},
	}
	e := newTestEngine(index, llm)

	if _, err := e.Answer(context.Background(), "question", "target", func(string) error { return nil }); err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}
	if index.lastDocumentID != "target" {
		t.Errorf("scope = %q, want %q", index.lastDocumentID, "target")
	}
	if index.lastK != 100 {
		t.Errorf("candidate pool size = %d, want 100", index.lastK)
	}
}

func TestAnswerEmbeddingFailure(t *testing.T) {
	e := NewEngine(&fakeIndex{}, &fakeQueryEmbedder{err: errors.New("provider down")},
		&llm_service.MockLLMService{}, testLogger())

	if _, err := e.Answer(context.Background(), "question", "", func(string) error { return nil }); err == nil {
		t.Fatal("Answer() succeeded despite embedding failure")
	}
}
