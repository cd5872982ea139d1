package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/athenadocs/athena/services/llm_service"
)

const summarySystemPrompt = "You are a helpful assistant."

const summaryTemplate = "Analyze and summarize the following text from a document: %s\n\n" +
	"Provide a concise yet comprehensive summary that directly addresses the content. " +
	"Focus on main ideas, key points, and essential information. " +
	"Structure the summary clearly to capture the document's essence. " +
	"Do not use any introductory phrases or markdown syntax."

const titleTemplate = "You are an expert at generating titles from descriptions. " +
	"Based on the following summary of a document: %s\n\n" +
	"Please create a short, concise, and informative title that accurately represents the content. " +
	"The title should be no more than 10 words long and should not use any markdown syntax."

// Summarizer generates a document description and title from its first chunk
// through fixed prompt contracts.
type Summarizer struct {
	llm    llm_service.LLMService
	logger *slog.Logger
}

func New(llm llm_service.LLMService, logger *slog.Logger) *Summarizer {
	return &Summarizer{llm: llm, logger: logger}
}

// GenerateDescription summarizes the given text.
func (s *Summarizer) GenerateDescription(ctx context.Context, text string) (string, error) {
	description, err := s.llm.Call(ctx, summarySystemPrompt, fmt.Sprintf(summaryTemplate, text))
	if err != nil {
		return "", fmt.Errorf("summary generation: %w", err)
	}
	return strings.TrimSpace(description), nil
}

// GenerateTitle derives a short title from a previously generated description.
func (s *Summarizer) GenerateTitle(ctx context.Context, description string) (string, error) {
	title, err := s.llm.Call(ctx, summarySystemPrompt, fmt.Sprintf(titleTemplate, description))
	if err != nil {
		return "", fmt.Errorf("title generation: %w", err)
	}
	return strings.TrimSpace(strings.Trim(title, `"`)), nil
}
