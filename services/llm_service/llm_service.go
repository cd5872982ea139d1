package llm_service

import "context"

// LLMService is the generation-model contract shared by the summarizer and
// the retrieval engine. Call buffers the whole completion; Stream delivers
// it fragment-by-fragment through onDelta as the provider produces it.
type LLMService interface {
	Call(ctx context.Context, system, user string) (string, error)
	Stream(ctx context.Context, system, user string, onDelta func(string) error) error
}
