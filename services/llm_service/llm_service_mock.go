package llm_service

import (
	"context"
)

type MockLLMService struct {
	CallFunc   func(ctx context.Context, system, user string) (string, error)
	StreamFunc func(ctx context.Context, system, user string, onDelta func(string) error) error
}

func (m *MockLLMService) Call(ctx context.Context, system, user string) (string, error) {
	if m.CallFunc != nil {
		return m.CallFunc(ctx, system, user)
	}
	return "mock response", nil
}

func (m *MockLLMService) Stream(ctx context.Context, system, user string, onDelta func(string) error) error {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, system, user, onDelta)
	}
	return onDelta("mock response")
}
