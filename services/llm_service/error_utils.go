package llm_service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// providerErrorBody is the error structure OpenAI-compatible APIs return.
type providerErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// ProviderError is a transport or model failure of the generation backend.
// It is transient for retry-policy purposes.
type ProviderError struct {
	StatusCode int
	Message    string
	ErrorType  string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("LLM provider error (HTTP %d): %s (Type: %s)", e.StatusCode, e.Message, e.ErrorType)
	}
	return fmt.Sprintf("LLM provider error: %s", e.Message)
}

func (e *ProviderError) Transient() bool { return true }

// errorFromResponse builds a ProviderError from a non-200 provider response.
func errorFromResponse(resp *http.Response) *ProviderError {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{StatusCode: resp.StatusCode, Message: "unreadable error body"}
	}

	var parsed providerErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    parsed.Error.Message,
			ErrorType:  parsed.Error.Type,
		}
	}
	return &ProviderError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}
