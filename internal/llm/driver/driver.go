package driver

import "context"

// Driver is the interface to a chat-completion provider.
type Driver interface {
	// Complete sends a single completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "groq").
	Name() string
}

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request. Each request is a
// stateless single-turn call: no streaming, no retries, no conversation
// carry-over.
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a provider-agnostic completion response. Text is empty when the
// provider returned no choices; callers decide whether that is an error.
type Response struct {
	Text         string
	FinishReason string
	Usage        *Usage
}
