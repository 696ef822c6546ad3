package groq

import (
	"encoding/json"
	"strings"

	"github.com/replysmith/replysmith/internal/llm/driver"
)

type chatCompletionResponse struct {
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func toDriverResponse(resp *chatCompletionResponse) *driver.Response {
	out := &driver.Response{}
	if resp == nil {
		return out
	}

	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
		out.FinishReason = resp.Choices[0].FinishReason
	}

	if resp.Usage != nil {
		out.Usage = &driver.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return out
}

// parseProviderError extracts the provider's own error message from the
// response body when present, falling back to the raw body text.
func parseProviderError(statusCode int, body []byte) *driver.ProviderError {
	message := strings.TrimSpace(string(body))

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error.Message) != "" {
		message = strings.TrimSpace(parsed.Error.Message)
	}

	return &driver.ProviderError{
		Provider:    "groq",
		StatusCode:  statusCode,
		Message:     message,
		RawResponse: body,
	}
}
