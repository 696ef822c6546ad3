package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/replysmith/replysmith/internal/llm/driver"
)

const userPromptTemplate = "Customer review:\n\"\"\"%s\"\"\"\n\nWrite the reply now."

// ErrEmptyReply is returned when the provider answered successfully but the
// completion contained no usable text.
var ErrEmptyReply = errors.New("no reply returned")

// Service turns a customer review into a reply using a chat-completion driver.
type Service struct {
	Driver      driver.Driver
	Model       string
	Temperature float64

	// Pacer throttles outbound provider calls across all requests. Nil means
	// unpaced.
	Pacer *rate.Limiter
}

// Input is one generation request.
type Input struct {
	Review       string
	Tone         Tone
	Length       Length
	ReviewerName string
}

// NewService returns a service bound to the given driver and model.
func NewService(d driver.Driver, model string, temperature float64) *Service {
	return &Service{
		Driver:      d,
		Model:       model,
		Temperature: temperature,
	}
}

// Generate produces a reply for the review. The review text is trimmed before
// it is embedded in the user prompt; validation of its length happens at the
// API boundary, not here.
func (s *Service) Generate(ctx context.Context, in Input) (string, error) {
	if s == nil || s.Driver == nil {
		return "", fmt.Errorf("reply service not configured")
	}

	if s.Pacer != nil {
		if err := s.Pacer.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for upstream slot: %w", err)
		}
	}

	system := BuildSystemPrompt(PromptOptions{
		Tone:         in.Tone,
		Length:       in.Length,
		ReviewerName: in.ReviewerName,
	})
	user := fmt.Sprintf(userPromptTemplate, strings.TrimSpace(in.Review))

	temperature := s.Temperature
	resp, err := s.Driver.Complete(ctx, &driver.Request{
		Model:       s.Model,
		Temperature: &temperature,
		Messages: []driver.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
