package mock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/openai"
	"github.com/snipwise/snipwise/internal/sse"
)

// Ensure Adapter implements adapter.Provider.
var _ adapter.Provider = (*Adapter)(nil)

// ProviderName is reported by Adapter.Name.
const ProviderName = "mock"

// maxEcho is the number of runes of the snippet quoted back in a mock explanation.
const maxEcho = 400

// Explanation returns the canned markdown used whenever no real provider answers.
func Explanation(content string) string {
	return "**Mock explanation:**\n\n```\n" + truncateRunes(content, maxEcho) + "\n```\nThis code likely prints, computes, or transforms data."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Adapter answers every request locally with Explanation of the last user message.
type Adapter struct {
	// Prefix is stripped from the user message before echoing, so the
	// explain instruction is not quoted back.
	Prefix string
}

// New creates a mock Adapter.
func New(prefix string) *Adapter {
	return &Adapter{Prefix: prefix}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return ProviderName }

// CreateCompletion fabricates a deterministic completion.
func (a *Adapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	content, err := a.userContent(req)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	text := Explanation(content)
	return openai.ChatCompletionResponse{
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "stop",
			Message:      openai.ChatMessage{Role: "assistant", Content: text},
		}},
		Usage: openai.UsageBreakdown{
			PromptTokens:     len(content) / 4,
			CompletionTokens: len(text) / 4,
			TotalTokens:      (len(content) + len(text)) / 4,
		},
	}, nil
}

// OpenStream returns the explanation as a two-frame event stream.
func (a *Adapter) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	content, err := a.userContent(req)
	if err != nil {
		return nil, err
	}
	frames, err := sse.Synthesize(Explanation(content))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(frames)), nil
}

func (a *Adapter) userContent(req openai.ChatCompletionRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("mock: no messages provided")
	}
	// find last user message; default to final message if none
	message := req.Messages[len(req.Messages)-1]
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if strings.EqualFold(req.Messages[i].Role, "user") {
			message = req.Messages[i]
			break
		}
	}
	return strings.TrimPrefix(message.Content, a.Prefix), nil
}
