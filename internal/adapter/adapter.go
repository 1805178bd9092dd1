package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/snipwise/snipwise/internal/openai"
)

// ChatAdapter performs a single, non-streaming chat completion.
type ChatAdapter interface {
	CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// StreamAdapter opens a streaming chat completion and hands back the raw
// event-stream body. The caller owns the returned reader and must close it.
type StreamAdapter interface {
	OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error)
}

// Provider is an upstream that supports both modes.
type Provider interface {
	ChatAdapter
	StreamAdapter
	Name() string
}

// ErrNoBody is returned when a successful streaming response carries no body.
var ErrNoBody = errors.New("upstream response has no body")

// UpstreamError reports a non-success HTTP status from the provider.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
	Body     []byte
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Message)
	}
	if len(e.Body) == 0 {
		return fmt.Sprintf("%s: http %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, string(previewBytes(e.Body, 256)))
}

func previewBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
