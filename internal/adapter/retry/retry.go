package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/openai"
)

// Ensure Adapter implements adapter.Provider.
var _ adapter.Provider = (*Adapter)(nil)

// Adapter wraps a provider and retries transient non-streaming failures.
// Streams are opened once: a half-forwarded stream cannot be replayed.
type Adapter struct {
	next       adapter.Provider
	retryCount int
	retryDelay time.Duration
}

// Config holds configuration for the retry Adapter.
type Config struct {
	Next       adapter.Provider
	RetryCount int           // additional attempts after the first one
	RetryDelay time.Duration // delay between attempts (default: 500ms)
}

// New creates a retry Adapter. A RetryCount of zero returns Next unchanged.
func New(cfg Config) (adapter.Provider, error) {
	if cfg.Next == nil {
		return nil, errors.New("retry: wrapped provider required")
	}
	if cfg.RetryCount <= 0 {
		return cfg.Next, nil
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	return &Adapter{next: cfg.Next, retryCount: cfg.RetryCount, retryDelay: delay}, nil
}

// Name returns the wrapped provider's name.
func (a *Adapter) Name() string { return a.next.Name() }

// CreateCompletion calls the wrapped provider, retrying retryable errors.
func (a *Adapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= a.retryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return openai.ChatCompletionResponse{}, err
		}

		resp, err := a.next.CreateCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == a.retryCount || !IsRetryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		case <-time.After(a.retryDelay):
		}
	}
	return openai.ChatCompletionResponse{}, fmt.Errorf("retry: %w", lastErr)
}

// OpenStream delegates without retrying.
func (a *Adapter) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	return a.next.OpenStream(ctx, req)
}

// IsRetryable reports whether err is a rate limit, a server error or a
// transport failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var upErr *adapter.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Status == http.StatusTooManyRequests || upErr.Status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection refused", "connection reset", "no such host", "temporary failure"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
