package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/openai"
)

// Ensure Adapter implements adapter.Provider.
var _ adapter.Provider = (*Adapter)(nil)

const (
	// ProviderGroq is the default provider of the explain function.
	ProviderGroq = "groq"
	// ProviderOpenAI targets api.openai.com.
	ProviderOpenAI = "openai"
)

// DefaultBaseURL returns the chat API root for a known provider name.
func DefaultBaseURL(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	default:
		return "https://api.groq.com/openai/v1"
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "llama-3.1-8b-instant"
	}
}

// Adapter talks to an OpenAI-compatible chat completion API (Groq, OpenAI).
type Adapter struct {
	provider   string
	apiKey     string
	baseURL    string
	org        string
	httpClient *http.Client
	// streaming requests must not be cut by a whole-request timeout
	streamClient *http.Client
}

// Config holds configuration for the adapter.
type Config struct {
	Provider       string // groq (default) or openai
	APIKey         string
	BaseURL        string // optional, defaults per provider
	Organization   string // optional, sent as OpenAI-Organization
	RequestTimeout time.Duration
	HTTPClient     *http.Client // optional, used for both modes when set
}

// New creates an Adapter instance.
func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGroq
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL(provider)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	a := &Adapter{
		provider:     provider,
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		org:          cfg.Organization,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
	if cfg.HTTPClient != nil {
		a.httpClient = cfg.HTTPClient
		a.streamClient = cfg.HTTPClient
	}
	return a, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string { return a.provider }

// BaseURL returns the API root requests are sent to.
func (a *Adapter) BaseURL() string { return a.baseURL }

// CreateCompletion sends a non-streaming chat completion request.
func (a *Adapter) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("openai: no messages provided")
	}
	req.Stream = false

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return openai.ChatCompletionResponse{}, a.upstreamError(resp.StatusCode, respBody)
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	return completion, nil
}

// OpenStream sends a chat completion request with stream=true and returns the
// untouched event-stream body on success.
func (a *Adapter) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: no messages provided")
	}
	req.Stream = true

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: send stream request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, a.upstreamError(resp.StatusCode, body)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("openai: %w", adapter.ErrNoBody)
	}
	return resp.Body, nil
}

func (a *Adapter) newRequest(ctx context.Context, req openai.ChatCompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	if a.org != "" {
		httpReq.Header.Set("OpenAI-Organization", a.org)
	}
	return httpReq, nil
}

func (a *Adapter) upstreamError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	upErr := &adapter.UpstreamError{Provider: a.provider, Status: status, Body: body}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		upErr.Message = fmt.Sprintf("%s (type=%s)", errResp.Error.Message, errResp.Error.Type)
	}
	return upErr
}
