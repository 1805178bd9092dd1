package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/openai"
	"github.com/snipwise/snipwise/internal/testutil"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     bool
		wantBaseURL string
		wantName    string
	}{
		{
			name:        "groq defaults",
			cfg:         Config{APIKey: "gsk-test"},
			wantBaseURL: "https://api.groq.com/openai/v1",
			wantName:    ProviderGroq,
		},
		{
			name:        "openai provider",
			cfg:         Config{APIKey: "sk-test", Provider: "OpenAI"},
			wantBaseURL: "https://api.openai.com/v1",
			wantName:    ProviderOpenAI,
		},
		{
			name:        "custom base url trimmed",
			cfg:         Config{APIKey: "sk-test", BaseURL: "http://localhost:9999/v1/", RequestTimeout: time.Second},
			wantBaseURL: "http://localhost:9999/v1",
			wantName:    ProviderGroq,
		},
		{
			name:    "missing api key",
			cfg:     Config{BaseURL: "https://api.openai.com/v1"},
			wantErr: true,
		},
		{
			name:    "blank api key",
			cfg:     Config{APIKey: "   "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "api key required")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBaseURL, a.BaseURL())
			assert.Equal(t, tt.wantName, a.Name())
		})
	}
}

func TestCreateCompletion(t *testing.T) {
	var got openai.ChatCompletionRequest
	server := testutil.NewUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","model":"llama-3.1-8b-instant","choices":[{"index":0,"message":{"role":"assistant","content":"It prints."}}]}`))
	}))

	a, err := New(Config{APIKey: "gsk-test", BaseURL: server.URL})
	require.NoError(t, err)

	req := openai.NewChatRequest("llama-3.1-8b-instant", "sys", "user text", 0.2)
	resp, err := a.CreateCompletion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "It prints.", resp.FirstContent())
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	assert.Equal(t, 1, server.Requests())
}

func TestOrganizationHeaderAndCustomClient(t *testing.T) {
	server := testutil.NewUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))

	a, err := New(Config{Provider: ProviderOpenAI, APIKey: "sk-test", BaseURL: server.URL, Organization: "org-7", HTTPClient: server.Client()})
	require.NoError(t, err)
	_, err = a.CreateCompletion(context.Background(), openai.NewChatRequest("gpt-4o-mini", "s", "u", 0))
	require.NoError(t, err)

	last := server.Last()
	require.NotNil(t, last)
	assert.Equal(t, "org-7", last.Header.Get("OpenAI-Organization"))
	assert.Equal(t, "Bearer sk-test", last.Header.Get("Authorization"))
}

func TestCreateCompletionErrorEnvelope(t *testing.T) {
	server := testutil.NewUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))

	a, err := New(Config{APIKey: "gsk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = a.CreateCompletion(context.Background(), openai.NewChatRequest("m", "s", "u", 0))
	require.Error(t, err)
	var upErr *adapter.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusUnauthorized, upErr.Status)
	assert.Contains(t, err.Error(), "Invalid API Key")
}

func TestCreateCompletionNoMessages(t *testing.T) {
	a, err := New(Config{APIKey: "gsk-test"})
	require.NoError(t, err)
	_, err = a.CreateCompletion(context.Background(), openai.ChatCompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no messages")
}

func TestOpenStreamReturnsRawBody(t *testing.T) {
	frames := "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n\n: keep-alive\n\ndata: [DONE]\n\n"
	server := testutil.NewUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{frames[:10], frames[10:]} {
			fmt.Fprint(w, part)
			flusher.Flush()
		}
	}))

	a, err := New(Config{APIKey: "gsk-test", BaseURL: server.URL})
	require.NoError(t, err)

	body, err := a.OpenStream(context.Background(), openai.NewChatRequest("m", "s", "u", 0.2))
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, frames, string(raw))
}

func TestOpenStreamNonSuccessStatus(t *testing.T) {
	server := testutil.NewUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	a, err := New(Config{APIKey: "gsk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = a.OpenStream(context.Background(), openai.NewChatRequest("m", "s", "u", 0.2))
	var upErr *adapter.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)
	assert.Contains(t, err.Error(), "overloaded")
}
