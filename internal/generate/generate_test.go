package generate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/openai"
)

type fakeChat struct {
	content string
	model   string
	err     error
	last    openai.ChatCompletionRequest
	calls   int
}

func (f *fakeChat) CreateCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Model:   f.model,
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: "assistant", Content: f.content}}},
	}, nil
}

type outcomes struct {
	generate []string
	upstream []string
}

func (o *outcomes) RecordGenerate(outcome string)           { o.generate = append(o.generate, outcome) }
func (o *outcomes) RecordUpstreamError(provider, op string) { o.upstream = append(o.upstream, provider+"/"+op) }

func strPtr(s string) *string { return &s }

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "sort a list\nLanguage: auto\nFramework: none\nContext: ",
		UserMessage(Request{Prompt: "sort a list"}))
	assert.Equal(t, "sort a list\nLanguage: go\nFramework: chi\nContext: http handler",
		UserMessage(Request{Prompt: "sort a list", Language: strPtr("go"), Framework: strPtr("chi"), Context: strPtr("http handler")}))
	assert.Equal(t, "p\nLanguage: \nFramework: none\nContext: ",
		UserMessage(Request{Prompt: "p", Language: strPtr("")}), "explicit empty values are kept")
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"fenced with language", "Here:\n```go\nfmt.Println(1)\n```\nDone.", "fmt.Println(1)\n"},
		{"fenced without language", "```\nx = 1\n```", "x = 1\n"},
		{"first block wins", "```py\na\n```\n```py\nb\n```", "a\n"},
		{"no fence", "just prose", "just prose"},
		{"unterminated fence", "```go\nfmt.Println(1)", "```go\nfmt.Println(1)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractCode(tc.content))
		})
	}
}

func TestGenerate(t *testing.T) {
	chat := &fakeChat{content: "```js\nconsole.log(1)\n```", model: "gpt-4o-mini-2024"}
	obs := &outcomes{}
	g := New(Config{Provider: "openai", Model: "gpt-4o-mini"}, chat, obs, nil)

	resp, err := g.Generate(context.Background(), Request{Prompt: "log one", Language: strPtr("js")})
	require.NoError(t, err)
	assert.Equal(t, Response{Code: "console.log(1)\n", Model: "gpt-4o-mini-2024"}, resp)

	require.Len(t, chat.last.Messages, 2)
	assert.Equal(t, SystemPrompt, chat.last.Messages[0].Content)
	assert.Equal(t, "log one\nLanguage: js\nFramework: none\nContext: ", chat.last.Messages[1].Content)
	assert.Equal(t, "gpt-4o-mini", chat.last.Model)
	require.NotNil(t, chat.last.Temperature)
	assert.InDelta(t, 0.2, *chat.last.Temperature, 1e-9)
	assert.Equal(t, []string{"ok"}, obs.generate)
}

func TestGenerateUnknownModel(t *testing.T) {
	g := New(Config{}, &fakeChat{content: "x"}, nil, nil)
	resp, err := g.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", resp.Model)
	assert.Equal(t, "x", resp.Code)
}

func TestGenerateErrors(t *testing.T) {
	obs := &outcomes{}
	chat := &fakeChat{err: &adapter.UpstreamError{Provider: "openai", Status: 401, Message: "bad key"}}
	g := New(Config{Provider: "openai"}, chat, obs, nil)

	_, err := g.Generate(context.Background(), Request{Prompt: "  "})
	assert.ErrorIs(t, err, ErrMissingPrompt)
	assert.Zero(t, chat.calls)

	_, err = g.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "upstream error: "))
	var upErr *adapter.UpstreamError
	assert.True(t, errors.As(err, &upErr))

	_, err = New(Config{}, nil, obs, nil).Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoUpstream)

	assert.Equal(t, []string{"invalid", "upstream_error", "unconfigured"}, obs.generate)
	assert.Equal(t, []string{"openai/generate"}, obs.upstream)
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		chat     *fakeChat
		wantCode int
		wantBody string
	}{
		{"preflight", http.MethodOptions, "", &fakeChat{}, http.StatusOK, ""},
		{"wrong method", http.MethodGet, "", &fakeChat{}, http.StatusMethodNotAllowed, `{"error":"Method Not Allowed"}`},
		{"bad json", http.MethodPost, "{", &fakeChat{}, http.StatusBadRequest, `{"error":"Invalid JSON body"}`},
		{"missing prompt", http.MethodPost, `{"language":"go"}`, &fakeChat{}, http.StatusBadRequest, `{"error":"Missing prompt"}`},
		{"upstream failure", http.MethodPost, `{"prompt":"p"}`, &fakeChat{err: errors.New("dial tcp: refused")}, http.StatusInternalServerError, `{"error":"upstream error: dial tcp: refused"}`},
		{"ok", http.MethodPost, `{"prompt":"p"}`, &fakeChat{content: "```\nok\n```", model: "m"}, http.StatusOK, `{"code":"ok\n","model":"m"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := New(Config{}, tc.chat, nil, nil).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tc.method, "/functions/v1/ai-generate", strings.NewReader(tc.body)))

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			if tc.wantBody == "" {
				assert.Empty(t, rec.Body.String())
			} else {
				assert.JSONEq(t, tc.wantBody, rec.Body.String())
			}
		})
	}
}
