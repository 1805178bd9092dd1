package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipwise/snipwise/internal/adapter/mock"
	"github.com/snipwise/snipwise/internal/sse"
)

func serve(t *testing.T, r *Relay, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Handler().ServeHTTP(rec, req)
	return rec
}

func assertCORS(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", h.Get("Access-Control-Allow-Headers"))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHandlerPreflight(t *testing.T) {
	rec := serve(t, New(Config{}, nil), http.MethodOptions, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
	assertCORS(t, rec.Header())
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	rec := serve(t, New(Config{}, nil), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method Not Allowed", decodeError(t, rec))
	assertCORS(t, rec.Header())
}

func TestHandlerRejectsBadInput(t *testing.T) {
	up := &fakeProvider{completion: "x"}
	r := New(Config{}, up)

	tests := []struct {
		name   string
		target string
		body   string
		want   string
	}{
		{"malformed json", "/", "{", "Invalid JSON body"},
		{"missing content", "/", `{}`, "Missing content"},
		{"blank content", "/", `{"content":"  "}`, "Missing content"},
		{"blank content stream", "/?stream=1", `{"content":""}`, "Missing content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, r, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec))
			assertCORS(t, rec.Header())
		})
	}
	assert.Zero(t, up.calls())
}

func TestHandlerNonStream(t *testing.T) {
	rec := serve(t, New(Config{}, &fakeProvider{completion: "## Summary"}), http.MethodPost, "/", `{"content":"x := 1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec.Header())

	var body ExplainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "## Summary", body.Markdown)
}

func TestHandlerNonStreamMasksUpstreamFailure(t *testing.T) {
	up := &fakeProvider{completeErr: assert.AnError}
	rec := serve(t, New(Config{}, up), http.MethodPost, "/", `{"content":"x := 1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body ExplainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, mock.Explanation("x := 1"), body.Markdown)
}

func TestHandlerStreamForcedMock(t *testing.T) {
	rec := serve(t, New(Config{ForceMock: true}, nil), http.MethodPost, "/?stream=1", `{"content":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sse.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assertCORS(t, rec.Header())

	want, err := sse.Synthesize(mock.Explanation("x"))
	require.NoError(t, err)
	assert.Equal(t, string(want), rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestHandlerStreamProxies(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n"
	rec := serve(t, New(Config{}, &fakeProvider{streamBody: []byte(body)}), http.MethodPost, "/?stream=1", `{"content":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
}

func TestHandlerRecoversPanics(t *testing.T) {
	rec := serve(t, New(Config{}, &fakeProvider{panicMsg: "kaboom"}), http.MethodPost, "/", `{"content":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "kaboom", decodeError(t, rec))
	assertCORS(t, rec.Header())
}
