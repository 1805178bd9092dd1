package mock

import (
	"context"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipwise/snipwise/internal/openai"
)

func TestExplanation(t *testing.T) {
	got := Explanation("print(1)")
	assert.Equal(t, "**Mock explanation:**\n\n```\nprint(1)\n```\nThis code likely prints, computes, or transforms data.", got)
}

func TestExplanationTruncatesByRune(t *testing.T) {
	content := strings.Repeat("é", 500)
	got := Explanation(content)
	require.True(t, utf8.ValidString(got))
	assert.Equal(t, 400, strings.Count(got, "é"))
}

func TestCreateCompletionStripsPrefix(t *testing.T) {
	a := New("Explain clearly and briefly:\n\n")
	resp, err := a.CreateCompletion(context.Background(), openai.NewChatRequest("m", "sys", "Explain clearly and briefly:\n\nx := 1", 0.2))
	require.NoError(t, err)
	assert.Equal(t, Explanation("x := 1"), resp.FirstContent())
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.NotZero(t, resp.Usage.TotalTokens)
}

func TestCreateCompletionNoMessages(t *testing.T) {
	_, err := New("").CreateCompletion(context.Background(), openai.ChatCompletionRequest{})
	require.Error(t, err)
}

func TestOpenStream(t *testing.T) {
	body, err := New("").OpenStream(context.Background(), openai.NewChatRequest("m", "s", "abc", 0))
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "data: "))
	assert.True(t, strings.HasSuffix(string(raw), "data: [DONE]\n\n"))
}
