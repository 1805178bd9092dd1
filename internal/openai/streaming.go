package openai

// ChatCompletionChunk represents one SSE frame of a streaming response.
// Only the fields the explain pipeline relies on are modelled; unknown fields are ignored.
type ChatCompletionChunk struct {
	ID      string                      `json:"id,omitempty"`
	Object  string                      `json:"object,omitempty"`
	Created int64                       `json:"created,omitempty"`
	Model   string                      `json:"model,omitempty"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
}

// ChatCompletionChunkChoice represents a choice in a streaming chunk.
type ChatCompletionChunkChoice struct {
	Index        int              `json:"index,omitempty"`
	Delta        ChatMessageDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason,omitempty"`
}

// ChatMessageDelta represents the incremental content in a stream chunk.
type ChatMessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// NewDeltaChunk builds a single-choice chunk carrying content as its delta.
func NewDeltaChunk(content string) ChatCompletionChunk {
	return ChatCompletionChunk{
		Choices: []ChatCompletionChunkChoice{{Delta: ChatMessageDelta{Content: content}}},
	}
}

// DeltaContent returns the first choice's delta content.
func (c *ChatCompletionChunk) DeltaContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}
