package sse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDeltaShape(t *testing.T) {
	got, err := EncodeDelta("ab")
	require.NoError(t, err)
	assert.Equal(t, "data: {\"choices\":[{\"delta\":{\"content\":\"ab\"}}]}\n\n", string(got))
}

func TestSynthesizeProducesTwoFrames(t *testing.T) {
	body, err := Synthesize("hello\nworld")
	require.NoError(t, err)

	frames := bytes.Split(bytes.TrimSuffix(body, []byte("\n\n")), []byte("\n\n"))
	require.Len(t, frames, 2)

	payload, ok := Payload(string(frames[0]))
	require.True(t, ok)
	delta, err := Delta(payload)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", delta)

	payload, ok = Payload(string(frames[1]))
	require.True(t, ok)
	assert.True(t, IsDone(payload))
}

func TestPayload(t *testing.T) {
	tests := []struct {
		line   string
		want   string
		wantOK bool
	}{
		{line: "data: [DONE]", want: "[DONE]", wantOK: true},
		{line: "data:{\"a\":1}\r", want: "{\"a\":1}", wantOK: true},
		{line: ": keep-alive", wantOK: false},
		{line: "event: ping", wantOK: false},
		{line: "", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := Payload(tt.line)
		assert.Equal(t, tt.wantOK, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestDeltaRejectsInvalidJSON(t *testing.T) {
	_, err := Delta("{not json")
	assert.Error(t, err)

	got, err := Delta(`{"choices":[]}`)
	require.NoError(t, err)
	assert.Empty(t, got)
}
