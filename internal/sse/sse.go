// Package sse encodes and decodes the `data:` frames exchanged between the
// explain relay and its consumers.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/snipwise/snipwise/internal/openai"
)

const (
	// DataPrefix marks a data line.
	DataPrefix = "data:"
	// Done is the payload of the completion frame.
	Done = "[DONE]"
	// ContentType is the media type of an event stream.
	ContentType = "text/event-stream"
)

// EncodeDelta renders a single frame carrying text as choices[0].delta.content.
func EncodeDelta(text string) ([]byte, error) {
	payload, err := json.Marshal(openai.NewDeltaChunk(text))
	if err != nil {
		return nil, fmt.Errorf("sse: encode delta: %w", err)
	}
	return frame(payload), nil
}

// EncodeDone renders the completion frame.
func EncodeDone() []byte {
	return frame([]byte(Done))
}

func frame(payload []byte) []byte {
	out := make([]byte, 0, len(DataPrefix)+len(payload)+3)
	out = append(out, DataPrefix...)
	out = append(out, ' ')
	out = append(out, payload...)
	return append(out, '\n', '\n')
}

// Synthesize renders the two-frame stream used whenever the relay answers with
// a precomputed text instead of an upstream stream.
func Synthesize(text string) ([]byte, error) {
	delta, err := EncodeDelta(text)
	if err != nil {
		return nil, err
	}
	return append(delta, EncodeDone()...), nil
}

// WriteSynthesized writes the output of Synthesize to w.
func WriteSynthesized(w io.Writer, text string) error {
	body, err := Synthesize(text)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// Payload strips the data marker from a complete line. ok is false for lines
// that are not data lines (comments, event names, blank separators).
func Payload(line string) (payload string, ok bool) {
	if !strings.HasPrefix(line, DataPrefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(DataPrefix):]), true
}

// IsDone reports whether payload is the completion sentinel.
func IsDone(payload string) bool {
	return payload == Done
}

// Delta decodes a frame payload and returns choices[0].delta.content.
func Delta(payload string) (string, error) {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", err
	}
	return chunk.DeltaContent(), nil
}
