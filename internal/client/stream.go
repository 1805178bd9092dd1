package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/snipwise/snipwise/internal/sse"
)

const explainPath = "/functions/v1/explain-snippet"

// ErrEmptyContent is returned before any request is made for blank content.
var ErrEmptyContent = errors.New("content is empty")

// ExplainStream requests a streamed explanation and calls onDelta for every
// non-empty content delta, in order of receipt. It returns nil after the
// [DONE] frame or at end of stream.
func (c *Client) ExplainStream(ctx context.Context, content string, onDelta func(string)) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	req, err := c.newRequest(ctx, http.MethodPost, explainPath+"?stream=1", map[string]string{"content": content})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", sse.ContentType)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("explain stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == http.NoBody {
		data, _ := io.ReadAll(resp.Body)
		return &HTTPError{Status: resp.StatusCode, Body: string(data)}
	}
	return Consume(resp.Body, onDelta)
}

// Consume reads an event stream from r. Multi-byte characters split across
// reads are reassembled by an incremental UTF-8 decoder, and a partial line
// is carried over until its newline arrives. Lines other than `data:` lines
// and frames that are not valid JSON are skipped.
func Consume(r io.Reader, onDelta func(string)) error {
	dec := transform.NewReader(r, unicode.UTF8.NewDecoder())
	buf := make([]byte, 4096)
	var carry strings.Builder
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			// only the new text is scanned; a long unterminated line just grows carry
			if cut := strings.LastIndexByte(chunk, '\n'); cut < 0 {
				carry.WriteString(chunk)
			} else {
				carry.WriteString(chunk[:cut])
				complete := carry.String()
				carry.Reset()
				carry.WriteString(chunk[cut+1:])
				if consumeLines(complete, onDelta) {
					return nil
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("explain stream: read: %w", err)
		}
	}
}

// consumeLines handles newline-separated complete lines and reports whether
// the done frame was seen.
func consumeLines(text string, onDelta func(string)) bool {
	for _, line := range strings.Split(text, "\n") {
		payload, ok := sse.Payload(line)
		if !ok {
			continue
		}
		if sse.IsDone(payload) {
			return true
		}
		delta, err := sse.Delta(payload)
		if err != nil {
			continue
		}
		if delta != "" && onDelta != nil {
			onDelta(delta)
		}
	}
	return false
}
