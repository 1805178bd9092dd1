package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/snipwise/snipwise/internal/sse"
)

const maxBodyBytes = 1 << 20

// ExplainRequest is the body accepted by the explain endpoint.
type ExplainRequest struct {
	Content string `json:"content"`
}

// ExplainResponse is the non-streaming reply.
type ExplainResponse struct {
	Markdown string `json:"markdown"`
}

// SetCORS adds the permissive cross-origin headers sent on every function response.
func SetCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

// Handler serves the explain function. `?stream=1` selects the event-stream framing.
func (r *Relay) Handler() http.Handler {
	return http.HandlerFunc(r.serveHTTP)
}

func (r *Relay) serveHTTP(w http.ResponseWriter, req *http.Request) {
	SetCORS(w.Header())
	rw := &trackingWriter{ResponseWriter: w}
	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("panic", p).Error("explain: handler panic")
			if !rw.wroteHeader {
				respondJSON(rw, http.StatusInternalServerError, map[string]string{"error": fmt.Sprint(p)})
			}
		}
	}()

	if req.Method == http.MethodOptions {
		rw.WriteHeader(http.StatusOK)
		return
	}
	if req.Method != http.MethodPost {
		respondJSON(rw, http.StatusMethodNotAllowed, map[string]string{"error": "Method Not Allowed"})
		return
	}

	var body ExplainRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&body); err != nil {
		respondJSON(rw, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		respondJSON(rw, http.StatusBadRequest, map[string]string{"error": "Missing content"})
		return
	}

	if req.URL.Query().Get("stream") != "1" {
		res, err := r.Explain(req.Context(), body.Content)
		if err != nil {
			respondJSON(rw, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		respondJSON(rw, http.StatusOK, ExplainResponse{Markdown: res.Markdown})
		return
	}

	h := rw.Header()
	h.Set("Content-Type", sse.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	rw.WriteHeader(http.StatusOK)
	rw.Flush()

	mode, err := r.Stream(req.Context(), rw, body.Content)
	if err != nil {
		r.log.WithError(err).WithField("mode", mode.String()).Warn("explain stream: write failed")
	}
}

func statusFor(err error) int {
	if errors.Is(err, ErrMissingContent) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// trackingWriter remembers whether the status line went out, so a recovered
// panic only writes a JSON error when it still can.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(p)
}

func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
