// Package relay answers explain requests, either by forwarding an upstream
// provider's event stream or by synthesizing an equivalent response.
package relay

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/adapter/mock"
	"github.com/snipwise/snipwise/internal/logging"
	"github.com/snipwise/snipwise/internal/openai"
	"github.com/snipwise/snipwise/internal/sse"
)

const (
	DefaultSystemPrompt = "You are a concise, helpful code explainer."
	DefaultUserPrefix   = "Explain clearly and briefly:\n\n"
	DefaultTemperature  = 0.2
)

// ErrMissingContent is returned for blank explain requests.
var ErrMissingContent = errors.New("missing content")

// Mode records which source produced an explain response.
type Mode int

const (
	// ModeReal means the upstream provider answered.
	ModeReal Mode = iota
	// ModeMockForced means the force-mock switch was on.
	ModeMockForced
	// ModeMockFallback means the upstream was unavailable and mock text was served instead.
	ModeMockFallback
)

func (m Mode) String() string {
	switch m {
	case ModeReal:
		return "real"
	case ModeMockForced:
		return "mock_forced"
	case ModeMockFallback:
		return "mock_fallback"
	default:
		return "unknown"
	}
}

// Config is fixed at construction time.
type Config struct {
	ForceMock    bool
	Model        string
	Temperature  float64
	SystemPrompt string
	UserPrefix   string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.UserPrefix == "" {
		c.UserPrefix = DefaultUserPrefix
	}
	return c
}

// Observer is notified about served responses and masked upstream failures.
// *metrics.Collector satisfies it.
type Observer interface {
	RecordExplain(mode string, stream bool)
	RecordUpstreamError(provider, op string)
}

type nopObserver struct{}

func (nopObserver) RecordExplain(string, bool)         {}
func (nopObserver) RecordUpstreamError(string, string) {}

// Result is a non-streaming explanation.
type Result struct {
	Markdown string
	Mode     Mode
}

// Relay resolves the provider mode for each request. It holds no per-request state.
type Relay struct {
	cfg      Config
	upstream adapter.Provider
	observer Observer
	log      *logrus.Entry
}

// Option customises a Relay.
type Option func(*Relay)

// WithObserver sets the observer notified after every response.
func WithObserver(o Observer) Option {
	return func(r *Relay) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Relay. A nil upstream means no provider credential is
// configured, so every response is served from mock text.
func New(cfg Config, upstream adapter.Provider, opts ...Option) *Relay {
	r := &Relay{
		cfg:      cfg.withDefaults(),
		upstream: upstream,
		observer: nopObserver{},
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the relay configuration with defaults applied.
func (r *Relay) Config() Config { return r.cfg }

func (r *Relay) request(content string, stream bool) openai.ChatCompletionRequest {
	req := openai.NewChatRequest(r.cfg.Model, r.cfg.SystemPrompt, r.cfg.UserPrefix+content, r.cfg.Temperature)
	req.Stream = stream
	return req
}

// Explain returns a markdown explanation of content. The markdown is never
// empty: forced mock, a missing provider, an upstream failure or an empty
// completion all yield mock text.
func (r *Relay) Explain(ctx context.Context, content string) (Result, error) {
	if strings.TrimSpace(content) == "" {
		return Result{}, ErrMissingContent
	}
	res := r.explain(ctx, content)
	r.observer.RecordExplain(res.Mode.String(), false)
	return res, nil
}

func (r *Relay) explain(ctx context.Context, content string) Result {
	if r.cfg.ForceMock {
		return Result{Markdown: mock.Explanation(content), Mode: ModeMockForced}
	}
	if r.upstream == nil {
		r.log.Warn("explain: no upstream credential configured, serving mock")
		return Result{Markdown: mock.Explanation(content), Mode: ModeMockFallback}
	}

	resp, err := r.upstream.CreateCompletion(ctx, r.request(content, false))
	if err != nil {
		r.observer.RecordUpstreamError(r.upstream.Name(), "complete")
		r.log.WithError(err).Warn("explain: upstream completion failed, serving mock")
		return Result{Markdown: mock.Explanation(content), Mode: ModeMockFallback}
	}
	markdown := resp.FirstContent()
	if markdown == "" {
		r.log.Warn("explain: upstream returned empty completion, serving mock")
		return Result{Markdown: mock.Explanation(content), Mode: ModeMockFallback}
	}
	return Result{Markdown: markdown, Mode: ModeReal}
}

// flusher matches http.Flusher without tying Stream to net/http.
type flusher interface {
	Flush()
}

// Stream writes an event stream for content to w. When the upstream stream
// opens, its body is forwarded unmodified; otherwise a delta frame and the
// done frame are synthesized from the non-streaming result. Errors while
// forwarding are logged and end the stream without being returned.
func (r *Relay) Stream(ctx context.Context, w io.Writer, content string) (Mode, error) {
	if strings.TrimSpace(content) == "" {
		return ModeMockFallback, ErrMissingContent
	}

	var mode Mode
	switch {
	case r.cfg.ForceMock:
		mode = ModeMockForced
	case r.upstream == nil:
		r.log.Warn("explain stream: no upstream credential configured, serving mock")
		mode = ModeMockFallback
	default:
		body, err := r.upstream.OpenStream(ctx, r.request(content, true))
		if err == nil {
			r.observer.RecordExplain(ModeReal.String(), true)
			r.forward(w, body)
			return ModeReal, nil
		}
		r.observer.RecordUpstreamError(r.upstream.Name(), "stream")
		r.log.WithError(err).Warn("explain stream: upstream stream unavailable, falling back to completion")

		res := r.explain(ctx, content)
		r.observer.RecordExplain(res.Mode.String(), true)
		return res.Mode, r.writeSynthesized(w, res.Markdown)
	}

	r.observer.RecordExplain(mode.String(), true)
	return mode, r.writeSynthesized(w, mock.Explanation(content))
}

func (r *Relay) writeSynthesized(w io.Writer, text string) error {
	if err := sse.WriteSynthesized(w, text); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}

func (r *Relay) forward(w io.Writer, body io.ReadCloser) {
	defer body.Close()
	f, _ := w.(flusher)
	buf := make([]byte, 8192)
	var total int64
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				r.log.WithError(werr).Warn("explain stream: client write failed")
				return
			}
			total += int64(n)
			if f != nil {
				f.Flush()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.WithError(err).Warn("explain stream: upstream read failed")
			}
			r.log.WithField("bytes", total).Debug("explain stream: forwarded")
			return
		}
	}
}
