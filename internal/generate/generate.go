// Package generate implements the ai-generate function: a single chat
// completion whose first fenced code block is returned as code.
package generate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/logging"
	"github.com/snipwise/snipwise/internal/openai"
)

const (
	SystemPrompt       = "You are a pragmatic code assistant. Prefer idiomatic, minimal solutions."
	DefaultTemperature = 0.2
	unknownModel       = "unknown"
)

var (
	// ErrMissingPrompt is returned when the prompt is empty.
	ErrMissingPrompt = errors.New("missing prompt")
	// ErrNoUpstream is returned when no provider credential is configured.
	ErrNoUpstream = errors.New("no generate provider configured")
)

var fence = regexp.MustCompile("```[a-zA-Z]*\n([\\s\\S]*?)```")

// Request is the ai-generate payload.
type Request struct {
	Prompt    string  `json:"prompt"`
	Language  *string `json:"language,omitempty"`
	Framework *string `json:"framework,omitempty"`
	Context   *string `json:"context,omitempty"`
}

// Response carries the extracted code and the model that produced it.
type Response struct {
	Code  string `json:"code"`
	Model string `json:"model"`
}

// Observer is notified of each outcome. *metrics.Collector satisfies it.
type Observer interface {
	RecordGenerate(outcome string)
	RecordUpstreamError(provider, op string)
}

type nopObserver struct{}

func (nopObserver) RecordGenerate(string)              {}
func (nopObserver) RecordUpstreamError(string, string) {}

// Config is fixed at construction time.
type Config struct {
	Provider    string
	Model       string
	Temperature float64
}

// Generator calls the upstream once per request. There is no mock fallback.
type Generator struct {
	cfg      Config
	chat     adapter.ChatAdapter
	observer Observer
	log      *logrus.Entry
}

// New creates a Generator. chat may be nil, in which case every call fails with ErrNoUpstream.
func New(cfg Config, chat adapter.ChatAdapter, observer Observer, log *logrus.Entry) *Generator {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Generator{cfg: cfg, chat: chat, observer: observer, log: log}
}

// Generate asks the upstream for code and extracts the first fenced block.
func (g *Generator) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		g.observer.RecordGenerate("invalid")
		return Response{}, ErrMissingPrompt
	}
	if g.chat == nil {
		g.observer.RecordGenerate("unconfigured")
		return Response{}, ErrNoUpstream
	}

	creq := openai.NewChatRequest(g.cfg.Model, SystemPrompt, UserMessage(req), g.cfg.Temperature)
	resp, err := g.chat.CreateCompletion(ctx, creq)
	if err != nil {
		g.observer.RecordGenerate("upstream_error")
		g.observer.RecordUpstreamError(g.cfg.Provider, "generate")
		g.log.WithError(err).Warn("generate: upstream completion failed")
		return Response{}, fmt.Errorf("upstream error: %w", err)
	}

	model := resp.Model
	if model == "" {
		model = unknownModel
	}
	g.observer.RecordGenerate("ok")
	return Response{Code: ExtractCode(resp.FirstContent()), Model: model}, nil
}

// UserMessage renders the prompt with its language, framework and context lines.
func UserMessage(req Request) string {
	return fmt.Sprintf("%s\nLanguage: %s\nFramework: %s\nContext: %s",
		req.Prompt, orDefault(req.Language, "auto"), orDefault(req.Framework, "none"), orDefault(req.Context, ""))
}

// ExtractCode returns the body of the first fenced block, or content unchanged when there is none.
func ExtractCode(content string) string {
	if m := fence.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

func orDefault(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}
