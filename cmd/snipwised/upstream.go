package main

import (
	"fmt"

	"github.com/snipwise/snipwise/internal/adapter"
	"github.com/snipwise/snipwise/internal/adapter/mock"
	openaiadapter "github.com/snipwise/snipwise/internal/adapter/openai"
	"github.com/snipwise/snipwise/internal/adapter/retry"
	"github.com/snipwise/snipwise/internal/config"
	"github.com/snipwise/snipwise/internal/relay"
)

// newUpstream returns nil when the provider has no credential.
func newUpstream(cfg config.Config, provider, apiKey string) (adapter.Provider, error) {
	var base adapter.Provider
	switch {
	case provider == mock.ProviderName:
		base = mock.New(firstNonEmpty(cfg.Prompt.UserPrefix, relay.DefaultUserPrefix))
	case apiKey == "":
		return nil, nil
	default:
		// the base URL override targets the explain provider only
		baseURL := ""
		if provider == cfg.Provider {
			baseURL = cfg.UpstreamBaseURL
		}
		a, err := openaiadapter.New(openaiadapter.Config{
			Provider:       provider,
			APIKey:         apiKey,
			BaseURL:        baseURL,
			Organization:   cfg.OpenAIOrg,
			RequestTimeout: cfg.UpstreamTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init %s adapter: %w", provider, err)
		}
		base = a
	}
	if cfg.UpstreamRetries == 0 {
		return base, nil
	}
	return retry.New(retry.Config{Next: base, RetryCount: cfg.UpstreamRetries})
}
