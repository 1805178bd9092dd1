package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/adapter"
	openaiadapter "github.com/snipwise/snipwise/internal/adapter/openai"
	"github.com/snipwise/snipwise/internal/auth"
	"github.com/snipwise/snipwise/internal/config"
	"github.com/snipwise/snipwise/internal/generate"
	"github.com/snipwise/snipwise/internal/health"
	"github.com/snipwise/snipwise/internal/httpserver"
	"github.com/snipwise/snipwise/internal/logging"
	"github.com/snipwise/snipwise/internal/metrics"
	"github.com/snipwise/snipwise/internal/ratelimit"
	"github.com/snipwise/snipwise/internal/relay"
	"github.com/snipwise/snipwise/internal/snippets"
	snippetspostgres "github.com/snipwise/snipwise/internal/snippets/postgres"
	snippetsqlite "github.com/snipwise/snipwise/internal/snippets/sqlite"
	"github.com/snipwise/snipwise/internal/userstore"
	userpostgres "github.com/snipwise/snipwise/internal/userstore/postgres"
	usersqlite "github.com/snipwise/snipwise/internal/userstore/sqlite"
	"github.com/snipwise/snipwise/internal/version"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		File:     cfg.LogFile,
		MaxBytes: cfg.LogMaxBytes,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("snipwised stopped")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	log := logging.Component(logger, "snipwised")
	log.WithFields(logrus.Fields{
		"version":     version.FullInfo(),
		"environment": cfg.Environment,
		"provider":    cfg.Provider,
	}).Info("starting")

	users, store, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer users.Close()
	defer store.Close()

	authManager := auth.NewManager(cfg.AuthSecret, cfg.OTPTTL)
	if err := logAnonKey(cfg, authManager, log); err != nil {
		return err
	}

	collector := metrics.NewCollector()

	rlStore, redisPinger, err := openRateLimitStore(cfg, log)
	if err != nil {
		return err
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Store:  rlStore,
		Window: cfg.RateLimitWindow,
		Max:    cfg.RateLimitMax,
		Logger: logging.Component(logger, "ratelimit"),
	})
	defer limiter.Close()

	upstream, err := newUpstream(cfg, cfg.Provider, cfg.UpstreamAPIKey())
	if err != nil {
		return err
	}
	relayCfg := cfg.Relay()
	if upstream == nil && !relayCfg.ForceMock {
		log.Warn("no credential for explain provider; explanations will be mock output")
	}
	explainer := relay.New(relayCfg, upstream,
		relay.WithObserver(collector),
		relay.WithLogger(logging.Component(logger, "relay")),
	)

	var chat adapter.ChatAdapter
	genUpstream, err := newUpstream(cfg, cfg.GenerateProvider, cfg.GenerateAPIKey())
	if err != nil {
		return err
	}
	if genUpstream != nil {
		chat = genUpstream
	}
	generator := generate.New(generate.Config{
		Provider: cfg.GenerateProvider,
		Model:    firstNonEmpty(cfg.GenerateModel, openaiadapter.DefaultModel(cfg.GenerateProvider)),
	}, chat, collector, logging.Component(logger, "generate"))

	checker := health.New(health.Config{
		Upstream: &health.Upstream{
			Name:       cfg.Provider,
			BaseURL:    cfg.UpstreamBaseURL,
			Configured: upstream != nil || relayCfg.ForceMock,
		},
	})
	checker.AddPinger("identity", health.KindDatabase, true, users)
	checker.AddPinger("snippets", health.KindDatabase, true, store)
	if redisPinger != nil {
		checker.AddPinger("ratelimit", health.KindCache, false, redisPinger)
	}

	srv, err := httpserver.New(httpserver.Config{
		Auth:               authManager,
		Users:              users,
		Snippets:           store,
		Explain:            explainer.Handler(),
		Generate:           generator.Handler(),
		Health:             checker.Handler(),
		Metrics:            collector,
		Limiter:            limiter,
		Logger:             logging.Component(logger, "http"),
		TokenTTL:           cfg.TokenTTL,
		EchoCode:           cfg.AuthEchoCode,
		VerifyFunctionsJWT: cfg.FunctionsVerifyJWT,
	})
	if err != nil {
		return err
	}

	// No WriteTimeout: explain streams stay open for as long as the upstream generates.
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddress).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	return nil
}

// openStores uses postgres when a database URL is configured and local
// sqlite files otherwise.
func openStores(cfg config.Config, log *logrus.Entry) (userstore.Store, snippets.Store, error) {
	if cfg.DatabaseURL != "" {
		users, err := userpostgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open identity store: %w", err)
		}
		store, err := snippetspostgres.New(cfg.DatabaseURL)
		if err != nil {
			_ = users.Close()
			return nil, nil, fmt.Errorf("open snippet store: %w", err)
		}
		log.Info("using postgres storage")
		return users, store, nil
	}

	users, err := usersqlite.New(cfg.IdentityPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open identity store: %w", err)
	}
	store, err := snippetsqlite.New(cfg.SnippetsPath)
	if err != nil {
		_ = users.Close()
		return nil, nil, fmt.Errorf("open snippet store: %w", err)
	}
	log.WithFields(logrus.Fields{"identity": cfg.IdentityPath, "snippets": cfg.SnippetsPath}).Info("using sqlite storage")
	return users, store, nil
}

// logAnonKey checks a configured anon key, or derives one from the secret
// and logs it so clients can be configured.
func logAnonKey(cfg config.Config, m *auth.Manager, log *logrus.Entry) error {
	if cfg.AnonKey != "" {
		claims, err := m.ValidateToken(cfg.AnonKey)
		if err != nil || !claims.IsAnon() {
			return errors.New("configured anon key is not an anon token signed with the auth secret")
		}
		return nil
	}
	key, err := m.AnonKey()
	if err != nil {
		return fmt.Errorf("derive anon key: %w", err)
	}
	log.WithField("anon_key", key).Info("derived anon key; set SNIPWISE_ANON_KEY for clients")
	return nil
}

// openRateLimitStore returns the shared redis store when configured. The
// second value is non-nil only for redis so it can be health checked.
func openRateLimitStore(cfg config.Config, log *logrus.Entry) (ratelimit.Store, health.Pinger, error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryStore(), nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rs, err := ratelimit.NewRedisStore(ctx, ratelimit.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.WithField("addr", cfg.RedisAddr).Info("rate limits shared through redis")
	return rs, rs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
