// Package httpserver exposes the daemon's HTTP surface: email login, the
// row-scoped snippet REST API and the explain/generate functions.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/auth"
	"github.com/snipwise/snipwise/internal/logging"
	"github.com/snipwise/snipwise/internal/metrics"
	"github.com/snipwise/snipwise/internal/ratelimit"
	"github.com/snipwise/snipwise/internal/snippets"
	"github.com/snipwise/snipwise/internal/userstore"
)

// Config collects the server's dependencies. Explain, Generate, Health,
// Metrics and Limiter are optional.
type Config struct {
	Auth     *auth.Manager
	Users    userstore.Store
	Snippets snippets.Store

	Explain  http.Handler
	Generate http.Handler
	Health   http.Handler
	Metrics  *metrics.Collector
	Limiter  *ratelimit.Limiter

	Logger *logrus.Entry

	// TokenTTL is the lifetime of session tokens.
	TokenTTL time.Duration
	// EchoCode returns login codes in the OTP response.
	EchoCode bool
	// VerifyFunctionsJWT requires an anon or session token on /functions/v1.
	VerifyFunctionsJWT bool
}

// Server serves the HTTP API.
type Server struct {
	auth     *auth.Manager
	users    userstore.Store
	snippets snippets.Store

	explain  http.Handler
	generate http.Handler
	health   http.Handler
	metrics  *metrics.Collector
	limiter  *ratelimit.Limiter

	log *logrus.Entry

	tokenTTL           time.Duration
	echoCode           bool
	verifyFunctionsJWT bool
}

// New constructs a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("httpserver: auth manager required")
	}
	if cfg.Users == nil || cfg.Snippets == nil {
		return nil, errors.New("httpserver: user and snippet stores required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Server{
		auth:               cfg.Auth,
		users:              cfg.Users,
		snippets:           cfg.Snippets,
		explain:            orNotFound(cfg.Explain),
		generate:           orNotFound(cfg.Generate),
		health:             cfg.Health,
		metrics:            cfg.Metrics,
		limiter:            cfg.Limiter,
		log:                cfg.Logger,
		tokenTTL:           cfg.TokenTTL,
		echoCode:           cfg.EchoCode,
		verifyFunctionsJWT: cfg.VerifyFunctionsJWT,
	}, nil
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/auth/v1", func(a chi.Router) {
		a.With(s.limit("auth")).Post("/otp", s.handleOTP)
		a.With(s.limit("auth")).Post("/verify", s.handleVerify)
		a.With(s.requireToken(accessUser)).Get("/user", s.handleUser)
	})

	r.Route("/rest/v1", func(rest chi.Router) {
		rest.With(s.requireToken(accessAnon)).Get("/public/snippets/{id}", s.handlePublicSnippet)
		rest.Group(func(private chi.Router) {
			private.Use(s.requireToken(accessUser))
			private.Get("/snippets", s.handleListSnippets)
			private.Post("/snippets", s.handleCreateSnippet)
			private.Get("/snippets/{id}", s.handleGetSnippet)
			private.Patch("/snippets/{id}", s.handleUpdateSnippet)
			private.Delete("/snippets/{id}", s.handleDeleteSnippet)
		})
	})

	r.Route("/functions/v1", func(fn chi.Router) {
		fn.Use(functionCORS)
		if s.verifyFunctionsJWT {
			fn.Use(s.requireToken(accessAnon))
		} else {
			fn.Use(s.optionalToken)
		}
		fn.Use(s.limit("functions"))
		fn.Handle("/explain-snippet", s.explain)
		fn.Handle("/ai-generate", s.generate)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		s.health.ServeHTTP(w, r)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

func orNotFound(h http.Handler) http.Handler {
	if h == nil {
		return http.NotFoundHandler()
	}
	return h
}
