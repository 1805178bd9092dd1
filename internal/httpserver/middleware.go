package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/auth"
	"github.com/snipwise/snipwise/internal/ratelimit"
	"github.com/snipwise/snipwise/internal/relay"
	"github.com/snipwise/snipwise/internal/userstore"
)

type access int

const (
	// accessAnon accepts the anon key or a session token.
	accessAnon access = iota
	// accessUser accepts session tokens of active users only.
	accessUser
)

var (
	errMissingToken = errors.New("missing bearer token")
	errAuthRequired = errors.New("authentication required")
	errUserInactive = errors.New("user inactive")
)

type userContextKey struct{}

type requestInfoKey struct{}

// requestInfo is filled in by inner middleware for the access log.
type requestInfo struct {
	userID string
}

func userFromContext(ctx context.Context) *userstore.User {
	u, _ := ctx.Value(userContextKey{}).(*userstore.User)
	return u
}

// requestToken reads the bearer token, falling back to the apikey header.
func requestToken(r *http.Request) string {
	if tok := auth.BearerToken(r); tok != "" {
		return tok
	}
	return strings.TrimSpace(r.Header.Get("apikey"))
}

// requireToken rejects requests without a token of the given access level.
// Preflight requests pass through.
func (s *Server) requireToken(level access) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			raw := requestToken(r)
			if raw == "" {
				s.respondError(w, http.StatusUnauthorized, errMissingToken)
				return
			}
			claims, err := s.auth.ValidateToken(raw)
			if err != nil {
				s.respondError(w, http.StatusUnauthorized, err)
				return
			}
			ctx := auth.WithClaims(r.Context(), claims)
			if claims.IsAnon() {
				if level == accessUser {
					s.respondError(w, http.StatusUnauthorized, errAuthRequired)
					return
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			user, status, err := s.sessionUser(ctx, claims)
			if err != nil {
				s.respondError(w, status, err)
				return
			}
			if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
				info.userID = user.ID.String()
			}
			ctx = context.WithValue(ctx, userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// optionalToken attaches valid claims when present and never rejects.
func (s *Server) optionalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := requestToken(r); raw != "" {
			if claims, err := s.auth.ValidateToken(raw); err == nil {
				r = r.WithContext(auth.WithClaims(r.Context(), claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionUser(ctx context.Context, claims *auth.Claims) (*userstore.User, int, error) {
	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, http.StatusUnauthorized, auth.ErrInvalidToken
	}
	user, err := s.users.Get(ctx, id)
	if errors.Is(err, userstore.ErrNotFound) {
		return nil, http.StatusUnauthorized, userstore.ErrNotFound
	}
	if err != nil {
		s.log.WithError(err).Error("load session user")
		return nil, http.StatusInternalServerError, errors.New("internal error")
	}
	if !user.Active() {
		return nil, http.StatusForbidden, errUserInactive
	}
	return user, 0, nil
}

func (s *Server) limit(scope string) func(http.Handler) http.Handler {
	if s.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	var observer ratelimit.Observer
	if s.metrics != nil {
		observer = s.metrics
	}
	mw := ratelimit.NewMiddleware(s.limiter, scope, ratelimit.ClientKey, observer, s.log.WithField("scope", scope))
	return mw.Wrap
}

// functionCORS sets the cross-origin headers before authentication so that
// browsers can read rejections too.
func functionCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relay.SetCORS(w.Header())
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one access log line per request and records request metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		lat := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.RecordRequest(route, r.Method, status, lat)
		}

		entry := s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"route":      route,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"latency_ms": lat.Milliseconds(),
			"ip":         r.RemoteAddr,
		})
		if info.userID != "" {
			entry = entry.WithField("user_id", info.userID)
		}
		switch {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	})
}
