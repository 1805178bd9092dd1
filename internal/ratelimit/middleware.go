package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/auth"
)

// Observer is notified of rejected requests.
type Observer interface {
	RecordRateLimitHit(scope string)
}

// KeyFunc derives the bucket key of a request.
type KeyFunc func(r *http.Request) string

// ClientKey keys authenticated callers by user id and everyone else by client IP.
func ClientKey(r *http.Request) string {
	if claims, ok := auth.FromContext(r.Context()); ok && claims.UserID() != "" {
		return "user:" + claims.UserID()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware wraps handlers with rate limiting.
type Middleware struct {
	limiter  *Limiter
	scope    string
	key      KeyFunc
	observer Observer
	log      *logrus.Entry
}

// NewMiddleware creates a middleware whose rejections are reported under scope.
// A nil key func defaults to ClientKey.
func NewMiddleware(limiter *Limiter, scope string, key KeyFunc, observer Observer, log *logrus.Entry) *Middleware {
	if key == nil {
		key = ClientKey
	}
	if log == nil {
		log = limiter.log
	}
	return &Middleware{limiter: limiter, scope: scope, key: key, observer: observer, log: log}
}

// Wrap applies the limiter to next. Preflight requests are never counted.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		key := m.key(r)
		d := m.limiter.Allow(r.Context(), key)
		setHeaders(w, d)
		if !d.Allowed {
			if m.observer != nil {
				m.observer.RecordRateLimitHit(m.scope)
			}
			m.log.WithFields(logrus.Fields{"scope": m.scope, "key": key, "path": r.URL.Path}).Info("rate limit exceeded")
			retry := int(math.Ceil(retryAfter(d).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setHeaders follows draft-polli-ratelimit-headers.
func setHeaders(w http.ResponseWriter, d Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatFloat(d.Limit, 'f', 0, 64))
	h.Set("X-RateLimit-Remaining", strconv.FormatFloat(math.Floor(d.Remaining), 'f', 0, 64))
	if d.ResetAfter > 0 {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.ResetAfter).Unix(), 10))
	}
}

// retryAfter is the time until one token is available.
func retryAfter(d Decision) time.Duration {
	if d.Limit <= d.Remaining || d.ResetAfter <= 0 {
		return time.Second
	}
	perToken := float64(d.ResetAfter) / (d.Limit - d.Remaining)
	return time.Duration((1 - d.Remaining) * perToken)
}
