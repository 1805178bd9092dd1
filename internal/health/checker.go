// Package health reports the state of the daemon's stores and upstream provider.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/snipwise/snipwise/internal/version"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Component kinds.
const (
	KindDatabase = "database"
	KindCache    = "cache"
	KindHTTP     = "http"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component represents a checked dependency.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"`
	CheckResult
}

// Pinger is satisfied by the snippet and user stores and the redis rate limit store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type pingTarget struct {
	name     string
	kind     string
	critical bool
	pinger   Pinger
}

// Upstream describes the LLM provider the relay talks to.
type Upstream struct {
	Name       string
	BaseURL    string
	Configured bool
	// Probe issues a GET against BaseURL; otherwise only configuration is reported.
	Probe bool
}

// Checker performs health checks on system components.
type Checker struct {
	mu         sync.RWMutex
	components []Component

	targets    []pingTarget
	upstream   *Upstream
	httpClient *http.Client

	pingTimeout time.Duration
	maxLatency  time.Duration
}

// Config holds health checker configuration.
type Config struct {
	Upstream *Upstream

	PingTimeout time.Duration
	HTTPTimeout time.Duration
	// MaxPingLatency marks a reachable store as degraded when exceeded.
	MaxPingLatency time.Duration
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxPingLatency == 0 {
		cfg.MaxPingLatency = 100 * time.Millisecond
	}
	return &Checker{
		upstream:    cfg.Upstream,
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		pingTimeout: cfg.PingTimeout,
		maxLatency:  cfg.MaxPingLatency,
	}
}

// AddPinger registers a store. A failing critical store makes the daemon unhealthy;
// any other failure only degrades it.
func (c *Checker) AddPinger(name, kind string, critical bool, p Pinger) {
	if p == nil {
		return
	}
	c.mu.Lock()
	c.targets = append(c.targets, pingTarget{name: name, kind: kind, critical: critical, pinger: p})
	c.mu.Unlock()
}

// Check runs all checks concurrently and returns the overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	targets := append([]pingTarget(nil), c.targets...)
	c.mu.RUnlock()

	n := len(targets)
	if c.upstream != nil {
		n++
	}
	components := make([]Component, n)
	critical := make([]bool, n)
	var wg sync.WaitGroup
	for i, t := range targets {
		critical[i] = t.critical
		wg.Add(1)
		go func() {
			defer wg.Done()
			components[i] = c.ping(ctx, t)
		}()
	}
	if c.upstream != nil {
		up := *c.upstream
		wg.Add(1)
		go func() {
			defer wg.Done()
			components[n-1] = c.checkUpstream(ctx, up)
		}()
	}
	wg.Wait()

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return overall(components, critical)
}

func (c *Checker) ping(ctx context.Context, t pingTarget) Component {
	comp := Component{Name: t.name, Type: t.kind, CheckResult: CheckResult{Timestamp: time.Now()}}

	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	start := time.Now()
	err := t.pinger.Ping(pingCtx)
	comp.Latency = time.Since(start)

	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Unreachable"
	case comp.Latency > c.maxLatency:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", comp.Latency)
	default:
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

func (c *Checker) checkUpstream(ctx context.Context, up Upstream) Component {
	comp := Component{Name: up.Name, Type: KindHTTP, CheckResult: CheckResult{Timestamp: time.Now()}}
	if !up.Configured {
		comp.Status = StatusDegraded
		comp.Message = "No credential configured; explain answers with mock output"
		return comp
	}
	if !up.Probe || up.BaseURL == "" {
		comp.Status = StatusHealthy
		comp.Message = "Configured"
		return comp
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, up.BaseURL, nil)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		return comp
	}
	resp, err := c.httpClient.Do(req)
	comp.Latency = time.Since(start)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "Endpoint unreachable"
		return comp
	}
	defer resp.Body.Close()

	// Any HTTP answer counts as reachable.
	comp.Status = StatusHealthy
	comp.Message = fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	return comp
}

func overall(components []Component, critical []bool) HealthStatus {
	status := StatusHealthy
	for i, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			if critical[i] {
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return HealthStatus{
		Status:     status,
		Version:    version.Info(),
		Timestamp:  time.Now(),
		Components: components,
	}
}

// HealthStatus represents the overall health of the daemon.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Version    string      `json:"version"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// LastComponents returns the components of the most recent check.
func (c *Checker) LastComponents() []Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Component(nil), c.components...)
}

// Handler serves the health report. Unhealthy maps to 503; degraded still answers 200.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs := c.Check(r.Context())
		code := http.StatusOK
		if hs.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(hs)
	})
}
