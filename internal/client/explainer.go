package client

import (
	"context"
	"strings"
	"sync"
)

// StreamFunc streams an explanation of content, calling onDelta per delta.
// (*Client).ExplainStream satisfies it.
type StreamFunc func(ctx context.Context, content string, onDelta func(string)) error

// Explainer starts explain runs keyed by snippet id. Starting a run for a
// key supersedes the previous run for that key.
type Explainer struct {
	stream StreamFunc

	// mu guards gens. Deliveries hold it for reading so that a supersede
	// waits for an in-flight callback and no delta follows it.
	mu   sync.RWMutex
	gens map[string]uint64
}

// NewExplainer creates an Explainer streaming through c.
func NewExplainer(c *Client) *Explainer {
	return NewExplainerFunc(c.ExplainStream)
}

// NewExplainerFunc creates an Explainer around an arbitrary stream function.
func NewExplainerFunc(stream StreamFunc) *Explainer {
	return &Explainer{stream: stream, gens: make(map[string]uint64)}
}

func (e *Explainer) next(key string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gens[key]++
	return e.gens[key]
}

func (e *Explainer) current(key string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gens[key]
}

// deliver appends delta and runs onDelta unless r has been superseded.
func (e *Explainer) deliver(r *Run, delta string, onDelta func(delta, text string)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gens[r.key] != r.gen {
		return
	}
	text := r.append(delta)
	if onDelta != nil {
		onDelta(delta, text)
	}
}

// Start launches a run in its own goroutine. onDelta receives each delta and
// the accumulated text so far; it is never called once the run is superseded.
// onDelta must not call Start on the same Explainer.
func (e *Explainer) Start(ctx context.Context, key, content string, onDelta func(delta, text string)) *Run {
	r := &Run{key: key, gen: e.next(key), owner: e, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.err = e.stream(ctx, content, func(delta string) {
			e.deliver(r, delta, onDelta)
		})
	}()
	return r
}

// Run is one explain invocation. Its accumulated text starts empty and only grows.
type Run struct {
	key   string
	gen   uint64
	owner *Explainer

	mu   sync.Mutex
	text strings.Builder

	done chan struct{}
	err  error
}

// Key returns the key the run was started for.
func (r *Run) Key() string { return r.key }

// Superseded reports whether a newer run was started for the same key.
func (r *Run) Superseded() bool {
	return r.owner.current(r.key) != r.gen
}

func (r *Run) append(delta string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text.WriteString(delta)
	return r.text.String()
}

// Text returns the text accumulated so far.
func (r *Run) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.String()
}

// Done is closed when the underlying read loop finishes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the read loop finishes and returns its error.
func (r *Run) Wait() error {
	<-r.done
	return r.err
}
