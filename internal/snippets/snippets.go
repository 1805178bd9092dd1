// Package snippets stores user snippets. Every owner-facing operation is
// scoped by user id: a row belonging to someone else is reported as not found.
package snippets

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the snippet is missing or not visible to the caller.
	ErrNotFound = errors.New("snippet not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid snippet")
)

const (
	maxTitleLen = 200
	maxTags     = 20
)

// Snippet is a stored row.
type Snippet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
}

// Input carries the editable fields of a snippet.
type Input struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	IsPublic bool     `json:"is_public"`
}

// Patch carries a partial update; nil fields are left unchanged.
type Patch struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	Tags     *[]string `json:"tags"`
	IsPublic *bool     `json:"is_public"`
}

// Apply returns the input that results from applying p to s.
func (p Patch) Apply(s Snippet) Input {
	in := Input{Title: s.Title, Content: s.Content, Tags: s.Tags, IsPublic: s.IsPublic}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Content != nil {
		in.Content = *p.Content
	}
	if p.Tags != nil {
		in.Tags = *p.Tags
	}
	if p.IsPublic != nil {
		in.IsPublic = *p.IsPublic
	}
	return in
}

// Normalize trims the title and tags, drops empty and duplicate tags and
// validates the result.
func (in Input) Normalize() (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Input{}, &ValidationError{Field: "title", Reason: "is required"}
	}
	if len([]rune(in.Title)) > maxTitleLen {
		return Input{}, &ValidationError{Field: "title", Reason: "is too long"}
	}

	seen := make(map[string]bool, len(in.Tags))
	tags := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		tags = append(tags, tag)
	}
	if len(tags) > maxTags {
		return Input{}, &ValidationError{Field: "tags", Reason: "has too many entries"}
	}
	in.Tags = tags
	return in, nil
}

// ValidationError reports which field failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Unwrap lets errors.Is match ErrInvalid.
func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Store defines persistence behaviour for snippets.
type Store interface {
	// List returns the user's snippets, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]Snippet, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Snippet, error)
	// GetPublic returns a snippet of any owner when it is public.
	GetPublic(ctx context.Context, id uuid.UUID) (*Snippet, error)
	// Create and Update expect normalized input.
	Create(ctx context.Context, userID uuid.UUID, in Input) (*Snippet, error)
	Update(ctx context.Context, userID, id uuid.UUID, in Input) (*Snippet, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Ping(ctx context.Context) error
	Close() error
}
