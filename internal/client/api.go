package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// User is the authenticated account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Challenge is returned when a one-time code was issued.
type Challenge struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	// Code is only populated when the daemon echoes codes (development).
	Code string `json:"code,omitempty"`
}

// Session is the result of a successful verification.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

// Snippet mirrors the stored row.
type Snippet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
}

// SnippetInput carries the editable fields.
type SnippetInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	IsPublic bool     `json:"is_public"`
}

// GenerateRequest is the ai-generate payload.
type GenerateRequest struct {
	Prompt    string `json:"prompt"`
	Language  string `json:"language,omitempty"`
	Framework string `json:"framework,omitempty"`
	Context   string `json:"context,omitempty"`
}

// GenerateResponse carries the extracted code.
type GenerateResponse struct {
	Code  string `json:"code"`
	Model string `json:"model"`
}

// RequestOTP asks the daemon to issue a login code for email.
func (c *Client) RequestOTP(ctx context.Context, email string) (Challenge, error) {
	var resp Challenge
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/otp", map[string]string{"email": email}, &resp); err != nil {
		return Challenge{}, err
	}
	return resp, nil
}

// VerifyOTP exchanges a code for a session. The client switches to the new token.
func (c *Client) VerifyOTP(ctx context.Context, challengeID, code string) (Session, error) {
	var resp Session
	payload := map[string]string{"challenge_id": challengeID, "code": code}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/verify", payload, &resp); err != nil {
		return Session{}, err
	}
	c.SetToken(resp.AccessToken)
	return resp, nil
}

// CurrentUser returns the user behind the session token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var resp User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", nil, &resp); err != nil {
		return User{}, err
	}
	return resp, nil
}

// ListSnippets returns the caller's snippets, newest first.
func (c *Client) ListSnippets(ctx context.Context) ([]Snippet, error) {
	var resp []Snippet
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/snippets", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSnippet returns one of the caller's snippets.
func (c *Client) GetSnippet(ctx context.Context, id string) (Snippet, error) {
	var resp Snippet
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/snippets/"+url.PathEscape(id), nil, &resp); err != nil {
		return Snippet{}, err
	}
	return resp, nil
}

// GetPublicSnippet returns a snippet shared publicly by any user.
func (c *Client) GetPublicSnippet(ctx context.Context, id string) (Snippet, error) {
	var resp Snippet
	if err := c.doJSON(ctx, http.MethodGet, "/rest/v1/public/snippets/"+url.PathEscape(id), nil, &resp); err != nil {
		return Snippet{}, err
	}
	return resp, nil
}

// CreateSnippet stores a new snippet owned by the caller.
func (c *Client) CreateSnippet(ctx context.Context, in SnippetInput) (Snippet, error) {
	var resp Snippet
	if err := c.doJSON(ctx, http.MethodPost, "/rest/v1/snippets", normalizeInput(in), &resp); err != nil {
		return Snippet{}, err
	}
	return resp, nil
}

// UpdateSnippet replaces the editable fields of one of the caller's snippets.
func (c *Client) UpdateSnippet(ctx context.Context, id string, in SnippetInput) (Snippet, error) {
	var resp Snippet
	if err := c.doJSON(ctx, http.MethodPatch, "/rest/v1/snippets/"+url.PathEscape(id), normalizeInput(in), &resp); err != nil {
		return Snippet{}, err
	}
	return resp, nil
}

// DeleteSnippet removes one of the caller's snippets.
func (c *Client) DeleteSnippet(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/rest/v1/snippets/"+url.PathEscape(id), nil, nil)
}

func normalizeInput(in SnippetInput) SnippetInput {
	if in.Tags == nil {
		in.Tags = []string{}
	}
	return in
}

// Explain requests a non-streaming explanation.
func (c *Client) Explain(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	var resp struct {
		Markdown string `json:"markdown"`
	}
	if err := c.doJSON(ctx, http.MethodPost, explainPath, map[string]string{"content": content}, &resp); err != nil {
		return "", err
	}
	if resp.Markdown == "" {
		return "No explanation.", nil
	}
	return resp.Markdown, nil
}

// Generate asks the daemon to write code for a prompt.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return GenerateResponse{}, errors.New("prompt is empty")
	}
	var resp GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/functions/v1/ai-generate", req, &resp); err != nil {
		return GenerateResponse{}, err
	}
	return resp, nil
}
