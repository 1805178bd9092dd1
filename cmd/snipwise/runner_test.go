package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/snipwise/snipwise/internal/adapter/mock"
	"github.com/snipwise/snipwise/internal/auth"
	"github.com/snipwise/snipwise/internal/client"
	"github.com/snipwise/snipwise/internal/config"
	"github.com/snipwise/snipwise/internal/generate"
	"github.com/snipwise/snipwise/internal/httpserver"
	"github.com/snipwise/snipwise/internal/relay"
	snippetsqlite "github.com/snipwise/snipwise/internal/snippets/sqlite"
	usersqlite "github.com/snipwise/snipwise/internal/userstore/sqlite"
)

type daemon struct {
	url     string
	anonKey string
}

func newDaemon(t *testing.T, echo bool) daemon {
	t.Helper()
	dir := t.TempDir()
	users, err := usersqlite.New(filepath.Join(dir, "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })
	store, err := snippetsqlite.New(filepath.Join(dir, "snippets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mgr := auth.NewManager("cli-test-secret", time.Minute)
	anon, err := mgr.AnonKey()
	require.NoError(t, err)

	srv, err := httpserver.New(httpserver.Config{
		Auth:               mgr,
		Users:              users,
		Snippets:           store,
		Explain:            relay.New(relay.Config{ForceMock: true}, nil).Handler(),
		Generate:           generate.New(generate.Config{Provider: mock.ProviderName}, mock.New(""), nil, nil).Handler(),
		TokenTTL:           time.Hour,
		EchoCode:           echo,
		VerifyFunctionsJWT: true,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return daemon{url: ts.URL, anonKey: anon}
}

type harness struct {
	runner *Runner
	out    *bytes.Buffer
	errOut *bytes.Buffer
	in     *bytes.Buffer
}

func newHarness(t *testing.T, baseURL, anonKey, sessionPath string) *harness {
	t.Helper()
	api, err := client.New(client.Options{BaseURL: baseURL, AnonKey: anonKey})
	require.NoError(t, err)
	h := &harness{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, in: &bytes.Buffer{}}
	h.runner = NewRunner(RunnerOpts{
		Config:    config.ClientConfig{BaseURL: baseURL, AnonKey: anonKey, SessionPath: sessionPath},
		Client:    api,
		Input:     h.in,
		Output:    h.out,
		ErrOutput: h.errOut,
	})
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.out.Reset()
	app := &cli.Command{
		Name:      "snipwise",
		Writer:    h.out,
		ErrWriter: h.errOut,
		Before:    h.runner.loadSession,
		Commands:  h.runner.register(),
	}
	err := app.Run(context.Background(), append([]string{"snipwise"}, args...))
	return h.out.String(), err
}

func loggedIn(t *testing.T) (*harness, daemon) {
	t.Helper()
	d := newDaemon(t, true)
	h := newHarness(t, d.url, d.anonKey, filepath.Join(t.TempDir(), "session.json"))
	out, err := h.run("login", "dev@example.com")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as dev@example.com")
	return h, d
}

func createdID(t *testing.T, out string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(out, "Created "), out)
	return strings.TrimSpace(strings.TrimPrefix(out, "Created "))
}

func TestLoginPersistsSession(t *testing.T) {
	h, _ := loggedIn(t)

	out, err := h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "dev@example.com")

	// A fresh process picks the stored token up again.
	again := newHarness(t, h.runner.cfg.BaseURL, h.runner.cfg.AnonKey, h.runner.cfg.SessionPath)
	out, err = again.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "dev@example.com")

	_, err = again.run("logout")
	require.NoError(t, err)
	_, err = again.run("whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snipwise login")
}

func TestLoginPromptsForCode(t *testing.T) {
	d := newDaemon(t, true)
	api, err := client.New(client.Options{BaseURL: d.url, AnonKey: d.anonKey})
	require.NoError(t, err)
	ch, err := api.RequestOTP(context.Background(), "prompt@example.com")
	require.NoError(t, err)

	h := newHarness(t, d.url, d.anonKey, filepath.Join(t.TempDir(), "session.json"))
	h.in.WriteString(ch.Code + "\n")
	out, err := h.run("login", "--challenge", ch.ChallengeID)
	require.NoError(t, err)
	assert.Contains(t, out, "Code: ")
	assert.Contains(t, out, "Logged in as prompt@example.com")
}

func TestLoginRejectsWrongCode(t *testing.T) {
	d := newDaemon(t, false)
	h := newHarness(t, d.url, d.anonKey, filepath.Join(t.TempDir(), "session.json"))
	_, err := h.run("login", "--code", "000000x", "dev@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify code")
}

func TestSnippetCommands(t *testing.T) {
	h, _ := loggedIn(t)

	out, err := h.run("create", "--title", "hello", "--content", "print('hi')", "--tag", "python", "--tag", "demo")
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = h.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "python,demo")

	out, err = h.run("list", "--json")
	require.NoError(t, err)
	var list []client.Snippet
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "print('hi')", list[0].Content)

	_, err = h.run("edit", "--title", "renamed", id)
	require.NoError(t, err)
	out, err = h.run("show", "--json", id)
	require.NoError(t, err)
	var shown client.Snippet
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "renamed", shown.Title)
	assert.Equal(t, "print('hi')", shown.Content, "unset fields are kept")
	assert.Equal(t, []string{"python", "demo"}, shown.Tags)

	_, err = h.run("delete", id)
	require.NoError(t, err)
	out, err = h.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "No snippets yet.")
}

func TestCreateReadsStdin(t *testing.T) {
	h, _ := loggedIn(t)
	h.in.WriteString("fmt.Println(1)\n")

	out, err := h.run("create", "--title", "from stdin")
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = h.run("show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "from stdin  [private]")
	assert.Contains(t, out, "fmt.Println(1)")
}

func TestCreateRequiresTitle(t *testing.T) {
	h, _ := loggedIn(t)
	_, err := h.run("create", "--content", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--title")
}

func TestPublicSharing(t *testing.T) {
	h, d := loggedIn(t)
	out, err := h.run("create", "--title", "shared", "--content", "SELECT 1;")
	require.NoError(t, err)
	id := createdID(t, out)

	anon := newHarness(t, d.url, d.anonKey, filepath.Join(t.TempDir(), "none.json"))
	_, err = anon.run("show", "--shared", id)
	require.Error(t, err, "private snippets are not shared")

	out, err = h.run("public", id)
	require.NoError(t, err)
	assert.Contains(t, out, "is public")

	out, err = anon.run("show", "--shared", id)
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT 1;")

	_, err = h.run("public", "--off", id)
	require.NoError(t, err)
	_, err = anon.run("show", "--shared", id)
	require.Error(t, err)
}

func TestExplainStreamsStoredSnippet(t *testing.T) {
	h, _ := loggedIn(t)
	out, err := h.run("create", "--title", "loop", "--content", "for i := range 3 {}")
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = h.run("explain", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Mock explanation")
	assert.Contains(t, out, "for i := range 3 {}")
}

func TestExplainInlineWithoutStreaming(t *testing.T) {
	h, _ := loggedIn(t)
	out, err := h.run("explain", "--content", "x = 1", "--no-stream")
	require.NoError(t, err)
	assert.Equal(t, mock.Explanation("x = 1")+"\n", out)
}

func TestExplainFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	for _, args := range [][]string{
		{"explain", "--content", "x"},
		{"explain", "--content", "x", "--no-stream"},
	} {
		h := newHarness(t, ts.URL, "anon", filepath.Join(t.TempDir(), "session.json"))
		_, err := h.run(args...)
		require.ErrorIs(t, err, errExplainFailed)
		assert.Equal(t, "Explain failed.\n", h.errOut.String())
	}
}

func TestGenerate(t *testing.T) {
	h, _ := loggedIn(t)
	out, err := h.run("generate", "--language", "go", "reverse a string")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestMissingArguments(t *testing.T) {
	h, _ := loggedIn(t)
	for _, args := range [][]string{{"show"}, {"delete"}, {"generate"}, {"explain"}} {
		_, err := h.run(args...)
		assert.Error(t, err, args)
	}
}
