package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/snipwise/snipwise/internal/client"
	"github.com/snipwise/snipwise/internal/config"
	"github.com/snipwise/snipwise/internal/logging"
)

// errExplainFailed is returned after "Explain failed." was printed.
var errExplainFailed = errors.New("explain failed")

// Runner holds the dependencies of every command.
type Runner struct {
	cfg       config.ClientConfig
	api       *client.Client
	explainer *client.Explainer
	logger    *logrus.Entry
	input     *bufio.Reader
	output    io.Writer
	errOutput io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    config.ClientConfig
	Client    *client.Client
	Logger    *logrus.Entry
	Input     io.Reader
	Output    io.Writer
	ErrOutput io.Writer
}

// NewRunner creates a Runner, defaulting to the process's standard streams.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ErrOutput == nil {
		opts.ErrOutput = os.Stderr
	}
	return &Runner{
		cfg:       opts.Config,
		api:       opts.Client,
		explainer: client.NewExplainer(opts.Client),
		logger:    opts.Logger,
		input:     bufio.NewReader(opts.Input),
		output:    opts.Output,
		errOutput: opts.ErrOutput,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := authCommands(r)
	commands = append(commands, snippetCommands(r)...)
	return append(commands, aiCommands(r)...)
}

// loadSession attaches the stored token, if any. Without one the anon key is used.
func (r *Runner) loadSession(ctx context.Context, _ *cli.Command) (context.Context, error) {
	sess, err := client.LoadSession(r.cfg.SessionPath)
	switch {
	case errors.Is(err, client.ErrNoSession):
		r.logger.Debug("no stored session; using anon key")
	case err != nil:
		r.logger.WithError(err).Warn("ignoring unreadable session")
	default:
		r.api.SetToken(sess.AccessToken)
	}
	return ctx, nil
}

// Login requests a code for the email and exchanges it for a session.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	challengeID := strings.TrimSpace(cmd.String("challenge"))
	code := strings.TrimSpace(cmd.String("code"))

	if challengeID == "" {
		email := strings.TrimSpace(cmd.StringArg("email"))
		if email == "" {
			return errors.New("usage: snipwise login <email>")
		}
		ch, err := r.api.RequestOTP(ctx, email)
		if err != nil {
			return fmt.Errorf("request code: %w", err)
		}
		challengeID = ch.ChallengeID
		if err := r.writePlain("Code sent for %s (challenge %s).\n", email, ch.ChallengeID); err != nil {
			return err
		}
		if ch.Code != "" {
			r.logger.Debug("daemon echoed the login code")
			if code == "" {
				code = ch.Code
			}
		}
	}
	if code == "" {
		var err error
		if code, err = r.prompt("Code: "); err != nil {
			return err
		}
	}

	sess, err := r.api.VerifyOTP(ctx, challengeID, code)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if err := client.SaveSession(r.cfg.SessionPath, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return r.writePlain("Logged in as %s\n", sess.User.Email)
}

// Logout removes the stored session.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := client.ClearSession(r.cfg.SessionPath); err != nil {
		return err
	}
	r.api.SetToken("")
	return r.writePlain("Logged out\n")
}

// WhoAmI prints the signed-in account.
func (r *Runner) WhoAmI(ctx context.Context, cmd *cli.Command) error {
	u, err := r.api.CurrentUser(ctx)
	if err != nil {
		return r.requestError(err)
	}
	return r.writePlain("%s (%s)\n", u.Email, u.ID)
}

// List prints the user's snippets.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	list, err := r.api.ListSnippets(ctx)
	if err != nil {
		return r.requestError(err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(list)
	}
	if len(list) == 0 {
		return r.writePlain("No snippets yet.\n")
	}
	tw := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTAGS\tPUBLIC\tCREATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", s.ID, s.Title, strings.Join(s.Tags, ","), s.IsPublic, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// Show prints one snippet.
func (r *Runner) Show(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	var s client.Snippet
	if cmd.Bool("shared") {
		s, err = r.api.GetPublicSnippet(ctx, id)
	} else {
		s, err = r.api.GetSnippet(ctx, id)
	}
	if err != nil {
		return r.requestError(err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(s)
	}
	return r.printSnippet(s)
}

// Create stores a new snippet.
func (r *Runner) Create(ctx context.Context, cmd *cli.Command) error {
	title := strings.TrimSpace(cmd.String("title"))
	if title == "" {
		return errors.New("--title is required")
	}
	content, err := r.readContent(cmd, true)
	if err != nil {
		return err
	}
	s, err := r.api.CreateSnippet(ctx, client.SnippetInput{
		Title:    title,
		Content:  content,
		Tags:     cmd.StringSlice("tag"),
		IsPublic: cmd.Bool("public"),
	})
	if err != nil {
		return r.requestError(err)
	}
	return r.writePlain("Created %s\n", s.ID)
}

// Edit changes the fields given on the command line and keeps the rest.
func (r *Runner) Edit(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	current, err := r.api.GetSnippet(ctx, id)
	if err != nil {
		return r.requestError(err)
	}
	in := client.SnippetInput{Title: current.Title, Content: current.Content, Tags: current.Tags, IsPublic: current.IsPublic}
	if cmd.IsSet("title") {
		in.Title = cmd.String("title")
	}
	if cmd.IsSet("tag") {
		in.Tags = cmd.StringSlice("tag")
	}
	if cmd.IsSet("public") {
		in.IsPublic = cmd.Bool("public")
	}
	if cmd.IsSet("content") || cmd.IsSet("file") {
		if in.Content, err = r.readContent(cmd, false); err != nil {
			return err
		}
	}
	s, err := r.api.UpdateSnippet(ctx, id, in)
	if err != nil {
		return r.requestError(err)
	}
	return r.writePlain("Updated %s\n", s.ID)
}

// Delete removes a snippet.
func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	if err := r.api.DeleteSnippet(ctx, id); err != nil {
		return r.requestError(err)
	}
	return r.writePlain("Deleted %s\n", id)
}

// Public toggles public visibility.
func (r *Runner) Public(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	current, err := r.api.GetSnippet(ctx, id)
	if err != nil {
		return r.requestError(err)
	}
	public := !cmd.Bool("off")
	in := client.SnippetInput{Title: current.Title, Content: current.Content, Tags: current.Tags, IsPublic: public}
	if _, err := r.api.UpdateSnippet(ctx, id, in); err != nil {
		return r.requestError(err)
	}
	if public {
		return r.writePlain("%s is public; share it with: snipwise show --shared %s\n", id, id)
	}
	return r.writePlain("%s is private\n", id)
}

// Explain prints an explanation of a stored snippet or of inline content.
// Streamed deltas are written as they arrive.
func (r *Runner) Explain(ctx context.Context, cmd *cli.Command) error {
	key, content, err := r.explainTarget(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("no-stream") {
		md, err := r.api.Explain(ctx, content)
		if err != nil {
			return r.explainFailed(err)
		}
		return r.writePlain("%s\n", md)
	}

	run := r.explainer.Start(ctx, key, content, func(delta, _ string) {
		_, _ = io.WriteString(r.output, delta)
	})
	if err := run.Wait(); err != nil {
		return r.explainFailed(err)
	}
	if run.Text() == "" {
		return r.writePlain("No explanation.\n")
	}
	return r.writePlain("\n")
}

func (r *Runner) explainTarget(ctx context.Context, cmd *cli.Command) (key, content string, err error) {
	if cmd.IsSet("content") || cmd.IsSet("file") {
		content, err = r.readContent(cmd, false)
		return "inline", content, err
	}
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return "", "", errors.New("usage: snipwise explain <id> | --content TEXT | --file PATH")
	}
	s, err := r.api.GetSnippet(ctx, id)
	if err != nil {
		return "", "", r.requestError(err)
	}
	return s.ID, s.Content, nil
}

func (r *Runner) explainFailed(err error) error {
	r.logger.WithError(err).Debug("explain request failed")
	fmt.Fprintln(r.errOutput, "Explain failed.")
	return errExplainFailed
}

// Generate prints generated code.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	prompt, err := requireArg(cmd, "prompt")
	if err != nil {
		return err
	}
	resp, err := r.api.Generate(ctx, client.GenerateRequest{
		Prompt:    prompt,
		Language:  cmd.String("language"),
		Framework: cmd.String("framework"),
		Context:   cmd.String("context"),
	})
	if err != nil {
		return r.requestError(err)
	}
	r.logger.WithField("model", resp.Model).Debug("generated")
	return r.writePlain("%s\n", strings.TrimRight(resp.Code, "\n"))
}

// readContent returns --content, the --file contents, or stdin when allowed.
func (r *Runner) readContent(cmd *cli.Command, stdinFallback bool) (string, error) {
	if cmd.IsSet("content") {
		return cmd.String("content"), nil
	}
	path := cmd.String("file")
	switch {
	case path == "-" || (path == "" && stdinFallback):
		data, err := io.ReadAll(r.input)
		return string(data), err
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	default:
		return "", errors.New("no content given")
	}
}

func (r *Runner) prompt(label string) (string, error) {
	if err := r.writePlain("%s", label); err != nil {
		return "", err
	}
	line, err := r.input.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no code entered")
	}
	return line, nil
}

// requestError adds a login hint to authorization failures.
func (r *Runner) requestError(err error) error {
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Status == 401 {
			return fmt.Errorf("%s (run: snipwise login <email>)", httpErr.Message())
		}
		return errors.New(httpErr.Message())
	}
	return err
}

func (r *Runner) printSnippet(s client.Snippet) error {
	visibility := "private"
	if s.IsPublic {
		visibility = "public"
	}
	header := fmt.Sprintf("%s  [%s]", s.Title, visibility)
	if len(s.Tags) > 0 {
		header += "  #" + strings.Join(s.Tags, " #")
	}
	return r.writePlain("%s\n%s\n\n%s\n", header, strings.Repeat("-", len(header)), s.Content)
}

func (r *Runner) writeJSON(data any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return r.writePlain("%s\n", out)
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("missing <%s> argument", name)
	}
	return v, nil
}
