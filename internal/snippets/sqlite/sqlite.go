package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/snipwise/snipwise/internal/snippets"
)

var _ snippets.Store = (*Store)(nil)

// Store implements snippets.Store backed by SQLite. Tags are kept as a JSON array.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snippets directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS snippets (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	is_public INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snippets_user_created ON snippets(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectSnippet = `SELECT id, user_id, title, content, tags, is_public, created_at FROM snippets`

// List returns the user's snippets, newest first.
func (s *Store) List(ctx context.Context, userID uuid.UUID) ([]snippets.Snippet, error) {
	rows, err := s.db.QueryContext(ctx, selectSnippet+` WHERE user_id = ? ORDER BY created_at DESC, id`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []snippets.Snippet{}
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sn)
	}
	return out, rows.Err()
}

// Get returns one of the user's snippets.
func (s *Store) Get(ctx context.Context, userID, id uuid.UUID) (*snippets.Snippet, error) {
	return scanSnippet(s.db.QueryRowContext(ctx, selectSnippet+` WHERE id = ? AND user_id = ?`, id.String(), userID.String()))
}

// GetPublic returns a public snippet of any owner.
func (s *Store) GetPublic(ctx context.Context, id uuid.UUID) (*snippets.Snippet, error) {
	return scanSnippet(s.db.QueryRowContext(ctx, selectSnippet+` WHERE id = ? AND is_public = 1`, id.String()))
}

// Create inserts a new snippet owned by userID.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, in snippets.Input) (*snippets.Snippet, error) {
	if userID == uuid.Nil {
		return nil, errors.New("snippet create requires user id")
	}
	sn := &snippets.Snippet{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     in.Title,
		Content:   in.Content,
		Tags:      tagsOrEmpty(in.Tags),
		IsPublic:  in.IsPublic,
		CreatedAt: time.Now().UTC(),
	}
	tags, err := json.Marshal(sn.Tags)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snippets(id, user_id, title, content, tags, is_public, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sn.ID.String(), userID.String(), sn.Title, sn.Content, string(tags), sn.IsPublic, sn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert snippet: %w", err)
	}
	return sn, nil
}

// Update replaces the editable fields of one of the user's snippets.
func (s *Store) Update(ctx context.Context, userID, id uuid.UUID, in snippets.Input) (*snippets.Snippet, error) {
	tags, err := json.Marshal(tagsOrEmpty(in.Tags))
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE snippets SET title = ?, content = ?, tags = ?, is_public = ? WHERE id = ? AND user_id = ?`,
		in.Title, in.Content, string(tags), in.IsPublic, id.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("update snippet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, snippets.ErrNotFound
	}
	return s.Get(ctx, userID, id)
}

// Delete removes one of the user's snippets.
func (s *Store) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snippets WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return snippets.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row scanner) (*snippets.Snippet, error) {
	var (
		sn       snippets.Snippet
		id, user string
		tags     string
	)
	if err := row.Scan(&id, &user, &sn.Title, &sn.Content, &tags, &sn.IsPublic, &sn.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snippets.ErrNotFound
		}
		return nil, err
	}
	var err error
	if sn.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse snippet id %q: %w", id, err)
	}
	if sn.UserID, err = uuid.Parse(user); err != nil {
		return nil, fmt.Errorf("parse snippet owner %q: %w", user, err)
	}
	if err := json.Unmarshal([]byte(tags), &sn.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", id, err)
	}
	sn.Tags = tagsOrEmpty(sn.Tags)
	return &sn, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
