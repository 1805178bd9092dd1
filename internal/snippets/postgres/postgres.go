package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/snipwise/snipwise/internal/snippets"
)

var _ snippets.Store = (*Store)(nil)

// Store implements snippets.Store backed by Postgres. Tags are a TEXT[] column.
type Store struct {
	db *sql.DB
}

// New opens a Postgres-backed snippet store using the provided DSN.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an existing pool and applies the schema.
func NewWithDB(db *sql.DB) (*Store, error) {
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
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_snippets_user_created ON snippets(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_snippets_public ON snippets(id) WHERE is_public;
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

const snippetColumns = `id, user_id, title, content, tags, is_public, created_at`

// List returns the user's snippets, newest first.
func (s *Store) List(ctx context.Context, userID uuid.UUID) ([]snippets.Snippet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+snippetColumns+` FROM snippets WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
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
	return scanSnippet(s.db.QueryRowContext(ctx, `SELECT `+snippetColumns+` FROM snippets WHERE id = $1 AND user_id = $2`, id, userID))
}

// GetPublic returns a public snippet of any owner.
func (s *Store) GetPublic(ctx context.Context, id uuid.UUID) (*snippets.Snippet, error) {
	return scanSnippet(s.db.QueryRowContext(ctx, `SELECT `+snippetColumns+` FROM snippets WHERE id = $1 AND is_public`, id))
}

// Create inserts a new snippet owned by userID.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, in snippets.Input) (*snippets.Snippet, error) {
	if userID == uuid.Nil {
		return nil, errors.New("snippet create requires user id")
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO snippets(id, user_id, title, content, tags, is_public) VALUES($1, $2, $3, $4, $5, $6) RETURNING `+snippetColumns,
		uuid.New(), userID, in.Title, in.Content, pq.Array(tagsOrEmpty(in.Tags)), in.IsPublic)
	sn, err := scanSnippet(row)
	if err != nil {
		return nil, fmt.Errorf("insert snippet: %w", err)
	}
	return sn, nil
}

// Update replaces the editable fields of one of the user's snippets.
func (s *Store) Update(ctx context.Context, userID, id uuid.UUID, in snippets.Input) (*snippets.Snippet, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE snippets SET title = $1, content = $2, tags = $3, is_public = $4 WHERE id = $5 AND user_id = $6 RETURNING `+snippetColumns,
		in.Title, in.Content, pq.Array(tagsOrEmpty(in.Tags)), in.IsPublic, id, userID)
	return scanSnippet(row)
}

// Delete removes one of the user's snippets.
func (s *Store) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snippets WHERE id = $1 AND user_id = $2`, id, userID)
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
	var sn snippets.Snippet
	var tags pq.StringArray
	if err := row.Scan(&sn.ID, &sn.UserID, &sn.Title, &sn.Content, &tags, &sn.IsPublic, &sn.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snippets.ErrNotFound
		}
		return nil, err
	}
	sn.Tags = tagsOrEmpty([]string(tags))
	return &sn, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
