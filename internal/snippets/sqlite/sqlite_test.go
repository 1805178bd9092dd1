package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipwise/snipwise/internal/snippets"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "snippets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	owner := uuid.New()

	created, err := s.Create(ctx, owner, snippets.Input{Title: "hello", Content: "fmt.Println(1)", Tags: []string{"go"}})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, owner, created.UserID)

	got, err := s.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, []string{"go"}, got.Tags)
	assert.False(t, got.IsPublic)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Second)

	_, err = s.Get(ctx, uuid.New(), created.ID)
	assert.ErrorIs(t, err, snippets.ErrNotFound)

	require.NoError(t, s.Ping(ctx))
}

func TestNilTagsStoredAsEmpty(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	owner := uuid.New()

	created, err := s.Create(ctx, owner, snippets.Input{Title: "t"})
	require.NoError(t, err)
	got, err := s.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Tags)
	assert.Empty(t, got.Tags)
}

func TestListNewestFirstAndScoped(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Create(ctx, alice, snippets.Input{Title: title})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := s.Create(ctx, bob, snippets.Input{Title: "bob's"})
	require.NoError(t, err)

	list, err := s.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "first", list[2].Title)

	empty, err := s.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUpdateAndDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	sn, err := s.Create(ctx, owner, snippets.Input{Title: "draft"})
	require.NoError(t, err)

	_, err = s.Update(ctx, other, sn.ID, snippets.Input{Title: "hijack"})
	assert.ErrorIs(t, err, snippets.ErrNotFound)

	updated, err := s.Update(ctx, owner, sn.ID, snippets.Input{Title: "final", Tags: []string{"a", "b"}, IsPublic: true})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, []string{"a", "b"}, updated.Tags)
	assert.True(t, updated.IsPublic)

	assert.ErrorIs(t, s.Delete(ctx, other, sn.ID), snippets.ErrNotFound)
	require.NoError(t, s.Delete(ctx, owner, sn.ID))
	assert.ErrorIs(t, s.Delete(ctx, owner, sn.ID), snippets.ErrNotFound)
}

func TestGetPublic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	owner := uuid.New()

	sn, err := s.Create(ctx, owner, snippets.Input{Title: "shared"})
	require.NoError(t, err)

	_, err = s.GetPublic(ctx, sn.ID)
	assert.ErrorIs(t, err, snippets.ErrNotFound)

	_, err = s.Update(ctx, owner, sn.ID, snippets.Input{Title: "shared", IsPublic: true})
	require.NoError(t, err)
	got, err := s.GetPublic(ctx, sn.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, got.UserID)
}

func TestCreateRequiresOwner(t *testing.T) {
	s := newStore(t)
	_, err := s.Create(context.Background(), uuid.Nil, snippets.Input{Title: "t"})
	assert.Error(t, err)
}
