package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipwise/snipwise/internal/userstore"
)

// setupTestStore connects to SNIPWISE_TEST_POSTGRES_DSN and skips without it.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SNIPWISE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SNIPWISE_TEST_POSTGRES_DSN not set")
	}
	s, err := New(dsn)
	if err != nil {
		t.Skipf("Skipping test: cannot connect to database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFindOrCreate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	email := "test-" + uuid.NewString()[:8] + "@example.com"

	u, created, err := s.FindOrCreate(ctx, email)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.FindOrCreate(ctx, email)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)

	require.NoError(t, s.RecordLogin(ctx, u.ID, time.Now()))
	got, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, userstore.ErrNotFound)
}
