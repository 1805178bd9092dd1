package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestNewWritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "snipwised.log")

	l, closer, err := New(Options{Level: "info", Format: "json", File: base})
	require.NoError(t, err)
	Component(l, "relay").Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(base)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"component":"relay"`))
}

func newTestWriter(t *testing.T, maxBytes int64, now func() time.Time) *RotatingWriter {
	t.Helper()
	w := &RotatingWriter{Path: filepath.Join(t.TempDir(), "app.log"), MaxBytes: maxBytes, Keep: 2, now: now}
	require.NoError(t, w.open())
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func archives(t *testing.T, w *RotatingWriter) []string {
	t.Helper()
	matches, err := filepath.Glob(strings.TrimSuffix(w.Path, ".log") + "-*")
	require.NoError(t, err)
	return matches
}

func TestRotatingWriterRollsOverBySize(t *testing.T) {
	clock := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	w := newTestWriter(t, 8, func() time.Time { return clock })

	_, err := w.Write([]byte("12345678"))
	require.NoError(t, err)
	assert.Empty(t, archives(t, w))

	_, err = w.Write([]byte("9"))
	require.NoError(t, err)
	got := archives(t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "app-20261019-080000.log", filepath.Base(got[0]))

	old, err := os.ReadFile(got[0])
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(old))
	live, err := os.ReadFile(w.Path)
	require.NoError(t, err)
	assert.Equal(t, "9", string(live))
}

func TestRotatingWriterOversizedWriteLands(t *testing.T) {
	w := newTestWriter(t, 4, time.Now)
	n, err := w.Write([]byte("longer than max"))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Empty(t, archives(t, w))
}

func TestRotatingWriterRollsOverDaily(t *testing.T) {
	clock := time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)
	w := newTestWriter(t, 0, func() time.Time { return clock })

	_, err := w.Write([]byte("day one\n"))
	require.NoError(t, err)
	clock = clock.Add(2 * time.Minute)
	_, err = w.Write([]byte("day two\n"))
	require.NoError(t, err)

	assert.Len(t, archives(t, w), 1)
}

func TestRotatingWriterKeepsNewestArchives(t *testing.T) {
	clock := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	w := newTestWriter(t, 1, func() time.Time { return clock })

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("x"))
		require.NoError(t, err)
		clock = clock.Add(time.Second)
	}
	got := archives(t, w)
	require.Len(t, got, 2)
	assert.Equal(t, "app-20261019-080003.log", filepath.Base(got[0]))
	assert.Equal(t, "app-20261019-080004.log", filepath.Base(got[1]))
}

func TestRotatingWriterWriteAfterClose(t *testing.T) {
	w := newTestWriter(t, 0, time.Now)
	require.NoError(t, w.Close())
	_, err := w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Close())
}

func TestRotatingWriterDash(t *testing.T) {
	w, err := NewRotatingWriter("-", 10)
	require.NoError(t, err)
	n, err := w.Write([]byte("ignored"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
