package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultKeep is the number of archived log files retained by RotatingWriter.
const DefaultKeep = 7

// RotatingWriter appends to a single live log file at Path. When a write
// would push the file past MaxBytes, or the UTC day changes, the live file
// is archived as <name>-YYYYMMDD-HHMMSS<ext> next to it and a new one is
// started. Only the newest Keep archives are retained.
type RotatingWriter struct {
	Path     string
	MaxBytes int64
	Keep     int

	mu     sync.Mutex
	now    func() time.Time
	file   *os.File
	size   int64
	opened string // UTC day the live file was opened on
}

// NewRotatingWriter opens path for appending. A path of "-" discards output.
func NewRotatingWriter(path string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(path) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	w := &RotatingWriter{Path: path, MaxBytes: maxBytes, Keep: DefaultKeep, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) day() string {
	return w.now().UTC().Format("20060102")
}

// due reports whether the live file must be archived before writing n bytes.
// An empty file is never archived so oversized single writes still land.
func (w *RotatingWriter) due(n int64) bool {
	if w.size == 0 {
		return false
	}
	return w.day() != w.opened || (w.MaxBytes > 0 && w.size+n > w.MaxBytes)
}

func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(w.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	w.file, w.size, w.opened = f, size, w.day()
	return nil
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil
	if err := os.Rename(w.Path, w.archiveName()); err != nil {
		return fmt.Errorf("archive log file: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

func (w *RotatingWriter) archiveName() string {
	ext := filepath.Ext(w.Path)
	if ext == "" {
		ext = ".log"
	}
	prefix := strings.TrimSuffix(w.Path, filepath.Ext(w.Path))
	stamp := w.now().UTC().Format("20060102-150405")
	name := prefix + "-" + stamp + ext
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%s.%d%s", prefix, stamp, i, ext)
	}
}

// prune removes the oldest archives beyond Keep. Removal errors are ignored.
func (w *RotatingWriter) prune() {
	if w.Keep <= 0 {
		return
	}
	prefix := strings.TrimSuffix(w.Path, filepath.Ext(w.Path))
	matches, err := filepath.Glob(prefix + "-[0-9]*")
	if err != nil || len(matches) <= w.Keep {
		return
	}
	// the timestamp format sorts lexically
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-w.Keep] {
		_ = os.Remove(old)
	}
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
