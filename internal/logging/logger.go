package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options selects level, format and an optional rotating file sink.
type Options struct {
	Level    string // trace, debug, info, warn, error
	Format   string // text (default) or json
	File     string // base path for RotatingWriter; empty disables file output
	MaxBytes int64
}

// New builds a logrus logger writing to stdout and, when configured, to a
// rotating file. The returned closer releases the file sink.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()
	l.SetLevel(ParseLevel(opts.Level))

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closer io.Closer = nopWriteCloser{w: io.Discard}
	out := io.Writer(os.Stdout)
	if path := strings.TrimSpace(opts.File); path != "" {
		maxBytes := opts.MaxBytes
		if maxBytes <= 0 {
			maxBytes = 100 << 20
		}
		rw, err := NewRotatingWriter(path, maxBytes)
		if err != nil {
			return nil, nil, err
		}
		closer = rw
		out = io.MultiWriter(os.Stdout, rw)
	}
	l.SetOutput(out)
	return l, closer, nil
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Discard returns an entry that drops everything, for tests and optional loggers.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// Component returns an entry tagged with the component name.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}
