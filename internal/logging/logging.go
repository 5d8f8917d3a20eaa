// Package logging builds the application logger and the HTTP access logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventIDField is the logrus field that carries a request's event id.
const EventIDField = "event_id"

// Options configures the loggers.
type Options struct {
	Level  string
	File   string
	Stdout io.Writer
}

// Loggers bundles the application and access loggers with the file sink they
// share, if any.
type Loggers struct {
	App    *slog.Logger
	Access *logrus.Logger
	file   *lumberjack.Logger
}

// New creates the loggers. With a file configured, output goes to stdout and
// to a rotating file.
func New(opts Options) (*Loggers, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	l := &Loggers{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(out, l.file)
	}

	l.App = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	l.Access = logrus.New()
	l.Access.SetOutput(out)
	l.Access.SetFormatter(&AccessFormatter{SystemName: "taskboard"})
	l.Access.SetLevel(logrus.InfoLevel)
	return l, nil
}

// Close flushes and closes the file sink.
func (l *Loggers) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a level name to slog.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}

// AccessFormatter renders one line per entry with an event id. Entries
// without an event_id field get a fresh one.
type AccessFormatter struct {
	SystemName string
}

// Format implements logrus.Formatter.
func (f *AccessFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	eventID, _ := entry.Data[EventIDField].(string)
	if eventID == "" {
		eventID = uuid.NewString()
	}

	ts := entry.Time.UTC()
	fmt.Fprintf(b, "Date: %s, Time: %s, ", ts.Format("2006-01-02"), ts.Format("15:04:05"))
	fmt.Fprintf(b, "Event Source: %s, ", f.SystemName)
	fmt.Fprintf(b, "Event Type: %s, ", strings.ToUpper(entry.Level.String()))
	fmt.Fprintf(b, "Event ID: %s, ", eventID)
	fmt.Fprintf(b, "Message: %s", entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != EventIDField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, ", %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
