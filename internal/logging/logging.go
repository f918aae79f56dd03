package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

const timeLayout = "2006-01-02 15:04:05,000"

// Logger is the leveled logger shared by every stage of a run.
// It renders "<time> | <LEVEL> | <message>" lines.
type Logger struct {
	out  *log.Logger
	file *os.File
	now  func() time.Time
}

// New creates a logger writing to stdout and, when logPath is set, appending
// to that file as well.
func New(logPath string) (*Logger, error) {
	if logPath == "" {
		return NewWriter(os.Stdout), nil
	}

	if dir := filepath.Dir(logPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	l := NewWriter(io.MultiWriter(os.Stdout, f))
	l.file = f
	return l, nil
}

// NewWriter creates a logger over an arbitrary writer.
func NewWriter(w io.Writer) *Logger {
	return &Logger{
		out: log.New(w, "", 0),
		now: time.Now,
	}
}

func (l *Logger) Info(format string, args ...any) {
	l.logWithLevel("INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.logWithLevel("WARNING", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.logWithLevel("ERROR", format, args...)
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) logWithLevel(level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.out.Printf("%s | %s | %s", l.now().Format(timeLayout), level, msg)
}
