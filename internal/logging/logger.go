package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger appends timestamped lines to the debug log so a failed conversion
// can be traced after the run. A nil *Logger discards everything.
type Logger struct {
	mu    sync.Mutex
	w     io.Writer
	c     io.Closer
	runID string
	now   func() time.Time
}

// New opens (or creates) the log file in append mode.
func New(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	l := NewWriter(f)
	l.c = f
	return l, nil
}

// NewWriter logs to w; the caller keeps ownership of w.
func NewWriter(w io.Writer) *Logger {
	return &Logger{w: w, runID: uuid.NewString(), now: time.Now}
}

// RunID identifies every line written during one invocation.
func (l *Logger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.c == nil {
		return nil
	}
	return l.c.Close()
}

// Printf writes a single timestamped line.
func (l *Logger) Printf(format string, args ...any) {
	l.write("", format, args...)
}

// For returns a view of l that tags every line with source.
func (l *Logger) For(source string) *Source {
	return &Source{l: l, name: source}
}

func (l *Logger) write(source, format string, args ...any) {
	if l == nil || l.w == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	ts := l.now().Format(time.RFC3339)
	l.mu.Lock()
	defer l.mu.Unlock()
	if source != "" {
		fmt.Fprintf(l.w, "[%s] run=%s %s: %s\n", ts, l.runID, source, line)
		return
	}
	fmt.Fprintf(l.w, "[%s] run=%s %s\n", ts, l.runID, line)
}

// Source is a Logger bound to one input file.
type Source struct {
	l    *Logger
	name string
}

func (s *Source) Printf(format string, args ...any) {
	if s == nil {
		return
	}
	s.l.write(s.name, format, args...)
}
