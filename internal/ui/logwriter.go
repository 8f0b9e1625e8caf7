package ui

import (
	"strings"
	"sync"
)

// LogWriter implements io.Writer and captures log output for display. It
// keeps the last max lines and notifies new lines on a channel without
// blocking the writer.
type LogWriter struct {
	mu    sync.Mutex
	lines []string
	max   int
	ch    chan string
}

// NewLogWriter creates a log writer retaining maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{
		max: max(maxLines, 1),
		ch:  make(chan string, 100),
	}
}

// Write implements io.Writer. Multi-line input is split on newlines.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	for _, line := range strings.Split(text, "\n") {
		w.mu.Lock()
		w.lines = append(w.lines, line)
		if len(w.lines) > w.max {
			w.lines = w.lines[len(w.lines)-w.max:]
		}
		w.mu.Unlock()

		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (w *LogWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

// Channel returns the notification channel for new lines.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
