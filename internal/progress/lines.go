package progress

import (
	"bytes"
	"strings"
	"sync"
)

// LineWriter splits incrementally written output into lines on '\n' and '\r'
// and hands each non-blank line to fn. Close flushes a trailing partial line.
type LineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(line string)
}

func NewLineWriter(fn func(line string)) *LineWriter {
	return &LineWriter{fn: fn}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		w.deliver(line)
	}
	return len(p), nil
}

func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		line := string(w.buf)
		w.buf = nil
		w.deliver(line)
	}
	return nil
}

func (w *LineWriter) deliver(line string) {
	line = strings.TrimSpace(line)
	if line == "" || w.fn == nil {
		return
	}
	w.fn(line)
}

// ErrorText accumulates lines classified as genuine error output.
type ErrorText struct {
	mu    sync.Mutex
	lines []string
}

func (e *ErrorText) Add(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = append(e.lines, line)
}

func (e *ErrorText) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.lines, "\n")
}
